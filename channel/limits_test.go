// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"math"
	"testing"
)

func TestProfileLimits(t *testing.T) {
	for _, p := range []Profile{ProfileCompact, ProfileExpanded} {
		limits := p.Limits()

		if limits.MaxFragmentSize >= limits.MaxMessageSize {
			t.Fatalf("%s: fragments leave no frame headroom", p)
		}
		if limits.MaxMessageSize <= 0 {
			t.Fatalf("%s: unusable message ceiling", p)
		}
	}

	if ProfileExpanded.Limits().MaxDataPayloadSize != math.MaxInt {
		t.Fatal("expanded tier must not bound the data payload")
	}
	if ProfileCompact.Limits().MaxMessageSize >= ProfileExpanded.Limits().MaxMessageSize {
		t.Fatal("compact tier must stay below the expanded tier")
	}
}

func TestParseProfile(t *testing.T) {
	for _, p := range []Profile{ProfileCompact, ProfileExpanded} {
		parsed, err := ParseProfile(p.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != p {
			t.Fatalf("%s did not survive the roundtrip", p)
		}
	}

	if _, err := ParseProfile("roomy"); err == nil {
		t.Fatal("expected an error for an unknown profile")
	}
}
