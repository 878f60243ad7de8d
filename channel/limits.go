// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"fmt"
	"math"
)

// Profile selects one of the two size tiers an execution environment falls
// into.
type Profile uint8

const (
	// ProfileCompact is the constrained tier with a lower message ceiling
	// and a bounded data payload size.
	ProfileCompact Profile = iota

	// ProfileExpanded is the roomy tier with a higher message ceiling and no
	// practical data payload bound.
	ProfileExpanded
)

// Limits is the size policy derived from a Profile. All values are bytes.
type Limits struct {
	// MaxMessageSize bounds a direct message and any atomic frame payload. A
	// payload of exactly this size still travels directly; one byte more
	// goes chunked.
	MaxMessageSize int

	// MaxFragmentSize bounds a single chunk fragment, leaving headroom below
	// MaxMessageSize for the frame around it.
	MaxFragmentSize int

	// MaxDataPayloadSize bounds the payload a context should materialize in
	// memory at all, math.MaxInt when the environment imposes none.
	MaxDataPayloadSize int
}

// fragmentHeadroom keeps a full chunk frame below the message ceiling.
const fragmentHeadroom = 1024

// Limits of this Profile.
func (p Profile) Limits() Limits {
	switch p {
	case ProfileExpanded:
		return Limits{
			MaxMessageSize:     64 << 20,
			MaxFragmentSize:    64<<20 - fragmentHeadroom,
			MaxDataPayloadSize: math.MaxInt,
		}

	default:
		return Limits{
			MaxMessageSize:     16 << 20,
			MaxFragmentSize:    16<<20 - fragmentHeadroom,
			MaxDataPayloadSize: 32 << 20,
		}
	}
}

func (p Profile) String() string {
	switch p {
	case ProfileExpanded:
		return "expanded"
	default:
		return "compact"
	}
}

// ParseProfile maps a profile name back to its Profile.
func ParseProfile(name string) (Profile, error) {
	switch name {
	case "compact":
		return ProfileCompact, nil
	case "expanded":
		return ProfileExpanded, nil
	default:
		return ProfileCompact, fmt.Errorf("unknown profile %q", name)
	}
}
