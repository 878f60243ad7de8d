// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package chunk splits serialized messages into fragments bounded by a byte
// size and reassembles them. It knows nothing about the transfer protocol.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Split cuts text into fragments of at most maxSize bytes without breaking
// multi-byte UTF-8 sequences: a cut landing inside a sequence backs off to
// the previous rune start. A single rune wider than maxSize travels whole as
// an oversized fragment, keeping Join(Split(text, n)) == text for every
// n >= 1. Empty text yields no fragments.
func Split(text string, maxSize int) ([]string, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("fragment size must be positive, got %d", maxSize)
	}

	var fragments []string
	for start := 0; start < len(text); {
		end := start + maxSize
		if end >= len(text) {
			fragments = append(fragments, text[start:])
			break
		}

		cut := end
		for cut > start && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == start {
			_, width := utf8.DecodeRuneInString(text[start:])
			cut = start + width
		}

		fragments = append(fragments, text[start:cut])
		start = cut
	}

	return fragments, nil
}

// Join reassembles fragments produced by Split.
func Join(fragments []string) string {
	return strings.Join(fragments, "")
}
