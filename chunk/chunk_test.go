// SPDX-FileCopyrightText: 2025 The ferry-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitJoinRoundtrip(t *testing.T) {
	texts := []string{
		"",
		"a",
		"hello world",
		strings.Repeat("x", 1000),
		"日本語のテキスト",
		"mixed ascii と 日本語 and 🦀🦀🦀",
		`{"query":"ありがとうございます","emoji":"👋"}`,
	}
	sizes := []int{1, 2, 3, 4, 5, 7, 16, 64, 4096}

	for _, text := range texts {
		for _, maxSize := range sizes {
			t.Run(fmt.Sprintf("len%d_max%d", len(text), maxSize), func(t *testing.T) {
				fragments, err := Split(text, maxSize)
				if err != nil {
					t.Fatal(err)
				}

				if joined := Join(fragments); joined != text {
					t.Fatalf("roundtrip broke: %q != %q", joined, text)
				}

				for _, fragment := range fragments {
					if len(fragment) == 0 {
						t.Fatal("empty fragment emitted")
					}
					if len(fragment) > maxSize && utf8.RuneCountInString(fragment) > 1 {
						t.Fatalf("fragment %q exceeds %d bytes and is no single rune", fragment, maxSize)
					}
					if !utf8.ValidString(fragment) {
						t.Fatalf("fragment %q is no valid UTF-8", fragment)
					}
				}
			})
		}
	}
}

func TestSplitBoundaries(t *testing.T) {
	fragments, err := Split("abcd", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(fragments) != 2 || fragments[0] != "ab" || fragments[1] != "cd" {
		t.Fatalf("unexpected fragments %v", fragments)
	}

	// the cut may never land inside the three byte rune
	fragments, err = Split("a世b", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(fragments) != 3 || fragments[0] != "a" || fragments[1] != "世" || fragments[2] != "b" {
		t.Fatalf("unexpected fragments %v", fragments)
	}
}

func TestSplitEmpty(t *testing.T) {
	fragments, err := Split("", 16)
	if err != nil {
		t.Fatal(err)
	}
	if len(fragments) != 0 {
		t.Fatalf("expected no fragments, got %v", fragments)
	}
}

func TestSplitInvalidSize(t *testing.T) {
	for _, maxSize := range []int{0, -1} {
		if _, err := Split("data", maxSize); err == nil {
			t.Fatalf("expected an error for fragment size %d", maxSize)
		}
	}
}

func TestSplitFragmentCount(t *testing.T) {
	text := strings.Repeat("a", 5*64)

	fragments, err := Split(text, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(fragments) != 5 {
		t.Fatalf("expected 5 fragments, got %d", len(fragments))
	}
}
