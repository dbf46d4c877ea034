// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"bytes"
	"testing"
)

func TestSplitLines_JoiningRestoresTheInput(t *testing.T) {
	tests := map[string]string{
		"empty":               "",
		"single line":         "hello\n",
		"missing newline":     "hello",
		"multiple lines":      "a\nb\nc\n",
		"blank lines":         "a\n\n\nb\n",
		"only newlines":       "\n\n",
		"trailing blank line": "a\nb\n\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			split := splitLines([]byte(input))
			if got := bytes.Join(split, nil); !bytes.Equal(got, []byte(input)) {
				t.Errorf("expected %q, got %q", input, got)
			}
			for i, line := range split {
				if len(line) == 0 {
					t.Errorf("line %d is empty, the split is not minimal", i)
				}
			}
		})
	}
}

func TestReduce_KeepsOnlyTheLinesThePredicateNeeds(t *testing.T) {
	input := []byte("padding before\nthe needle line\npadding after\n")
	accepts := func(candidate []byte) bool {
		return bytes.Contains(candidate, []byte("needle"))
	}
	got := reduce(input, accepts, true)
	if want := []byte("needle"); !bytes.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestReduce_LowersBytesLexicographically(t *testing.T) {
	input := []byte{200, 200, 200}
	accepts := func(candidate []byte) bool {
		return len(candidate) == 3 && candidate[0] >= 100
	}
	got := reduce(input, accepts, false)
	if want := []byte{100, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestReduce_AcceptingEverythingShrinksToNothing(t *testing.T) {
	input := []byte("anything at all\nreally\n")
	accepts := func([]byte) bool { return true }
	if got := reduce(input, accepts, true); len(got) != 0 {
		t.Errorf("expected an empty result, got %q", got)
	}
}
