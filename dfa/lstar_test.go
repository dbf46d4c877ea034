// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package dfa

import (
	"bytes"
	"testing"

	"pgregory.net/rand"
)

// enumerate returns all strings over the given alphabet up to maxLen.
func enumerate(alphabet []byte, maxLen int) [][]byte {
	res := [][]byte{nil}
	frontier := [][]byte{nil}
	for k := 0; k < maxLen; k++ {
		var next [][]byte
		for _, s := range frontier {
			for _, c := range alphabet {
				e := append(append([]byte(nil), s...), c)
				next = append(next, e)
				res = append(res, e)
			}
		}
		frontier = next
	}
	return res
}

func learnOn(t *testing.T, oracle func([]byte) bool, samples [][]byte) *LStar {
	t.Helper()
	l := NewLStar(oracle)
	l.LearnAll(samples)
	for _, s := range samples {
		if got := Matches(l.DFA(), s); got != oracle(s) {
			t.Fatalf("model disagrees with oracle on %v: got %t", s, got)
		}
	}
	return l
}

func TestLStar_LearnsEvenLength(t *testing.T) {
	oracle := func(s []byte) bool { return len(s)%2 == 0 }
	l := learnOn(t, oracle, enumerate([]byte{0, 1}, 4))

	c := NewAutomaton(l.DFA()).Canonicalize()
	if c.NumStates() != 2 {
		t.Errorf("even-length language needs 2 states, got %d", c.NumStates())
	}
	if !Matches(c, make([]byte, 10)) || Matches(c, make([]byte, 11)) {
		t.Errorf("canonical model does not generalize to longer strings")
	}
}

func TestLStar_LearnsContainment(t *testing.T) {
	oracle := func(s []byte) bool { return bytes.Contains(s, []byte{7}) }
	samples := enumerate([]byte{0, 7}, 3)
	l := learnOn(t, oracle, samples)

	d := l.DFA()
	if Matches(d, nil) || !Matches(d, []byte{0, 7, 0}) {
		t.Errorf("model wrong on basic members")
	}
}

func TestLStar_CollapsesUndistinguishedBytes(t *testing.T) {
	// Any byte below 10 behaves the same, as does any byte from 10 up.
	oracle := func(s []byte) bool {
		return len(s) == 1 && s[0] >= 10
	}
	l := NewLStar(oracle)
	l.LearnAll([][]byte{nil, {0}, {9}, {10}, {200}, {10, 10}})

	d := l.DFA()
	for _, c := range []byte{10, 11, 42, 255} {
		if !Matches(d, []byte{c}) {
			t.Errorf("byte %d should be accepted", c)
		}
	}
	for _, c := range []byte{0, 5, 9} {
		if Matches(d, []byte{c}) {
			t.Errorf("byte %d should be rejected", c)
		}
	}
}

func TestLStar_GeneralizesFromRandomSamples(t *testing.T) {
	oracle := func(s []byte) bool {
		return len(s) >= 2 && s[0] == s[len(s)-1]
	}
	rnd := rand.New(0)
	var samples [][]byte
	for i := 0; i < 200; i++ {
		s := make([]byte, rnd.Intn(5))
		for j := range s {
			s[j] = byte(rnd.Intn(2))
		}
		samples = append(samples, s)
	}
	learnOn(t, oracle, samples)
}

func TestLStar_UsingStaleDFAPanics(t *testing.T) {
	l := NewLStar(func(s []byte) bool {
		return len(s) > 0 && s[len(s)-1] == 1
	})
	stale := l.DFA()
	l.Learn([]byte{1})
	if l.DFA() == stale {
		t.Fatalf("learning did not produce a new model")
	}
	defer func() {
		if recover() != ErrStaleDFA {
			t.Errorf("expected ErrStaleDFA panic")
		}
	}()
	stale.Start()
}

func TestIntegerNormalizer_DistinguishSplitsAtBoundary(t *testing.T) {
	n := NewIntegerNormalizer()
	if n.Normalize(200) != 0 {
		t.Fatalf("fresh normalizer should collapse everything to zero")
	}
	test := func(c byte) bool { return c >= 10 }
	if !n.Distinguish(20, test) {
		t.Fatalf("distinguishable byte not distinguished")
	}
	if got := n.Normalize(15); got != 10 {
		t.Errorf("Normalize(15) = %d, want 10", got)
	}
	if got := n.Normalize(9); got != 0 {
		t.Errorf("Normalize(9) = %d, want 0", got)
	}
	if n.Distinguish(15, test) {
		t.Errorf("already equivalent byte distinguished again")
	}
}
