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
	"sort"
	"testing"
)

// endsInOne accepts all strings over {0, 1} whose last byte is 1.
func endsInOne() *ConcreteDFA {
	return NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 0, To: 0}, {Lo: 1, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 0, To: 0}, {Lo: 1, Hi: 1, To: 1}},
	}, []bool{false, true})
}

// exactlyTwoBits accepts exactly the four strings of length two over {0, 1}.
func exactlyTwoBits() *ConcreteDFA {
	return NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 1, To: 2}},
		{},
	}, []bool{false, false, true})
}

// literal accepts exactly the given string.
func literal(s []byte) *ConcreteDFA {
	transitions := make([][]Transition, len(s)+1)
	accepting := make([]bool, len(s)+1)
	for i, c := range s {
		transitions[i] = []Transition{{Lo: c, Hi: c, To: i + 1}}
	}
	accepting[len(s)] = true
	return NewConcreteDFA(transitions, accepting)
}

func TestConcreteDFA_Matches(t *testing.T) {
	d := endsInOne()
	tests := map[string]struct {
		input []byte
		want  bool
	}{
		"empty":             {input: nil, want: false},
		"single one":        {input: []byte{1}, want: true},
		"single zero":       {input: []byte{0}, want: false},
		"ends in one":       {input: []byte{0, 0, 1}, want: true},
		"ends in zero":      {input: []byte{1, 1, 0}, want: false},
		"outside alphabet":  {input: []byte{2}, want: false},
		"dead then revived": {input: []byte{2, 1}, want: false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Matches(d, test.input); got != test.want {
				t.Errorf("got %t, want %t", got, test.want)
			}
		})
	}
}

func TestAutomaton_MaxLengthAndCounts(t *testing.T) {
	finite := NewAutomaton(exactlyTwoBits())
	if max, ok := finite.MaxLength(finite.Start()); !ok || max != 2 {
		t.Errorf("got max length %d (finite %t), want 2", max, ok)
	}
	for k, want := range map[int]int64{0: 0, 1: 0, 2: 4, 3: 0} {
		if got := finite.CountStrings(finite.Start(), k); got.Int64() != want {
			t.Errorf("count of length %d strings is %v, want %d", k, got, want)
		}
	}

	infinite := NewAutomaton(endsInOne())
	if _, ok := infinite.MaxLength(infinite.Start()); ok {
		t.Errorf("language with a productive loop reported as finite")
	}
	for k, want := range map[int]int64{0: 0, 1: 1, 2: 2, 3: 4} {
		if got := infinite.CountStrings(infinite.Start(), k); got.Int64() != want {
			t.Errorf("count of length %d strings is %v, want %d", k, got, want)
		}
	}
}

func TestAutomaton_DeadStates(t *testing.T) {
	// State 2 loops on itself without ever accepting.
	d := NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 0, To: 1}, {Lo: 1, Hi: 1, To: 2}},
		{},
		{{Lo: 0, Hi: 255, To: 2}},
	}, []bool{false, true, false})
	a := NewAutomaton(d)

	if a.IsDead(0) || a.IsDead(1) {
		t.Errorf("live states reported dead")
	}
	if !a.IsDead(2) {
		t.Errorf("unproductive loop not reported dead")
	}
	if trs := a.Transitions(0); len(trs) != 1 || trs[0].To != 1 {
		t.Errorf("transitions should skip dead targets, got %v", trs)
	}
}

func TestAutomaton_MatchingRegions(t *testing.T) {
	a := NewAutomaton(literal([]byte("ab")))
	got := a.MatchingRegions([]byte("abxab"))
	sort.Slice(got, func(i, j int) bool { return got[i][0] < got[j][0] })
	want := [][2]int{{0, 2}, {3, 5}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region %d is %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAutomaton_MatchingRegionsIncludesEmptyMatches(t *testing.T) {
	a := NewAutomaton(literal(nil))
	got := a.MatchingRegions([]byte{5, 6})
	if len(got) != 2 {
		t.Errorf("expected one empty region per offset, got %v", got)
	}
}

func TestEquivalent(t *testing.T) {
	// The same language as endsInOne with permuted, redundant states.
	permuted := NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 0, To: 2}, {Lo: 1, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 0, To: 2}, {Lo: 1, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 0, To: 0}, {Lo: 1, Hi: 1, To: 1}},
	}, []bool{false, true, false})

	if !Equivalent(endsInOne(), permuted) {
		t.Errorf("equal languages reported different")
	}
	if Equivalent(endsInOne(), exactlyTwoBits()) {
		t.Errorf("different languages reported equal")
	}
	if !Equivalent(exactlyTwoBits(), exactlyTwoBits()) {
		t.Errorf("automaton not equivalent to itself")
	}
}

func TestCanonicalize_NormalizesStateNumbering(t *testing.T) {
	permuted := NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 0, To: 2}, {Lo: 1, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 0, To: 2}, {Lo: 1, Hi: 1, To: 1}},
		{{Lo: 0, Hi: 0, To: 0}, {Lo: 1, Hi: 1, To: 1}},
	}, []bool{false, true, false})

	c1 := NewAutomaton(endsInOne()).Canonicalize()
	c2 := NewAutomaton(permuted).Canonicalize()
	if !Equivalent(c1, c2) {
		t.Fatalf("canonical forms differ in language")
	}
	if c1.NumStates() != 2 || c2.NumStates() != 3 {
		t.Errorf("got %d and %d states", c1.NumStates(), c2.NumStates())
	}
}

func TestCanonicalize_PrunesDeadStates(t *testing.T) {
	withDead := NewConcreteDFA([][]Transition{
		{{Lo: 0, Hi: 0, To: 1}, {Lo: 1, Hi: 1, To: 2}},
		{},
		{{Lo: 0, Hi: 255, To: 2}},
	}, []bool{false, true, false})

	c := NewAutomaton(withDead).Canonicalize()
	if c.NumStates() != 2 {
		t.Errorf("dead state survived, got %d states", c.NumStates())
	}
}
