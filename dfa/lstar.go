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

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/shrink"
)

// ErrStaleDFA is the panic value when a learned automaton is used after
// further learning has invalidated it. Canonicalize a learned automaton to
// keep it past the next Learn call.
const ErrStaleDFA = choice.ConstErr("learned automaton is out of date")

// LStar learns a deterministic automaton for an unknown language from a
// black-box membership oracle, after Angluin with the counterexample
// handling of Rivest and Schapire. States are distinguished by a growing
// list of experiment suffixes; bytes the oracle has never told apart are
// collapsed onto one representative, so alphabets with few distinct roles
// cost few queries.
//
// Learning is by correction: Learn(s) refines the model until it answers
// correctly on s. Corrections on one string may break answers on another,
// but re-learning a fixed set of strings until Generation stops changing
// terminates with a model consistent on all of them.
type LStar struct {
	oracle      func([]byte) bool
	experiments [][]byte
	normalizer  *IntegerNormalizer

	memberCache     map[string]bool
	rowsToCanonical map[string][]byte
	canonicalCache  map[string][]byte

	generation uint64
	dfa        *LearnedDFA
}

func NewLStar(oracle func([]byte) bool) *LStar {
	l := &LStar{
		oracle:          oracle,
		normalizer:      NewIntegerNormalizer(),
		memberCache:     map[string]bool{},
		rowsToCanonical: map[string][]byte{},
		canonicalCache:  map[string][]byte{},
	}
	l.addExperiment(nil)
	return l
}

// Member answers the membership oracle for s, cached for the lifetime of
// the learner.
func (l *LStar) Member(s []byte) bool {
	if v, ok := l.memberCache[string(s)]; ok {
		return v
	}
	v := l.oracle(s)
	l.memberCache[string(s)] = v
	return v
}

// Generation is incremented every time the predicted automaton changes.
func (l *LStar) Generation() uint64 {
	return l.generation
}

// DFA returns the current model. It is invalidated by the next correction;
// call Canonicalize on a wrapping Automaton to keep a snapshot.
func (l *LStar) DFA() *LearnedDFA {
	return l.dfa
}

func (l *LStar) dfaChanged() {
	l.generation++
	l.rowsToCanonical = map[string][]byte{}
	l.canonicalCache = map[string][]byte{}
	l.dfa = newLearnedDFA(l)
}

func (l *LStar) addExperiment(e []byte) {
	l.experiments = append(l.experiments, e)
	l.dfaChanged()
}

// canonicalize maps a string to the chosen representative of its
// equivalence class under the current experiments.
func (l *LStar) canonicalize(s []byte) []byte {
	if c, ok := l.canonicalCache[string(s)]; ok {
		return c
	}
	row := make([]byte, len(l.experiments))
	for i, e := range l.experiments {
		if l.Member(concat(s, e)) {
			row[i] = 1
		}
	}
	canonical, ok := l.rowsToCanonical[string(row)]
	if !ok {
		canonical = append([]byte(nil), s...)
		l.rowsToCanonical[string(row)] = canonical
	}
	l.canonicalCache[string(s)] = canonical
	return canonical
}

// Learn refines the model until it gives the correct answer on s. The
// mispredicted prefix boundary is located with an adaptive exponential
// probe rather than a plain binary search, since mispredictions cluster
// near the beginning; each boundary yields either a newly distinguished
// byte or a new experiment.
func (l *LStar) Learn(s []byte) {
	want := l.Member(s)
	if Matches(l.dfa, s) == want {
		return
	}
	// A messy string is usually wrong for several reasons at once, so
	// repair to a fixed point instead of applying a single correction.
	for {
		dfa := l.dfa
		states := []int{dfa.Start()}

		// After reading n bytes of s, do we seem to be in the right
		// state? Replacing the consumed prefix with the reached state's
		// label swaps a substring for a supposedly equivalent one, so a
		// changed answer pins the first bad transition.
		seemsRight := func(n int) bool {
			if n > len(s) {
				return false
			}
			for n >= len(states) {
				states = append(states, dfa.Transition(states[len(states)-1], s[len(states)-1]))
			}
			return l.Member(concat(dfa.Label(states[n]), s[n:])) == want
		}
		n := shrink.FindInteger(seemsRight)
		if n == len(s) {
			break
		}

		prefix := s[:n]
		suffix := s[n+1:]
		if l.normalizer.Distinguish(s[n], func(x byte) bool {
			return l.Member(concat(prefix, []byte{x}, suffix))
		}) {
			l.dfaChanged()
			continue
		}
		l.addExperiment(suffix)
	}
}

// LearnAll re-learns every string until one full pass leaves the model
// unchanged, at which point the model is consistent on all of them.
func (l *LStar) LearnAll(strings [][]byte) {
	for {
		before := l.generation
		for _, s := range strings {
			l.Learn(s)
		}
		if l.generation == before {
			return
		}
	}
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	res := make([]byte, 0, n)
	for _, p := range parts {
		res = append(res, p...)
	}
	return res
}

// LearnedDFA is the automaton predicted by an LStar model. States are
// labelled by a canonical string that reaches them and materialize lazily
// as the automaton is traversed; two labels share a state exactly when the
// experiments cannot tell them apart.
type LearnedDFA struct {
	lstar      *LStar
	generation uint64

	states      [][]byte
	stateIndex  map[string]int
	transitions map[[2]int]int
}

func newLearnedDFA(l *LStar) *LearnedDFA {
	root := l.canonicalize(nil)
	return &LearnedDFA{
		lstar:       l,
		generation:  l.generation,
		states:      [][]byte{root},
		stateIndex:  map[string]int{string(root): 0},
		transitions: map[[2]int]int{},
	}
}

func (d *LearnedDFA) checkFresh() {
	if d.generation != d.lstar.generation {
		panic(ErrStaleDFA)
	}
}

// Label returns the canonical string reaching state i.
func (d *LearnedDFA) Label(i int) []byte {
	return d.states[i]
}

func (d *LearnedDFA) Start() int {
	d.checkFresh()
	return 0
}

func (d *LearnedDFA) IsAccepting(i int) bool {
	d.checkFresh()
	if i == Dead {
		return false
	}
	return d.lstar.Member(d.states[i])
}

func (d *LearnedDFA) Transition(i int, c byte) int {
	d.checkFresh()
	if i == Dead {
		return Dead
	}
	c = d.lstar.normalizer.Normalize(c)
	key := [2]int{i, int(c)}
	if j, ok := d.transitions[key]; ok {
		return j
	}
	label := d.lstar.canonicalize(concat(d.states[i], []byte{c}))
	j, ok := d.stateIndex[string(label)]
	if !ok {
		j = len(d.states)
		d.states = append(d.states, label)
		d.stateIndex[string(label)] = j
	}
	d.transitions[key] = j
	return j
}

// IntegerNormalizer collapses byte values the oracle has never
// distinguished onto a canonical representative: each value maps to the
// largest known-canonical value not above it.
type IntegerNormalizer struct {
	values []int
}

func NewIntegerNormalizer() *IntegerNormalizer {
	return &IntegerNormalizer{values: []int{0}}
}

// Normalize returns the canonical byte considered equivalent to c.
func (n *IntegerNormalizer) Normalize(c byte) byte {
	at := sort.SearchInts(n.values, int(c)+1) - 1
	return byte(n.values[at])
}

// Distinguish checks whether test tells c apart from its canonical value
// and, if so, records the lowest equivalent value as newly canonical.
// Reports whether the canonical values changed.
func (n *IntegerNormalizer) Distinguish(c byte, test func(byte) bool) bool {
	canonical := n.Normalize(c)
	if canonical == c {
		return false
	}
	want := test(c)
	if test(canonical) == want {
		return false
	}
	lowered := shrink.FindInteger(func(k int) bool {
		candidate := int(c) - k
		if candidate <= int(canonical) {
			return false
		}
		return test(byte(candidate)) == want
	})
	newCanonical := int(c) - lowered
	at := sort.SearchInts(n.values, newCanonical)
	n.values = append(n.values, 0)
	copy(n.values[at+1:], n.values[at:])
	n.values[at] = newCanonical
	return true
}
