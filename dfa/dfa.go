// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package dfa provides deterministic finite automata over byte strings,
// random access into their languages in shortlex order, and the L*
// algorithm for learning an automaton from a membership oracle. It is
// offline analysis machinery: correct and convenient rather than fast.
package dfa

import (
	"math/big"
	"sort"
)

// Dead is the sink state reached once no continuation of the input can be
// accepted. Every DFA must map Dead to itself and report it non-accepting.
const Dead = -1

// DFA is a deterministic automaton over bytes with integer states. States
// may be produced lazily by the implementation; the automaton only has to
// answer the three local questions below.
type DFA interface {
	Start() int
	IsAccepting(state int) bool
	Transition(state int, c byte) int
}

// Matches reports whether the automaton accepts s.
func Matches(d DFA, s []byte) bool {
	i := d.Start()
	for _, c := range s {
		i = d.Transition(i, c)
	}
	return d.IsAccepting(i)
}

// Transition is one entry of a state's transition table, covering the
// inclusive byte range [Lo, Hi].
type Transition struct {
	Lo, Hi byte
	To     int
}

// Automaton wraps a DFA with the derived analyses (dead states, string
// counts, maximum lengths), all memoized. The underlying language must not
// change while the wrapper is in use.
type Automaton struct {
	DFA

	dead      map[int]bool
	reachable map[int]map[int]bool
	maxLength map[int]lengthBound
	counts    map[[2]int]*big.Int
}

type lengthBound struct {
	length   int
	infinite bool
}

func NewAutomaton(d DFA) *Automaton {
	return &Automaton{
		DFA:       d,
		dead:      map[int]bool{},
		reachable: map[int]map[int]bool{},
		maxLength: map[int]lengthBound{},
		counts:    map[[2]int]*big.Int{},
	}
}

// Matches reports whether the automaton accepts s.
func (a *Automaton) Matches(s []byte) bool {
	return Matches(a.DFA, s)
}

// Transitions returns the outgoing transitions of state i that do not lead
// to dead states, as byte ranges in ascending order.
func (a *Automaton) Transitions(i int) []Transition {
	var res []Transition
	for c := 0; c < 256; c++ {
		j := a.Transition(i, byte(c))
		if j == Dead || a.IsDead(j) {
			continue
		}
		if n := len(res); n > 0 && res[n-1].To == j && int(res[n-1].Hi) == c-1 {
			res[n-1].Hi = byte(c)
			continue
		}
		res = append(res, Transition{Lo: byte(c), Hi: byte(c), To: j})
	}
	return res
}

// Reachable returns the states reachable from i by a non-empty string,
// including i itself if it lies on a cycle.
func (a *Automaton) Reachable(i int) map[int]bool {
	if r, ok := a.reachable[i]; ok {
		return r
	}
	reached := map[int]bool{}
	queue := []int{i}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		for c := 0; c < 256; c++ {
			k := a.Transition(j, byte(c))
			if k == Dead || reached[k] {
				continue
			}
			reached[k] = true
			if k != i {
				queue = append(queue, k)
			}
		}
	}
	a.reachable[i] = reached
	return reached
}

// IsDead reports whether no string at all is accepted from state i.
func (a *Automaton) IsDead(i int) bool {
	if i == Dead {
		return true
	}
	if d, ok := a.dead[i]; ok {
		return d
	}
	dead := !a.IsAccepting(i)
	if dead {
		for j := range a.Reachable(i) {
			if a.IsAccepting(j) {
				dead = false
				break
			}
		}
	}
	a.dead[i] = dead
	return dead
}

// MaxLength returns the length of the longest accepted string starting from
// state i. The second result is false when arbitrarily long strings are
// accepted; a dead state has maximum length zero.
func (a *Automaton) MaxLength(i int) (int, bool) {
	if b, ok := a.maxLength[i]; ok {
		return b.length, !b.infinite
	}
	b := a.computeMaxLength(i)
	a.maxLength[i] = b
	return b.length, !b.infinite
}

func (a *Automaton) computeMaxLength(i int) lengthBound {
	if a.IsDead(i) {
		return lengthBound{}
	}
	if a.Reachable(i)[i] {
		return lengthBound{infinite: true}
	}
	best := lengthBound{length: -1}
	for _, t := range a.Transitions(i) {
		n, finite := a.MaxLength(t.To)
		if !finite {
			return lengthBound{infinite: true}
		}
		if n > best.length {
			best.length = n
		}
	}
	if best.length < 0 {
		// No live successors, so the state itself must accept.
		return lengthBound{}
	}
	return lengthBound{length: best.length + 1}
}

// CountStrings returns the number of strings of length exactly k accepted
// starting from state i.
func (a *Automaton) CountStrings(i, k int) *big.Int {
	if n, ok := a.counts[[2]int{i, k}]; ok {
		return n
	}
	n := new(big.Int)
	switch {
	case k == 0:
		if a.IsAccepting(i) {
			n.SetInt64(1)
		}
	default:
		if max, finite := a.MaxLength(i); !finite || k <= max {
			for _, t := range a.Transitions(i) {
				per := a.CountStrings(t.To, k-1)
				width := int64(t.Hi) - int64(t.Lo) + 1
				n.Add(n, new(big.Int).Mul(per, big.NewInt(width)))
			}
		}
	}
	a.counts[[2]int{i, k}] = n
	return n
}

// MatchingRegions returns all pairs (u, v) with u <= v such that the
// automaton accepts s[u:v], in no particular order.
func (a *Automaton) MatchingRegions(s []byte) [][2]int {
	type frame struct {
		k       int
		state   int
		indices []int
	}
	all := make([]int, len(s))
	for i := range all {
		all[i] = i
	}
	stack := []frame{{0, a.Start(), all}}

	var results [][2]int
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if a.IsDead(f.state) {
			continue
		}
		if a.IsAccepting(f.state) {
			for _, i := range f.indices {
				results = append(results, [2]int{i, i + f.k})
			}
		}
		next := map[int][]int{}
		for _, i := range f.indices {
			if i+f.k < len(s) {
				j := a.Transition(f.state, s[i+f.k])
				next[j] = append(next[j], i)
			}
		}
		for state, indices := range next {
			stack = append(stack, frame{f.k + 1, state, indices})
		}
	}
	return results
}

// Canonicalize returns a concrete copy of the automaton with dead states
// pruned and the remaining states relabelled in breadth first search order.
// The result is not minimized, but two minimal automata for the same
// language canonicalize to identical representations regardless of how
// their states happened to be numbered.
func (a *Automaton) Canonicalize() *ConcreteDFA {
	stateMap := map[int]int{a.Start(): 0}
	order := []int{a.Start()}

	for at := 0; at < len(order); at++ {
		for _, t := range a.Transitions(order[at]) {
			if _, ok := stateMap[t.To]; !ok {
				stateMap[t.To] = len(order)
				order = append(order, t.To)
			}
		}
	}

	transitions := make([][]Transition, len(order))
	accepting := make([]bool, len(order))
	for i, state := range order {
		accepting[i] = a.IsAccepting(state)
		for _, t := range a.Transitions(state) {
			transitions[i] = append(transitions[i],
				Transition{Lo: t.Lo, Hi: t.Hi, To: stateMap[t.To]})
		}
	}
	return NewConcreteDFA(transitions, accepting)
}

// Equivalent reports whether the two automata accept exactly the same
// language, following Hopcroft and Karp: speculatively merge the start
// states, propagate merges along matching transitions, and fail on the
// first merge of an accepting state with a non-accepting one.
func Equivalent(a, b DFA) bool {
	type key struct {
		side  int
		state int
	}
	parent := map[key]key{}
	var find func(key) key
	find = func(k key) key {
		p, ok := parent[k]
		if !ok || p == k {
			return k
		}
		root := find(p)
		parent[k] = root
		return root
	}

	type pair struct{ sa, sb int }
	queue := []pair{{a.Start(), b.Start()}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		ka := find(key{0, p.sa})
		kb := find(key{1, p.sb})
		if ka == kb {
			continue
		}
		if a.IsAccepting(p.sa) != b.IsAccepting(p.sb) {
			return false
		}
		parent[ka] = kb
		for c := 0; c < 256; c++ {
			queue = append(queue, pair{
				a.Transition(p.sa, byte(c)),
				b.Transition(p.sb, byte(c)),
			})
		}
	}
	return true
}

// ConcreteDFA stores states in an arena indexed by dense integers, with
// transition tables of sorted byte ranges.
type ConcreteDFA struct {
	start       int
	accepting   []bool
	transitions [][]Transition
}

// NewConcreteDFA builds an automaton from explicit transition tables.
// transitions[i] lists the outgoing ranges of state i sorted by Lo; bytes
// not covered by any range lead to Dead. The start state is 0.
func NewConcreteDFA(transitions [][]Transition, accepting []bool) *ConcreteDFA {
	if len(transitions) != len(accepting) {
		panic("dfa: transition table and accepting flags disagree on state count")
	}
	return &ConcreteDFA{accepting: accepting, transitions: transitions}
}

func (d *ConcreteDFA) Start() int {
	return d.start
}

func (d *ConcreteDFA) NumStates() int {
	return len(d.transitions)
}

func (d *ConcreteDFA) IsAccepting(i int) bool {
	return i != Dead && d.accepting[i]
}

func (d *ConcreteDFA) Transition(i int, c byte) int {
	if i == Dead {
		return Dead
	}
	table := d.transitions[i]
	at := sort.Search(len(table), func(k int) bool { return table[k].Hi >= c })
	if at < len(table) && table[at].Lo <= c {
		return table[at].To
	}
	return Dead
}
