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
	"math/big"

	"github.com/conjecture-engine/conjecture/choice"
)

const (
	ErrRankOutOfRange = choice.ConstErr("rank is not below the language size")
	ErrNotInLanguage  = choice.ConstErr("string is not matched by the automaton")
)

// Index presents the language of an automaton as a collection sorted in
// shortlex order, with random access in both directions: the rank-th
// string, and the rank of a string. Ranks are exact, so they are big
// integers; languages may be infinite.
type Index struct {
	a      *Automaton
	length *big.Int
	finite bool
	sized  bool
}

func NewIndex(a *Automaton) *Index {
	return &Index{a: a}
}

// Length returns the number of strings in the language. The second result
// is false when the language is infinite, in which case the count is nil.
func (ix *Index) Length() (*big.Int, bool) {
	if !ix.sized {
		ix.sized = true
		if max, finite := ix.a.MaxLength(ix.a.Start()); finite {
			ix.finite = true
			ix.length = new(big.Int)
			for k := 0; k <= max; k++ {
				ix.length.Add(ix.length, ix.a.CountStrings(ix.a.Start(), k))
			}
		}
	}
	return ix.length, ix.finite
}

// At returns the rank-th string of the language in shortlex order.
func (ix *Index) At(rank *big.Int) ([]byte, error) {
	if rank.Sign() < 0 {
		return nil, ErrRankOutOfRange
	}
	start := ix.a.Start()
	remaining := new(big.Int).Set(rank)

	length := 0
	for {
		n := ix.a.CountStrings(start, length)
		if remaining.Cmp(n) < 0 {
			break
		}
		remaining.Sub(remaining, n)
		length++
		if max, finite := ix.a.MaxLength(start); finite && length > max {
			return nil, ErrRankOutOfRange
		}
	}

	// Walk down the automaton, at each step skipping the subtrees of all
	// smaller bytes. remaining is the rank within strings of this exact
	// length sharing the prefix built so far.
	result := make([]byte, 0, length)
	state := start
	for len(result) < length {
		advanced := false
		for _, t := range ix.a.Transitions(state) {
			for c := int(t.Lo); c <= int(t.Hi); c++ {
				skip := ix.a.CountStrings(t.To, length-len(result)-1)
				if remaining.Cmp(skip) < 0 {
					result = append(result, byte(c))
					state = t.To
					advanced = true
					break
				}
				remaining.Sub(remaining, skip)
			}
			if advanced {
				break
			}
		}
		if !advanced {
			panic("dfa: string count disagrees with transitions")
		}
	}
	return result, nil
}

// Rank returns the position of s in the shortlex order of the language, so
// that At(Rank(s)) == s.
func (ix *Index) Rank(s []byte) (*big.Int, error) {
	if !ix.a.Matches(s) {
		return nil, ErrNotInLanguage
	}
	result := new(big.Int)
	if len(s) == 0 {
		return result, nil
	}
	start := ix.a.Start()
	for k := 0; k < len(s); k++ {
		result.Add(result, ix.a.CountStrings(start, k))
	}
	state := start
	for i, c := range s {
		remainder := len(s) - i - 1
		for d := 0; d < int(c); d++ {
			j := ix.a.Transition(state, byte(d))
			if j == Dead {
				continue
			}
			result.Add(result, ix.a.CountStrings(j, remainder))
		}
		state = ix.a.Transition(state, c)
	}
	return result, nil
}
