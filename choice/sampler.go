// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package choice

import "sort"

// Sampler draws an index with the relative weights it was built from, using
// Vose's alias method: a table of (base, alternate, chance) triples, one per
// weight, where a uniformly chosen row yields its alternate with the stored
// chance and its base otherwise.
//
// Two invariants keep draws shrink-friendly:
//
//  1. the table is sorted by (base, alternate), so choosing an earlier row
//     never increases the outcome, and
//  2. base < alternate within a row, so shrinking the coin that selects the
//     alternate lowers the outcome.
type Sampler struct {
	table []aliasEntry
}

type aliasEntry struct {
	base, alternate int
	chance          float64
}

// Source is the draw capability a Sampler needs; *data.ConjectureData
// satisfies it.
type Source interface {
	DrawIntegerRange(lo, hi int64) int64
	DrawBooleanP(p float64) bool
}

// NewSampler builds the alias table for the given relative weights. Weights
// must be non-negative and sum to something positive.
func NewSampler(weights []float64) *Sampler {
	n := len(weights)
	table := make([]aliasEntry, n)
	for i := range table {
		table[i] = aliasEntry{base: i, alternate: -1}
	}

	var total float64
	for _, w := range weights {
		total += w
	}

	scaled := make([]float64, n)
	var small, large []int
	for i, w := range weights {
		scaled[i] = w / total * float64(n)
		switch {
		case scaled[i] == 1:
			table[i].chance = 0
			table[i].alternate = i
		case scaled[i] < 1:
			small = append(small, i)
		default:
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		lo := small[len(small)-1]
		small = small[:len(small)-1]
		hi := large[len(large)-1]
		large = large[:len(large)-1]

		table[lo].alternate = hi
		table[lo].chance = 1 - scaled[lo]
		scaled[hi] = (scaled[hi] + scaled[lo]) - 1

		switch {
		case scaled[hi] < 1:
			small = append(small, hi)
		case scaled[hi] == 1:
			table[hi].chance = 0
			table[hi].alternate = hi
		default:
			large = append(large, hi)
		}
	}
	// Numerical leftovers are certain picks of their own base.
	for _, i := range append(small, large...) {
		table[i].chance = 0
		table[i].alternate = i
	}

	for i := range table {
		if table[i].alternate < table[i].base {
			table[i].base, table[i].alternate = table[i].alternate, table[i].base
			table[i].chance = 1 - table[i].chance
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].base != table[j].base {
			return table[i].base < table[j].base
		}
		return table[i].alternate < table[j].alternate
	})

	return &Sampler{table: table}
}

// Sample draws one index from src with the sampler's distribution.
func (s *Sampler) Sample(src Source) int {
	e := s.table[src.DrawIntegerRange(0, int64(len(s.table)-1))]
	// The coin is flipped even when the chance is zero, so that every row
	// consumes the same tape layout and shrinking the row index never
	// misaligns later draws.
	if src.DrawBooleanP(e.chance) {
		return e.alternate
	}
	return e.base
}

// Len returns the number of table rows (one per weight).
func (s *Sampler) Len() int { return len(s.table) }

// Chance returns the alternate-pick probability of the given row.
func (s *Sampler) Chance(row int) float64 { return s.table[row].chance }

// FindRow locates a row that can produce the given index and reports
// whether the coin must select the alternate. Every index appears in at
// least one row; forced draws use this to write a canonical encoding.
func (s *Sampler) FindRow(index int) (row int, useAlternate bool) {
	for i, e := range s.table {
		if e.base == index && e.chance < 1 {
			return i, false
		}
	}
	for i, e := range s.table {
		if e.alternate == index && e.chance > 0 {
			return i, true
		}
	}
	// Index only occurs with zero probability, pick any structural match.
	for i, e := range s.table {
		if e.base == index {
			return i, false
		}
		if e.alternate == index {
			return i, true
		}
	}
	panic("sampler: index not present in alias table")
}
