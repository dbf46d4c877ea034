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

import (
	"math"
	"testing"

	"pgregory.net/rand"
)

// randomSource adapts a PRNG to the Source interface for distribution tests.
type randomSource struct{ rnd *rand.Rand }

func (r randomSource) DrawIntegerRange(lo, hi int64) int64 {
	return lo + r.rnd.Int63n(hi-lo+1)
}

func (r randomSource) DrawBooleanP(p float64) bool {
	return r.rnd.Float64() < p
}

// scriptedSource replays a fixed sequence of draws.
type scriptedSource struct {
	ints  []int64
	bools []bool
}

func (s *scriptedSource) DrawIntegerRange(lo, hi int64) int64 {
	v := s.ints[0]
	s.ints = s.ints[1:]
	if v < lo || v > hi {
		panic("scripted draw out of range")
	}
	return v
}

func (s *scriptedSource) DrawBooleanP(float64) bool {
	v := s.bools[0]
	s.bools = s.bools[1:]
	return v
}

func TestSampler_TableRowsKeepBaseBelowAlternate(t *testing.T) {
	weights := [][]float64{
		{1},
		{1, 1},
		{1, 2, 3},
		{0.1, 0.9},
		{5, 0, 5},
		{1, 1, 1, 1, 1, 1, 1},
	}
	for _, w := range weights {
		s := NewSampler(w)
		if s.Len() != len(w) {
			t.Fatalf("sampler for %v has %d rows, want %d", w, s.Len(), len(w))
		}
		for i := 0; i < s.Len(); i++ {
			row, alt := s.table[i].base, s.table[i].alternate
			if row > alt {
				t.Errorf("row %d of sampler for %v has base %d above alternate %d", i, w, row, alt)
			}
			if i > 0 {
				prev := s.table[i-1]
				if prev.base > s.table[i].base ||
					(prev.base == s.table[i].base && prev.alternate > s.table[i].alternate) {
					t.Errorf("rows %d and %d of sampler for %v are out of order", i-1, i, w)
				}
			}
		}
	}
}

func TestSampler_ZeroWeightIsNeverSampled(t *testing.T) {
	s := NewSampler([]float64{1, 0, 2})
	for row := 0; row < s.Len(); row++ {
		// Index 1 has weight zero, so any row able to produce it must do so
		// with probability zero.
		if s.table[row].base == 1 && s.Chance(row) < 1 {
			t.Errorf("row %d picks the zero weight index as base with probability %f", row, 1-s.Chance(row))
		}
		if s.table[row].alternate == 1 && s.Chance(row) > 0 {
			t.Errorf("row %d picks the zero weight index as alternate with probability %f", row, s.Chance(row))
		}
	}
}

func TestSampler_SampleMatchesWeights(t *testing.T) {
	rnd := rand.New(0)
	src := randomSource{rnd}
	s := NewSampler([]float64{1, 3})
	const n = 20000
	count := 0
	for i := 0; i < n; i++ {
		if s.Sample(src) == 1 {
			count++
		}
	}
	got := float64(count) / n
	if math.Abs(got-0.75) > 0.02 {
		t.Errorf("index 1 sampled with frequency %f, want about 0.75", got)
	}
}

func TestSampler_FindRowRoundTrips(t *testing.T) {
	weights := [][]float64{
		{1, 1},
		{1, 2, 3, 4},
		{0.5, 0.25, 0.25},
		{10, 1, 1, 1, 1},
	}
	for _, w := range weights {
		s := NewSampler(w)
		for index := range w {
			row, useAlt := s.FindRow(index)
			src := &scriptedSource{ints: []int64{int64(row)}, bools: []bool{useAlt}}
			if got := s.Sample(src); got != index {
				t.Errorf("FindRow(%d) on %v gave row %d alt %t decoding to %d", index, w, row, useAlt, got)
			}
		}
	}
}

func TestSampler_MinimalDrawsYieldSmallestOutcomes(t *testing.T) {
	s := NewSampler([]float64{2, 1, 1})
	src := &scriptedSource{ints: []int64{0}, bools: []bool{false}}
	if got := s.Sample(src); got != 0 {
		t.Errorf("the all-minimal draw sampled index %d, want 0", got)
	}
}
