// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package shrink

import "math"

// Float tries value-level simplifications of a float that correspond to
// large jumps in its lexicographic encoding: replacing NaN and infinities
// with the largest finite value, snapping to the neighbouring integers, and
// stepping down by one. The predicate decides acceptance (and, through the
// tape, enforces that each step is an actual reduction); f is assumed to be
// accepted already. Returns the final accepted value.
func Float(f float64, predicate func(float64) bool) float64 {
	if math.IsNaN(f) {
		for _, g := range []float64{math.Inf(1), math.MaxFloat64} {
			if predicate(g) {
				f = g
				break
			}
		}
	}
	if math.IsInf(f, 1) {
		if !predicate(math.MaxFloat64) {
			return f
		}
		f = math.MaxFloat64
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	for _, g := range []float64{math.Floor(f), math.Ceil(f)} {
		if g != f && predicate(g) {
			return g
		}
	}
	if f > 2 && predicate(f-1) {
		f = f - 1
	}
	return f
}
