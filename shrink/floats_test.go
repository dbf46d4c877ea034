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

import (
	"math"
	"testing"
)

func TestFloat_Shrinks(t *testing.T) {
	tests := map[string]struct {
		initial   float64
		predicate func(float64) bool
		want      float64
	}{
		"nan becomes finite": {
			initial:   math.NaN(),
			predicate: func(float64) bool { return true },
			want:      math.MaxFloat64,
		},
		"nan stays when nothing else matches": {
			initial:   math.NaN(),
			predicate: math.IsNaN,
			want:      math.NaN(),
		},
		"infinity becomes max float": {
			initial:   math.Inf(1),
			predicate: func(f float64) bool { return f > 1e300 },
			want:      math.MaxFloat64,
		},
		"fraction floors": {
			initial:   3.5,
			predicate: func(f float64) bool { return f >= 3 },
			want:      3,
		},
		"fraction ceils when floor rejected": {
			initial:   3.5,
			predicate: func(f float64) bool { return f >= 3.5 },
			want:      4,
		},
		"integer steps down by one": {
			initial:   10,
			predicate: func(f float64) bool { return f >= 8.5 },
			want:      9,
		},
		"small integers stay": {
			initial:   2,
			predicate: func(f float64) bool { return f >= 1.5 },
			want:      2,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := Float(test.initial, test.predicate)
			if math.IsNaN(test.want) {
				if !math.IsNaN(got) {
					t.Errorf("got %v, want NaN", got)
				}
				return
			}
			if got != test.want {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}
