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
	"math/big"
	"testing"
)

func TestFindInteger_FindsExactBoundary(t *testing.T) {
	for _, boundary := range []int{0, 1, 2, 3, 4, 5, 7, 8, 10, 100, 1 << 16} {
		calls := 0
		got := FindInteger(func(n int) bool {
			calls++
			return n <= boundary
		})
		if got != boundary {
			t.Errorf("boundary %d: got %d", boundary, got)
		}
		if boundary > 0 && calls > 4*64 {
			t.Errorf("boundary %d: %d calls, expected logarithmic cost", boundary, calls)
		}
	}
}

func TestMinimizeInteger_FindsThreshold(t *testing.T) {
	tests := map[string]struct {
		start     uint64
		threshold uint64
	}{
		"already minimal": {start: 0, threshold: 0},
		"one":             {start: 1, threshold: 0},
		"small":           {start: 10, threshold: 7},
		"boundary at one": {start: 1000, threshold: 1},
		"large":           {start: 1 << 40, threshold: 12345},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := minimizeInteger(test.start, func(v uint64) bool {
				return v >= test.threshold
			})
			if got != test.threshold {
				t.Errorf("got %d, want %d", got, test.threshold)
			}
		})
	}
}

func TestMinimizeBig_FindsThreshold(t *testing.T) {
	start := new(big.Int).Lsh(big.NewInt(1), 100)
	threshold := big.NewInt(987654321)
	got := minimizeBig(start, func(v *big.Int) bool {
		return v.Cmp(threshold) >= 0
	})
	if got.Cmp(threshold) != 0 {
		t.Errorf("got %v, want %v", got, threshold)
	}
}

func TestBigToBytes_EnforcesSize(t *testing.T) {
	if bs, ok := bigToBytes(big.NewInt(0x1234), 4); !ok {
		t.Fatalf("conversion failed")
	} else if len(bs) != 4 || bs[2] != 0x12 || bs[3] != 0x34 {
		t.Errorf("unexpected encoding %v", bs)
	}
	if _, ok := bigToBytes(big.NewInt(0x12345), 2); ok {
		t.Errorf("oversized value accepted")
	}
}
