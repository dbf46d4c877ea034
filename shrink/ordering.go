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
	"bytes"
	"sort"
)

// Ordering moves a sequence of byte strings toward sorted order while the
// predicate keeps accepting it. It first offers the fully sorted sequence;
// failing that, it runs one greedy pass of adjacent swaps, never moving an
// element across one the predicate needs stationary. The initial sequence
// is assumed to satisfy the predicate; the best accepted ordering is
// returned.
func Ordering(pieces [][]byte, predicate func([][]byte) bool) [][]byte {
	current := clonePieces(pieces)
	if sort.SliceIsSorted(current, func(i, j int) bool {
		return bytes.Compare(current[i], current[j]) < 0
	}) {
		return current
	}

	sorted := clonePieces(current)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	if predicate(sorted) {
		return sorted
	}

	for i := 0; i+1 < len(current); i++ {
		for j := i + 1; j > 0; j-- {
			if bytes.Compare(current[j-1], current[j]) <= 0 {
				continue
			}
			candidate := clonePieces(current)
			candidate[j], candidate[j-1] = candidate[j-1], candidate[j]
			if predicate(candidate) {
				current = candidate
			}
		}
	}
	return current
}

func clonePieces(pieces [][]byte) [][]byte {
	res := make([][]byte, len(pieces))
	copy(res, pieces)
	return res
}
