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

// Length deletes elements from a sequence while the predicate keeps
// accepting it, in linearly many evaluations. At a fixpoint no single
// element and no adjacent pair of elements can be deleted. Elements proven
// required are skipped for the remainder of the pass so they are never
// retried. The initial sequence is assumed to satisfy the predicate.
func Length[E any](elements []E, predicate func([]E) bool) []E {
	current := append([]E(nil), elements...)
	if len(current) > 0 && predicate(nil) {
		return nil
	}
	if len(current) <= 1 {
		return current
	}

	consider := func(candidate []E) bool {
		if len(candidate) >= len(current) {
			return len(candidate) == len(current)
		}
		if predicate(candidate) {
			current = candidate
			return true
		}
		return false
	}

	// Starting from the right, delete as many consecutive elements as
	// possible. An element that cannot be deleted is skipped for the rest
	// of the pass and deletion continues to its left. This misses some
	// deletions that would need skipped elements gone first, but finishes
	// in linear time.
	skipped := 0
	for skipped < len(current) {
		candidates := len(current) - skipped
		start := current
		FindInteger(func(k int) bool {
			if k > candidates {
				return false
			}
			candidate := make([]E, 0, len(start)-k)
			candidate = append(candidate, start[:candidates-k]...)
			candidate = append(candidate, start[candidates:]...)
			return consider(candidate)
		})
		skipped++
	}
	return current
}
