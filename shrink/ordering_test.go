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
	"testing"
)

func piecesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func TestOrdering_SortsWhenUnconstrained(t *testing.T) {
	got := Ordering([][]byte{{3}, {1}, {2}}, func([][]byte) bool { return true })
	if !piecesEqual(got, [][]byte{{1}, {2}, {3}}) {
		t.Errorf("got %v", got)
	}
}

func TestOrdering_LeavesSortedInputAlone(t *testing.T) {
	calls := 0
	got := Ordering([][]byte{{1}, {2}, {3}}, func([][]byte) bool {
		calls++
		return true
	})
	if !piecesEqual(got, [][]byte{{1}, {2}, {3}}) {
		t.Errorf("got %v", got)
	}
	if calls != 0 {
		t.Errorf("sorted input cost %d calls", calls)
	}
}

func TestOrdering_ComparesPiecesLexicographically(t *testing.T) {
	got := Ordering([][]byte{{10}, {9, 9}}, func([][]byte) bool { return true })
	if !piecesEqual(got, [][]byte{{9, 9}, {10}}) {
		t.Errorf("got %v", got)
	}
}

func TestOrdering_SwapsGreedilyWhenFullSortRejected(t *testing.T) {
	// The last piece must stay {2}, so only the first two can be sorted.
	got := Ordering([][]byte{{3}, {1}, {2}}, func(ls [][]byte) bool {
		return bytes.Equal(ls[len(ls)-1], []byte{2})
	})
	if !piecesEqual(got, [][]byte{{1}, {3}, {2}}) {
		t.Errorf("got %v", got)
	}
}
