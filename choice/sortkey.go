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

import "bytes"

// Compare orders two tapes in shortlex order: a shorter tape always
// precedes a longer one, and tapes of equal length compare byte-wise.
// This is the total order the shrinker minimizes: shorter means fewer
// decisions were made, and ties are broken towards lowering early draws,
// which have the most influence on the rest of the tape.
//
// The result is -1, 0 or +1.
func Compare(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

// Simpler reports whether tape a is strictly simpler than tape b in
// shortlex order.
func Simpler(a, b []byte) bool {
	return Compare(a, b) < 0
}
