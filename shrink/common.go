// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package shrink turns an interesting execution into a minimal one. It
// contains the byte-level minimization primitives and the multi-pass
// shrinker driving them against a re-executing harness.
package shrink

import "math/big"

// FindInteger finds a (hopefully large) n such that f(n) holds and f(n+1)
// does not. f(0) is assumed to hold and is never called. The cost is
// logarithmic in the result, with a small linear scan first since most
// results are tiny and a binary search would pay double for them.
func FindInteger(f func(int) bool) int {
	for i := 1; i <= 4; i++ {
		if !f(i) {
			return i - 1
		}
	}
	lo := 4
	hi := 8
	for f(hi) {
		lo = hi
		hi *= 2
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if f(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// minimizeInteger finds the smallest value accepted by f, starting from c
// which f is known to accept. It bets on a monotonic threshold and binary
// searches for it, probing the cheap candidates 0, 1, c-1 and c-2 first.
func minimizeInteger(c uint64, f func(uint64) bool) uint64 {
	if c == 0 {
		return 0
	}
	if f(0) {
		return 0
	}
	if c == 1 || f(1) {
		return 1
	}
	if c == 2 {
		return 2
	}
	var hi uint64
	switch {
	case f(c - 1):
		hi = c - 1
	case f(c - 2):
		hi = c - 2
	default:
		return c
	}
	lo := uint64(1)
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if f(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// minimizeBig is minimizeInteger over arbitrary precision values, used for
// tape blocks longer than eight bytes.
func minimizeBig(c *big.Int, f func(*big.Int) bool) *big.Int {
	one := big.NewInt(1)
	two := big.NewInt(2)
	if c.Sign() == 0 {
		return c
	}
	if f(new(big.Int)) {
		return new(big.Int)
	}
	if c.Cmp(one) == 0 || f(one) {
		return one
	}
	if c.Cmp(two) == 0 {
		return two
	}
	hi := new(big.Int).Sub(c, one)
	if !f(hi) {
		hi.Sub(c, two)
		if !f(hi) {
			return c
		}
	}
	lo := big.NewInt(1)
	gap := new(big.Int)
	for gap.Sub(hi, lo); gap.Cmp(one) > 0; gap.Sub(hi, lo) {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if f(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// binSearch narrows the point at which f changes value between lo and hi,
// calling f purely for its side effects. If f agrees on both bounds nothing
// is narrowed.
func binSearch(lo, hi int, f func(int) bool) {
	loVal := f(lo)
	if loVal == f(hi) {
		return
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if f(mid) == loVal {
			lo = mid
		} else {
			hi = mid
		}
	}
}

// bigFromBytes reads a big-endian unsigned integer from a tape block.
func bigFromBytes(bs []byte) *big.Int {
	return new(big.Int).SetBytes(bs)
}

// bigToBytes writes v as a big-endian block of exactly size bytes. It
// reports failure when v does not fit.
func bigToBytes(v *big.Int, size int) ([]byte, bool) {
	bs := v.Bytes()
	if len(bs) > size {
		return nil, false
	}
	res := make([]byte, size)
	copy(res[size-len(bs):], bs)
	return res, true
}
