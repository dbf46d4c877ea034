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
	"math/bits"
	"sort"
)

// This file implements the lexicographic encoding of non-negative floats
// used on the tape. The encoding is a tagged union selected by the top bit
// of a 64-bit word:
//
//   - Tag 0: the low 56 bits are an integer, converted directly to a float.
//     Small non-negative integers therefore come first in lexicographic
//     order and shrink like integers.
//   - Tag 1: a permuted IEEE representation. Exponents are reordered so all
//     non-negative unbiased exponents come first in increasing order,
//     followed by negative exponents in decreasing order, with the maximum
//     (inf/NaN) exponent last. Mantissa bits covering the fractional part
//     are bit-reversed so that lowering the encoding kills high powers of
//     two in the fraction first.
//
// The net effect is that lexicographic order on the encoding agrees with a
// useful "simplicity" order on floats: integers before fractions, small
// before large, finite before infinite, everything before NaN.

const (
	maxExponent  = 0x7ff
	exponentBias = 1023
	mantissaMask = (uint64(1) << 52) - 1
	maxSimple    = uint64(1) << 56
)

// CanonicalNaN is the single bit pattern all NaN draws are canonicalized to.
var CanonicalNaN = math.Float64frombits(0x7ff8000000000000)

var (
	// decodingTable maps an encoded exponent to the IEEE exponent it stands
	// for; encodingTable is its inverse.
	decodingTable [maxExponent + 1]uint16
	encodingTable [maxExponent + 1]uint16
)

func init() {
	exponents := make([]int, maxExponent+1)
	for e := range exponents {
		exponents[e] = e
	}
	sort.SliceStable(exponents, func(i, j int) bool {
		return exponentKey(exponents[i]) < exponentKey(exponents[j])
	})
	for i, e := range exponents {
		decodingTable[i] = uint16(e)
		encodingTable[e] = uint16(i)
	}
}

// exponentKey orders IEEE exponents by simplicity of the floats they encode:
// non-negative unbiased exponents ascending, then negative ones descending,
// with the special inf/NaN exponent last.
func exponentKey(e int) int64 {
	if e == maxExponent {
		return math.MaxInt64
	}
	unbiased := e - exponentBias
	if unbiased < 0 {
		return int64(10000 - unbiased)
	}
	return int64(unbiased)
}

func reverseBits(x uint64, n int) uint64 {
	return bits.Reverse64(x) >> (64 - n)
}

// updateMantissa bit-reverses the fractional part of the mantissa. The
// transformation is an involution, so it is used by both directions of the
// codec.
func updateMantissa(unbiasedExponent int, mantissa uint64) uint64 {
	switch {
	case unbiasedExponent <= 0:
		mantissa = reverseBits(mantissa, 52)
	case unbiasedExponent <= 51:
		nFractionalBits := 52 - unbiasedExponent
		fractionalPart := mantissa & ((uint64(1) << nFractionalBits) - 1)
		mantissa ^= fractionalPart
		mantissa |= reverseBits(fractionalPart, nFractionalBits)
	}
	return mantissa
}

// IsSimpleFloat reports whether f is a non-negative integer small enough
// for the tag-0 integer encoding.
func IsSimpleFloat(f float64) bool {
	if !(f >= 0) || f != math.Trunc(f) {
		return false
	}
	return f < float64(maxSimple)
}

// FloatToLex encodes a non-negative float (NaN with zero sign bit included)
// into its 64-bit lexicographic form.
func FloatToLex(f float64) uint64 {
	if IsSimpleFloat(f) {
		return uint64(f)
	}
	i := math.Float64bits(f) &^ (uint64(1) << 63)
	exponent := i >> 52
	mantissa := updateMantissa(int(exponent)-exponentBias, i&mantissaMask)
	return uint64(1)<<63 | uint64(encodingTable[exponent])<<52 | mantissa
}

// LexToFloat is the inverse of FloatToLex. Every 64-bit value decodes to
// some float, so the tape can never hold an invalid encoding.
func LexToFloat(i uint64) float64 {
	if i>>63 == 0 {
		return float64(i & (maxSimple - 1))
	}
	exponent := uint64(decodingTable[(i>>52)&maxExponent])
	mantissa := updateMantissa(int(exponent)-exponentBias, i&mantissaMask)
	return math.Float64frombits(exponent<<52 | mantissa)
}
