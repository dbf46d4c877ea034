// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package data

// Block is the byte range consumed by one primitive bit-level draw. Forced
// blocks hold bytes written from outside (forced draws or Write calls) and
// are not worth mutating during search.
type Block struct {
	Start, End int
	Forced     bool
}

// Length returns the number of bytes the block covers.
func (b Block) Length() int { return b.End - b.Start }

// Span is a labeled contiguous region of the tape, possibly nested inside
// other spans. The procedure opens and closes spans around logical units of
// drawing; a span closed with discard set marks a region whose content the
// procedure abandoned, which the shrinker may delete freely.
type Span struct {
	Label      uint64
	Start, End int
	Depth      int
	Index      int
	Parent     int // -1 for the root span
	Discard    bool
}

// Length returns the number of bytes the span covers.
func (s Span) Length() int { return s.End - s.Start }

// Labels for spans the engine opens internally.
const (
	labelTopLevel uint64 = iota + 1
	labelBiasedCoin
	labelWeighted
	labelIntegerRange
	labelFloatValue
	labelCollectionElement
	labelSize
)
