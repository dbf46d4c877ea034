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

import (
	"time"

	"github.com/conjecture-engine/conjecture/choice"
)

// Result is the immutable snapshot of a concluded execution. Everything the
// engine keeps after running the procedure lives here; the ConjectureData
// itself is discarded.
type Result struct {
	Status     Status
	Origin     Origin
	Generation uint64

	Buffer []byte
	Nodes  []choice.Node
	Blocks []Block
	Spans  []Span

	ForcedIndices map[int]bool
	MaskedIndices map[int]byte

	TargetObservations map[string]float64
	Events             []string
	Extra              map[string]string

	Runtime   time.Duration
	DrawTimes []time.Duration
}

// AsResult returns the snapshot of a frozen execution. The snapshot is
// created once and shared between callers; none of them may modify it.
func (d *ConjectureData) AsResult() *Result {
	if !d.frozen {
		panic("AsResult: data is not frozen")
	}
	if d.result == nil {
		d.result = &Result{
			Status:             d.status,
			Origin:             d.origin,
			Generation:         d.generation,
			Buffer:             d.buffer,
			Nodes:              d.nodes,
			Blocks:             d.blocks,
			Spans:              d.spans,
			ForcedIndices:      d.forcedIndices,
			MaskedIndices:      d.maskedIndices,
			TargetObservations: d.targets,
			Events:             d.events,
			Extra:              d.extra,
			Runtime:            d.finishTime.Sub(d.startTime),
			DrawTimes:          d.drawTimes,
		}
	}
	return d.result
}

// Children returns the indices of the direct child spans of the span at the
// given index, in tape order.
func (r *Result) Children(index int) []int {
	var res []int
	for i := index + 1; i < len(r.Spans); i++ {
		if r.Spans[i].Parent == index {
			res = append(res, i)
		}
	}
	return res
}

// SpanIsTrivial reports whether every byte in the span is either zero or
// forced, meaning shrinking its contents cannot make the tape simpler.
func (r *Result) SpanIsTrivial(index int) bool {
	s := r.Spans[index]
	for i := s.Start; i < s.End; i++ {
		if r.Buffer[i] != 0 && !r.ForcedIndices[i] {
			return false
		}
	}
	return true
}

// BlockBounds returns the byte range of the block at the given index.
func (r *Result) BlockBounds(index int) (start, end int) {
	b := r.Blocks[index]
	return b.Start, b.End
}

// BlockBytes returns the tape contents of the block at the given index.
func (r *Result) BlockBytes(index int) []byte {
	b := r.Blocks[index]
	return r.Buffer[b.Start:b.End]
}

// SortedForcedIndices returns the forced tape indices in ascending order.
func (r *Result) SortedForcedIndices() []int {
	return sortedKeys(r.ForcedIndices)
}
