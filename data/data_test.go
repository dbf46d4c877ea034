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
	"bytes"
	"math"
	"testing"

	"github.com/conjecture-engine/conjecture/choice"
	"pgregory.net/rand"
)

func zeroSource(_, n int) []byte { return make([]byte, n) }

func randomSource(rnd *rand.Rand) ByteSource {
	return func(_, n int) []byte {
		bs := make([]byte, n)
		rnd.Read(bs)
		return bs
	}
}

// catchStop runs f expecting it to abort the attempt with the given
// generation.
func catchStop(t *testing.T, generation uint64, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		st, ok := r.(*StopTest)
		if !ok {
			t.Fatalf("attempt did not abort with a StopTest, got %v", r)
		}
		if st.Generation != generation {
			t.Fatalf("aborted with generation %d, want %d", st.Generation, generation)
		}
	}()
	f()
	t.Fatalf("attempt was expected to abort")
}

func byteRange() *choice.IntegerConstraints {
	return &choice.IntegerConstraints{Min: 0, Max: 255}
}

func TestConjectureData_BufferReplayDecodesRecordedBytes(t *testing.T) {
	d := ForBuffer([]byte{5, 200}, 0)
	if got := d.DrawInteger(byteRange()); got != 5 {
		t.Errorf("first draw = %d, want 5", got)
	}
	if got := d.DrawInteger(byteRange()); got != 200 {
		t.Errorf("second draw = %d, want 200", got)
	}
	d.Freeze()
	if got := d.Status(); got != StatusValid {
		t.Errorf("status after freeze = %v, want VALID", got)
	}
}

func TestConjectureData_ReadingPastTheBufferOverruns(t *testing.T) {
	d := ForBuffer([]byte{1}, 7)
	d.DrawInteger(byteRange())
	catchStop(t, 7, func() { d.DrawInteger(byteRange()) })
	if d.Status() != StatusOverrun {
		t.Errorf("status = %v, want OVERRUN", d.Status())
	}
	if !d.Frozen() {
		t.Errorf("an overrun attempt must be frozen")
	}
}

func TestConjectureData_ChoiceBudgetOverruns(t *testing.T) {
	d := New(1000, 2, 3, zeroSource)
	d.DrawInteger(byteRange())
	d.DrawInteger(byteRange())
	catchStop(t, 3, func() { d.DrawInteger(byteRange()) })
	if d.Status() != StatusOverrun {
		t.Errorf("status = %v, want OVERRUN", d.Status())
	}
}

func TestConjectureData_BooleanDecodingOfExtremeBytes(t *testing.T) {
	coin := &choice.BooleanConstraints{P: 0.5}
	d := ForBuffer([]byte{0}, 0)
	if d.DrawBoolean(coin) {
		t.Errorf("the zero byte must decode to false")
	}
	d = ForBuffer([]byte{0xff}, 0)
	if !d.DrawBoolean(coin) {
		t.Errorf("the maximal byte must decode to true")
	}
	d = ForBuffer([]byte{1}, 0)
	if !d.DrawBoolean(coin) {
		t.Errorf("byte one must decode to true")
	}
}

func TestConjectureData_BooleanMatchesBias(t *testing.T) {
	rnd := rand.New(0)
	const n = 20000
	for _, p := range []float64{0.25, 0.5, 0.9} {
		coin := &choice.BooleanConstraints{P: p}
		count := 0
		for i := 0; i < n; i++ {
			d := New(100, 0, 0, randomSource(rnd))
			if d.DrawBoolean(coin) {
				count++
			}
		}
		got := float64(count) / n
		if math.Abs(got-p) > 0.02 {
			t.Errorf("coin with bias %f came up true with frequency %f", p, got)
		}
	}
}

func TestConjectureData_DegenerateCoinsConsumeForcedBytes(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	if d.DrawBoolean(&choice.BooleanConstraints{P: 0}) {
		t.Errorf("a coin with bias 0 must be false")
	}
	if !d.DrawBoolean(&choice.BooleanConstraints{P: 1}) {
		t.Errorf("a coin with bias 1 must be true")
	}
	d.Freeze()
	r := d.AsResult()
	if len(r.Buffer) != 2 {
		t.Fatalf("degenerate coins wrote %d bytes, want 2", len(r.Buffer))
	}
	if !r.ForcedIndices[0] || !r.ForcedIndices[1] {
		t.Errorf("degenerate coin bytes must be forced")
	}
}

func TestConjectureData_ForcedDrawsWriteCanonicalEncodings(t *testing.T) {
	d := New(100, 0, 1, zeroSource)
	c := byteRange()
	if got := d.DrawInteger(c, 7); got != 7 {
		t.Fatalf("forced draw returned %d, want 7", got)
	}
	d.Freeze()
	r := d.AsResult()
	if !bytes.Equal(r.Buffer, []byte{7}) {
		t.Fatalf("forced draw wrote %v, want [7]", r.Buffer)
	}
	if !r.Nodes[0].WasForced {
		t.Errorf("forced draw not marked as forced")
	}

	replay := ForBuffer(r.Buffer, 2)
	if got := replay.DrawInteger(c); got != 7 {
		t.Errorf("replaying the forced encoding decoded %d, want 7", got)
	}
}

func TestConjectureData_ForcedValueOutsideRangeIsRejected(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("forcing a value outside the range must panic")
		}
	}()
	d := New(100, 0, 0, zeroSource)
	d.DrawInteger(&choice.IntegerConstraints{Min: 0, Max: 10}, 11)
}

func TestConjectureData_WeightedDrawsReplayTheirEncoding(t *testing.T) {
	c := &choice.IntegerConstraints{Min: 10, Max: 13, Weights: []float64{1, 2, 3, 4}}
	for forced := int64(10); forced <= 13; forced++ {
		d := New(100, 0, 0, zeroSource)
		if got := d.DrawInteger(c, forced); got != forced {
			t.Fatalf("forced weighted draw returned %d, want %d", got, forced)
		}
		d.Freeze()
		replay := ForBuffer(d.AsResult().Buffer, 0)
		if got := replay.DrawInteger(c); got != forced {
			t.Errorf("replaying the weighted encoding decoded %d, want %d", got, forced)
		}
	}
}

func TestConjectureData_FloatDrawsRoundTripThroughTheTape(t *testing.T) {
	c := &choice.FloatConstraints{Min: math.Inf(-1), Max: math.Inf(1), AllowNaN: true}
	for _, v := range []float64{0, 1, 2.5, -3.75, math.Pi, math.Inf(1), math.Inf(-1)} {
		d := New(100, 0, 0, zeroSource)
		if got := d.DrawFloat(c, v); got != v {
			t.Fatalf("forced float draw returned %v, want %v", got, v)
		}
		d.Freeze()
		replay := ForBuffer(d.AsResult().Buffer, 0)
		if got := replay.DrawFloat(c); got != v {
			t.Errorf("replaying the float encoding decoded %v, want %v", got, v)
		}
	}
}

func TestConjectureData_NaNDrawsAreCanonicalized(t *testing.T) {
	c := &choice.FloatConstraints{Min: math.Inf(-1), Max: math.Inf(1), AllowNaN: true}
	d := New(100, 0, 0, zeroSource)
	got := d.DrawFloat(c, math.Float64frombits(0x7ff0000000000001))
	if math.Float64bits(got) != math.Float64bits(choice.CanonicalNaN) {
		t.Errorf("NaN draw produced bits %016x, want the canonical pattern", math.Float64bits(got))
	}
}

func TestConjectureData_FloatRangeIsEnforcedByRejection(t *testing.T) {
	rnd := rand.New(0)
	c := &choice.FloatConstraints{Min: 0, Max: 100}
	for i := 0; i < 200; i++ {
		d := New(10000, 0, 0, randomSource(rnd))
		v := d.DrawFloat(c)
		if math.IsNaN(v) || v < 0 || v > 100 {
			t.Fatalf("draw %d produced %v outside [0, 100]", i, v)
		}
	}
}

func TestConjectureData_RejectedFloatProbesAreDiscardedSpans(t *testing.T) {
	// The first nine bytes decode to negative zero, which a minimum of one
	// rejects; the second probe decodes to the integer five.
	buf := make([]byte, 18)
	buf[0] = 1 // sign bit of the rejected probe
	buf[17] = 5
	d := ForBuffer(buf, 0)
	v := d.DrawFloat(&choice.FloatConstraints{Min: 1, Max: 100})
	if v != 5 {
		t.Fatalf("accepted probe decoded to %v, want 5", v)
	}
	d.Freeze()
	r := d.AsResult()
	discarded := 0
	for _, s := range r.Spans {
		if s.Discard {
			discarded++
			if s.Length() != 9 {
				t.Errorf("discarded probe covers %d bytes, want 9", s.Length())
			}
		}
	}
	if discarded != 1 {
		t.Errorf("found %d discarded spans, want 1", discarded)
	}
}

func TestConjectureData_StringSizesRespectBounds(t *testing.T) {
	rnd := rand.New(0)
	c := &choice.StringConstraints{Alphabet: []rune("abc"), MinSize: 2, MaxSize: 5}
	for i := 0; i < 500; i++ {
		d := New(10000, 0, 0, randomSource(rnd))
		s := d.DrawString(c)
		if len(s) < 2 || len(s) > 5 {
			t.Fatalf("draw %d produced %q with size outside [2, 5]", i, s)
		}
		for _, r := range s {
			if r != 'a' && r != 'b' && r != 'c' {
				t.Fatalf("draw %d produced %q with a rune outside the alphabet", i, s)
			}
		}
	}
}

func TestConjectureData_ForcedStringsReplay(t *testing.T) {
	c := &choice.StringConstraints{Alphabet: []rune("abc"), MinSize: 0, MaxSize: 10}
	d := New(100, 0, 0, zeroSource)
	if got := d.DrawString(c, "cab"); got != "cab" {
		t.Fatalf("forced string draw returned %q", got)
	}
	d.Freeze()
	replay := ForBuffer(d.AsResult().Buffer, 0)
	if got := replay.DrawString(c); got != "cab" {
		t.Errorf("replaying the string encoding decoded %q, want %q", got, "cab")
	}
}

func TestConjectureData_BytesDrawsDecodeSizeThenContent(t *testing.T) {
	d := ForBuffer([]byte{2, 9, 7}, 0)
	got := d.DrawBytes(&choice.BytesConstraints{MinSize: 0, MaxSize: 4})
	if !bytes.Equal(got, []byte{9, 7}) {
		t.Errorf("bytes draw = %v, want [9 7]", got)
	}
}

func TestConjectureData_ForcedBytesReplay(t *testing.T) {
	c := &choice.BytesConstraints{MinSize: 0, MaxSize: 10}
	d := New(100, 0, 0, zeroSource)
	want := []byte{0, 255, 3}
	if got := d.DrawBytes(c, want); !bytes.Equal(got, want) {
		t.Fatalf("forced bytes draw returned %v", got)
	}
	d.Freeze()
	replay := ForBuffer(d.AsResult().Buffer, 0)
	if got := replay.DrawBytes(c); !bytes.Equal(got, want) {
		t.Errorf("replaying the bytes encoding decoded %v, want %v", got, want)
	}
}

func TestConjectureData_WriteRecordsAForcedBlockWithoutANode(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.Write([]byte{1, 2, 3})
	d.Freeze()
	r := d.AsResult()
	if len(r.Nodes) != 0 {
		t.Errorf("Write recorded %d nodes, want 0", len(r.Nodes))
	}
	if len(r.Blocks) != 1 || !r.Blocks[0].Forced {
		t.Errorf("Write did not record a single forced block: %v", r.Blocks)
	}
	if got := r.SortedForcedIndices(); len(got) != 3 {
		t.Errorf("forced indices = %v, want three entries", got)
	}
}

func TestConjectureData_SpansNestAndFreezeCloses(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.StartSpan(100)
	d.DrawInteger(byteRange())
	d.StartSpan(101)
	d.DrawInteger(byteRange())
	// Both spans are left open; freezing must close them.
	d.Freeze()
	r := d.AsResult()

	var outer, inner *Span
	for i := range r.Spans {
		switch r.Spans[i].Label {
		case 100:
			outer = &r.Spans[i]
		case 101:
			inner = &r.Spans[i]
		}
	}
	if outer == nil || inner == nil {
		t.Fatalf("expected the labeled spans in %v", r.Spans)
	}
	if outer.Start != 0 || outer.End != 2 {
		t.Errorf("outer span covers [%d, %d), want [0, 2)", outer.Start, outer.End)
	}
	if inner.Start != 1 || inner.End != 2 {
		t.Errorf("inner span covers [%d, %d), want [1, 2)", inner.Start, inner.End)
	}
	if inner.Depth <= outer.Depth {
		t.Errorf("inner span depth %d not below outer depth %d", inner.Depth, outer.Depth)
	}
	if got := r.Spans[outer.Index].Parent; got != 0 {
		t.Errorf("outer span parent = %d, want the root span", got)
	}
}

func TestConjectureData_DiscardedSpansAreMarked(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.StartSpan(100)
	d.DrawInteger(byteRange())
	d.StopSpan(true)
	d.Freeze()
	r := d.AsResult()
	found := false
	for _, s := range r.Spans {
		if s.Label == 100 {
			found = true
			if !s.Discard {
				t.Errorf("span closed with discard not marked")
			}
		}
	}
	if !found {
		t.Fatalf("labeled span missing")
	}
}

func TestConjectureData_MarkInterestingRecordsTheOrigin(t *testing.T) {
	d := New(100, 0, 5, zeroSource)
	origin := Origin{Kind: "assertion", File: "engine.go", Line: 42}
	catchStop(t, 5, func() { d.MarkInteresting(origin) })
	if d.Status() != StatusInteresting {
		t.Errorf("status = %v, want INTERESTING", d.Status())
	}
	if got := d.AsResult().Origin; got != origin {
		t.Errorf("origin = %v, want %v", got, origin)
	}
}

func TestConjectureData_MarkInvalidRecordsTheReason(t *testing.T) {
	d := New(100, 0, 5, zeroSource)
	catchStop(t, 5, func() { d.MarkInvalid("precondition failed") })
	r := d.AsResult()
	if r.Status != StatusInvalid {
		t.Errorf("status = %v, want INVALID", r.Status)
	}
	if len(r.Events) != 1 || r.Events[0] != "precondition failed" {
		t.Errorf("events = %v, want the rejection reason", r.Events)
	}
}

func TestConjectureData_DrawsOnFrozenDataPanic(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatalf("drawing on frozen data must panic")
		}
	}()
	d.DrawInteger(byteRange())
}

func TestConjectureData_TargetKeepsTheLargestScore(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.Target("score", 1)
	d.Target("score", 5)
	d.Target("score", 3)
	d.Target("other", -2)
	d.Freeze()
	r := d.AsResult()
	if got := r.TargetObservations["score"]; got != 5 {
		t.Errorf("score observation = %f, want 5", got)
	}
	if got := r.TargetObservations["other"]; got != -2 {
		t.Errorf("other observation = %f, want -2", got)
	}
}

func TestConjectureData_TemplateReplayReproducesValues(t *testing.T) {
	run := func(d *ConjectureData) (int64, bool, string) {
		i := d.DrawInteger(byteRange())
		b := d.DrawBoolean(&choice.BooleanConstraints{P: 0.5})
		s := d.DrawString(&choice.StringConstraints{Alphabet: []rune("ab"), MinSize: 1, MaxSize: 4})
		return i, b, s
	}

	rnd := rand.New(42)
	d := New(10000, 0, 0, randomSource(rnd))
	i, b, s := run(d)
	d.Freeze()

	replay := ForTemplate(&Template{Nodes: d.AsResult().Nodes}, 1)
	ri, rb, rs := run(replay)
	if ri != i || rb != b || rs != s {
		t.Errorf("template replay produced (%d, %t, %q), want (%d, %t, %q)", ri, rb, rs, i, b, s)
	}
}

func TestConjectureData_TemplateSubstitutesSimplestValues(t *testing.T) {
	c := &choice.IntegerConstraints{Min: 10, Max: 20, ShrinkTowards: 10}
	d := New(100, 0, 0, zeroSource)
	d.DrawInteger(c, 17)
	d.DrawInteger(c, 19)
	d.Freeze()

	replay := ForTemplate(&Template{
		Nodes:    d.AsResult().Nodes,
		Simplest: map[int]bool{0: true},
	}, 1)
	if got := replay.DrawInteger(c); got != 10 {
		t.Errorf("substituted draw = %d, want the shrink target 10", got)
	}
	if got := replay.DrawInteger(c); got != 19 {
		t.Errorf("kept draw = %d, want 19", got)
	}
}

func TestConjectureData_TemplateMisalignmentOverruns(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.DrawInteger(byteRange())
	d.Freeze()

	replay := ForTemplate(&Template{Nodes: d.AsResult().Nodes}, 9)
	catchStop(t, 9, func() { replay.DrawBoolean(&choice.BooleanConstraints{P: 0.5}) })
	if replay.Status() != StatusOverrun {
		t.Errorf("status = %v, want OVERRUN", replay.Status())
	}

	replay = ForTemplate(&Template{Nodes: d.AsResult().Nodes}, 9)
	catchStop(t, 9, func() {
		replay.DrawInteger(&choice.IntegerConstraints{Min: 0, Max: 254})
	})

	replay = ForTemplate(&Template{Nodes: d.AsResult().Nodes}, 9)
	replay.DrawInteger(byteRange())
	catchStop(t, 9, func() { replay.DrawInteger(byteRange()) })
}

func TestConjectureData_MaskedIndicesAreRecorded(t *testing.T) {
	d := ForBuffer([]byte{0xff}, 0)
	// A range of [0, 3] needs two bits, so the high six bits of the byte
	// are masked off.
	if got := d.DrawInteger(&choice.IntegerConstraints{Min: 0, Max: 3}); got != 3 {
		t.Errorf("masked draw = %d, want 3", got)
	}
	d.Freeze()
	r := d.AsResult()
	if got, ok := r.MaskedIndices[0]; !ok || got != 0x03 {
		t.Errorf("masked index not recorded, got %v", r.MaskedIndices)
	}
	if !bytes.Equal(r.Buffer, []byte{3}) {
		t.Errorf("the tape must hold the masked byte, got %v", r.Buffer)
	}
}

func TestResult_SpanIsTrivialIgnoresForcedBytes(t *testing.T) {
	d := New(100, 0, 0, zeroSource)
	d.StartSpan(100)
	d.DrawInteger(byteRange(), 200)
	d.StopSpan(false)
	d.StartSpan(101)
	d.Write([]byte{0, 0})
	d.StopSpan(false)
	d.Freeze()
	r := d.AsResult()
	for _, s := range r.Spans {
		switch s.Label {
		case 100:
			if !r.SpanIsTrivial(s.Index) {
				t.Errorf("a span of forced bytes is trivial")
			}
		case 101:
			if !r.SpanIsTrivial(s.Index) {
				t.Errorf("a span of zero bytes is trivial")
			}
		}
	}
}
