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
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"
	"time"

	"github.com/conjecture-engine/conjecture/choice"
)

const (
	// ErrFrozen is reported when a draw or mutation is attempted on data
	// that has already been frozen.
	ErrFrozen = choice.ConstErr("operation on frozen data")
	// ErrUnsatisfiedForce is reported when a forced value does not satisfy
	// the constraints of the draw it was forced into.
	ErrUnsatisfiedForce = choice.ConstErr("forced value violates constraints")
)

// ByteSource provides raw bytes for non-forced draws. It is called with the
// tape offset the bytes will occupy, which skips past bytes written by
// forced draws so that recorded prefixes stay aligned on replay. It returns
// up to n bytes; returning fewer than n signals that the source is
// exhausted and the current execution must end as an overrun.
type ByteSource func(offset, n int) []byte

// Template replays a recorded choice sequence node by node, optionally
// substituting the simplest permitted value at selected positions. The
// shrinker uses templates to zero out whole regions in one step.
type Template struct {
	Nodes    []choice.Node
	Simplest map[int]bool
}

// ConjectureData records a single execution of the test procedure: the byte
// tape it consumed, the typed choices decoded from it, the span tree, and
// the final status. A ConjectureData is single use. Once concluded it is
// frozen and only the Result remains meaningful.
type ConjectureData struct {
	maxLength  int
	maxChoices int
	generation uint64
	source     ByteSource

	template    *Template
	templatePos int

	buffer []byte
	nodes  []choice.Node
	blocks []Block
	spans  []Span
	open   []int // stack of indices into spans

	forcedIndices map[int]bool
	maskedIndices map[int]byte

	status Status
	origin Origin
	frozen bool

	events     []string
	targets    map[string]float64
	extra      map[string]string
	drawTimes  []time.Duration
	startTime  time.Time
	finishTime time.Time
	result     *Result
}

// New creates data that draws fresh bytes from the given source. The source
// is typically a recorded prefix followed by a random generator. The
// generation counter identifies this execution when a draw aborts it.
func New(maxLength, maxChoices int, generation uint64, source ByteSource) *ConjectureData {
	d := &ConjectureData{
		maxLength:     maxLength,
		maxChoices:    maxChoices,
		generation:    generation,
		source:        source,
		forcedIndices: map[int]bool{},
		maskedIndices: map[int]byte{},
		targets:       map[string]float64{},
		extra:         map[string]string{},
		startTime:     time.Now(),
	}
	d.spans = append(d.spans, Span{Label: labelTopLevel, Parent: -1})
	d.open = append(d.open, 0)
	return d
}

// ForBuffer creates data that replays a recorded tape. Reading past the end
// of the buffer concludes the execution as an overrun.
func ForBuffer(buffer []byte, generation uint64) *ConjectureData {
	return New(len(buffer), 0, generation, func(offset, n int) []byte {
		if offset+n > len(buffer) {
			return nil
		}
		return buffer[offset : offset+n]
	})
}

// ForTemplate creates data that replays a recorded choice sequence. Each
// draw must match the kind and constraints of the corresponding recorded
// node; a mismatch or running past the recorded nodes concludes the
// execution as an overrun.
func ForTemplate(t *Template, generation uint64) *ConjectureData {
	d := New(math.MaxInt32, 0, generation, nil)
	d.template = t
	return d
}

// Generation returns the execution counter this data was created with.
func (d *ConjectureData) Generation() uint64 { return d.generation }

// Status returns the current status of the execution.
func (d *ConjectureData) Status() Status { return d.status }

// Frozen reports whether the data has been concluded.
func (d *ConjectureData) Frozen() bool { return d.frozen }

// Buffer returns the tape consumed so far. The returned slice is owned by
// the data and must not be modified.
func (d *ConjectureData) Buffer() []byte { return d.buffer }

// ---- spans ----

// StartSpan opens a new span with the given label at the current tape
// position. Spans must be closed in LIFO order.
func (d *ConjectureData) StartSpan(label uint64) {
	d.assertNotFrozen("StartSpan")
	parent := d.open[len(d.open)-1]
	index := len(d.spans)
	d.spans = append(d.spans, Span{
		Label:  label,
		Start:  len(d.buffer),
		Depth:  d.spans[parent].Depth + 1,
		Index:  index,
		Parent: parent,
	})
	d.open = append(d.open, index)
}

// StopSpan closes the most recently opened span. A span closed with discard
// set marks its contents as rejected by the procedure.
func (d *ConjectureData) StopSpan(discard bool) {
	d.assertNotFrozen("StopSpan")
	if len(d.open) <= 1 {
		panic("StopSpan without matching StartSpan")
	}
	index := d.open[len(d.open)-1]
	d.open = d.open[:len(d.open)-1]
	d.spans[index].End = len(d.buffer)
	d.spans[index].Discard = discard
}

// ---- status transitions ----

// MarkInvalid concludes the execution as invalid and unwinds the procedure.
func (d *ConjectureData) MarkInvalid(reason string) {
	if reason != "" {
		d.events = append(d.events, reason)
	}
	d.conclude(StatusInvalid, Origin{})
}

// MarkInteresting concludes the execution as interesting with the given
// failure origin and unwinds the procedure.
func (d *ConjectureData) MarkInteresting(origin Origin) {
	d.conclude(StatusInteresting, origin)
}

// MarkOverrun concludes the execution as an overrun and unwinds the
// procedure.
func (d *ConjectureData) MarkOverrun() {
	d.conclude(StatusOverrun, Origin{})
}

func (d *ConjectureData) conclude(status Status, origin Origin) {
	d.assertNotFrozen("conclude")
	d.status = status
	d.origin = origin
	d.Freeze()
	panic(&StopTest{Generation: d.generation})
}

// Freeze marks the execution complete. Any spans still open are closed at
// the current tape position. Freezing twice is a no-op.
func (d *ConjectureData) Freeze() {
	if d.frozen {
		return
	}
	for len(d.open) > 0 {
		index := d.open[len(d.open)-1]
		d.open = d.open[:len(d.open)-1]
		d.spans[index].End = len(d.buffer)
	}
	if d.status == StatusActive {
		d.status = StatusValid
	}
	d.finishTime = time.Now()
	d.frozen = true
}

// ---- observations ----

// Target records an observation the engine should try to maximize. Repeated
// observations under the same label keep the largest score.
func (d *ConjectureData) Target(label string, score float64) {
	d.assertNotFrozen("Target")
	if old, ok := d.targets[label]; !ok || score > old {
		d.targets[label] = score
	}
}

// Event records a string event for reporting purposes.
func (d *ConjectureData) Event(event string) {
	d.assertNotFrozen("Event")
	d.events = append(d.events, event)
}

// SetExtra attaches auxiliary information to the execution result.
func (d *ConjectureData) SetExtra(key, value string) {
	d.assertNotFrozen("SetExtra")
	d.extra[key] = value
}

// ---- raw tape access ----

func (d *ConjectureData) assertNotFrozen(op string) {
	if d.frozen {
		panic(fmt.Sprintf("%s: %v", op, ErrFrozen))
	}
}

// rawBytes obtains n fresh bytes from the source, concluding as an overrun
// when the tape budget is exceeded or the source runs dry.
func (d *ConjectureData) rawBytes(n int) []byte {
	if len(d.buffer)+n > d.maxLength {
		d.MarkOverrun()
	}
	bs := d.source(len(d.buffer), n)
	if len(bs) < n {
		d.MarkOverrun()
	}
	res := make([]byte, n)
	copy(res, bs)
	return res
}

// appendBlock writes bs to the tape as a single block.
func (d *ConjectureData) appendBlock(bs []byte, forced bool) {
	start := len(d.buffer)
	d.buffer = append(d.buffer, bs...)
	d.blocks = append(d.blocks, Block{Start: start, End: len(d.buffer), Forced: forced})
	if forced {
		for i := start; i < len(d.buffer); i++ {
			d.forcedIndices[i] = true
		}
	}
}

// drawBits consumes ceil(n/8) bytes from the tape and decodes them as a
// big-endian unsigned integer of n bits. When n is not a multiple of eight
// the surplus high bits of the leading byte are masked off and the mask is
// recorded so that replays from novel prefixes apply the same masking.
func (d *ConjectureData) drawBits(n int, forced *uint64) uint64 {
	if n == 0 {
		return 0
	}
	if n > 64 {
		panic(fmt.Sprintf("drawBits: %d bits exceed 64", n))
	}
	nBytes := (n + 7) / 8
	var bs []byte
	if forced != nil {
		bs = make([]byte, nBytes)
		v := *forced
		for i := nBytes - 1; i >= 0; i-- {
			bs[i] = byte(v)
			v >>= 8
		}
	} else {
		bs = d.rawBytes(nBytes)
	}
	if n%8 != 0 {
		mask := byte(1<<(n%8)) - 1
		bs[0] &= mask
		d.maskedIndices[len(d.buffer)] = mask
	}
	d.appendBlock(bs, forced != nil)
	var value uint64
	for _, b := range bs {
		value = value<<8 | uint64(b)
	}
	return value
}

// Write places the given bytes on the tape verbatim as a forced block. It
// records no choice node; the bytes only participate in byte-level passes.
func (d *ConjectureData) Write(bs []byte) {
	d.assertNotFrozen("Write")
	if len(d.buffer)+len(bs) > d.maxLength {
		d.MarkOverrun()
	}
	d.appendBlock(append([]byte(nil), bs...), true)
}

// ---- primitive draws (no node recording) ----

// drawIntegerRange draws a uniform integer in [lo, hi] by rejection
// sampling over the smallest covering bit width. Rejected attempts are
// wrapped in discarded spans so the shrinker can delete them.
func (d *ConjectureData) drawIntegerRange(lo, hi int64, forced *int64) int64 {
	if lo > hi {
		panic(fmt.Sprintf("drawIntegerRange: empty range [%d, %d]", lo, hi))
	}
	if lo == hi {
		return lo
	}
	width := uint64(hi - lo)
	nBits := bits.Len64(width)
	if forced != nil {
		fv := uint64(*forced - lo)
		d.drawBits(nBits, &fv)
		return *forced
	}
	for {
		d.StartSpan(labelIntegerRange)
		v := d.drawBits(nBits, nil)
		if v <= width {
			d.StopSpan(false)
			return lo + int64(v)
		}
		d.StopSpan(true)
	}
}

// drawBooleanP draws true with probability p using a single byte per step.
// The unit interval is split into 256 parts. Byte 0 always decodes to false
// and byte 1 to true, which keeps the smallest tapes maximally informative
// for the shrinker. The final part serves as a continuation marker when p
// is not a multiple of 1/256, recursing on the residual probability.
func (d *ConjectureData) drawBooleanP(p float64, forced *bool) bool {
	if p <= 0 {
		if forced != nil && *forced {
			panic(ErrUnsatisfiedForce)
		}
		d.drawBits(1, u64ptr(0))
		return false
	}
	if p >= 1 {
		if forced != nil && !*forced {
			panic(ErrUnsatisfiedForce)
		}
		d.drawBits(1, u64ptr(1))
		return true
	}
	if forced != nil {
		fv := uint64(0)
		if *forced {
			fv = 1
		}
		d.drawBits(8, &fv)
		return *forced
	}
	d.StartSpan(labelBiasedCoin)
	result := false
	for {
		scaled := p * 256
		// falsey is the number of byte values decoding to false. When p is
		// not a multiple of 1/256 the byte 255 is reserved as a
		// continuation marker and the draw recurses on the residual.
		var falsey int
		partial := true
		if scaled == math.Trunc(scaled) {
			falsey = 256 - int(scaled)
			partial = false
		} else {
			falsey = 255 - int(math.Floor(scaled))
		}
		i := int(d.drawBits(8, nil))
		if partial && i == 255 {
			p = scaled - math.Floor(scaled)
			continue
		}
		if i <= 1 {
			result = i == 1
		} else {
			result = i > falsey
		}
		break
	}
	d.StopSpan(false)
	return result
}

func u64ptr(v uint64) *uint64 { return &v }

// rawSource adapts the primitive draws to the choice.Source interface used
// by samplers, without recording choice nodes.
type rawSource struct{ d *ConjectureData }

func (r rawSource) DrawIntegerRange(lo, hi int64) int64 { return r.d.drawIntegerRange(lo, hi, nil) }
func (r rawSource) DrawBooleanP(p float64) bool         { return r.d.drawBooleanP(p, nil) }

// ---- typed draws ----

// beginDraw enforces the choice budget and template alignment, returning
// the recorded node to replay when in template mode.
func (d *ConjectureData) beginDraw(kind choice.Kind, constraints choice.Constraints) (choice.Node, bool) {
	d.assertNotFrozen("draw")
	if d.maxChoices > 0 && len(d.nodes) >= d.maxChoices {
		d.MarkOverrun()
	}
	if d.template == nil {
		return choice.Node{}, false
	}
	if d.templatePos >= len(d.template.Nodes) {
		d.MarkOverrun()
	}
	node := d.template.Nodes[d.templatePos]
	if node.Kind != kind || !node.Constraints.Equal(constraints) {
		d.MarkOverrun()
	}
	if d.template.Simplest[d.templatePos] {
		node.Value = simplestValue(kind, constraints)
	}
	d.templatePos++
	return node, true
}

func (d *ConjectureData) recordNode(kind choice.Kind, constraints choice.Constraints, value choice.Value, forced bool, start int, began time.Time) {
	d.nodes = append(d.nodes, choice.Node{
		Kind:        kind,
		Constraints: constraints,
		Value:       value,
		WasForced:   forced,
		Start:       start,
		End:         len(d.buffer),
	})
	d.drawTimes = append(d.drawTimes, time.Since(began))
}

// DrawInteger draws an integer satisfying the given constraints. An
// optional forced value is written to the tape in its canonical encoding
// instead of consuming fresh bytes.
func (d *ConjectureData) DrawInteger(c *choice.IntegerConstraints, forced ...int64) int64 {
	node, replay := d.beginDraw(choice.Integer, c)
	var fv *int64
	if len(forced) > 0 {
		fv = &forced[0]
	} else if replay {
		v := node.Value.Int
		fv = &v
	}
	if fv != nil && (*fv < c.Min || *fv > c.Max) {
		panic(ErrUnsatisfiedForce)
	}
	began := time.Now()
	start := len(d.buffer)
	var value int64
	if len(c.Weights) > 0 {
		sampler := choice.NewSampler(c.Weights)
		d.StartSpan(labelWeighted)
		var idx int
		if fv != nil {
			row, useAlt := sampler.FindRow(int(*fv - c.Min))
			rowV := int64(row)
			alt := useAlt
			d.drawIntegerRange(0, int64(sampler.Len()-1), &rowV)
			d.drawBooleanP(sampler.Chance(row), &alt)
			idx = int(*fv - c.Min)
		} else {
			idx = sampler.Sample(rawSource{d})
		}
		d.StopSpan(false)
		value = c.Min + int64(idx)
	} else {
		value = d.drawIntegerRange(c.Min, c.Max, fv)
	}
	d.recordNode(choice.Integer, c, choice.IntegerValue(value), len(forced) > 0 || (replay && node.WasForced), start, began)
	return value
}

// DrawBoolean draws a boolean that is true with probability P.
func (d *ConjectureData) DrawBoolean(c *choice.BooleanConstraints, forced ...bool) bool {
	node, replay := d.beginDraw(choice.Boolean, c)
	var fv *bool
	if len(forced) > 0 {
		fv = &forced[0]
	} else if replay {
		v := node.Value.Bool
		fv = &v
	}
	began := time.Now()
	start := len(d.buffer)
	value := d.drawBooleanP(c.P, fv)
	d.recordNode(choice.Boolean, c, choice.BooleanValue(value), len(forced) > 0 || (replay && node.WasForced), start, began)
	return value
}

// DrawFloat draws a float satisfying the given constraints. The tape
// encoding is one sign byte followed by the eight byte lexicographic float
// encoding, so that shortlex-smaller tapes decode to simpler values.
func (d *ConjectureData) DrawFloat(c *choice.FloatConstraints, forced ...float64) float64 {
	node, replay := d.beginDraw(choice.Float, c)
	var fv *float64
	if len(forced) > 0 {
		fv = &forced[0]
	} else if replay {
		v := node.Value.Float
		fv = &v
	}
	if fv != nil && !floatPermitted(*fv, c) {
		panic(ErrUnsatisfiedForce)
	}
	began := time.Now()
	start := len(d.buffer)
	var value float64
	if fv != nil {
		f := *fv
		if math.IsNaN(f) {
			f = choice.CanonicalNaN
		}
		sign := uint64(0)
		if math.Signbit(f) {
			sign = 1
		}
		lex := choice.FloatToLex(math.Abs(f))
		d.drawBits(1, &sign)
		d.drawBits(64, &lex)
		value = f
	} else {
		for {
			d.StartSpan(labelFloatValue)
			sign := d.drawBits(1, nil)
			lex := d.drawBits(64, nil)
			f := choice.LexToFloat(lex)
			if sign == 1 {
				f = -f
			}
			if math.IsNaN(f) {
				f = choice.CanonicalNaN
				if sign == 1 {
					f = math.Copysign(f, -1)
				}
			}
			if floatPermitted(f, c) {
				d.StopSpan(false)
				value = f
				break
			}
			d.StopSpan(true)
		}
	}
	d.recordNode(choice.Float, c, choice.FloatValue(value), len(forced) > 0 || (replay && node.WasForced), start, began)
	return value
}

func floatPermitted(f float64, c *choice.FloatConstraints) bool {
	if math.IsNaN(f) {
		return c.AllowNaN
	}
	return f >= c.Min && f <= c.Max
}

// DrawString draws a string over the given alphabet with a size between
// MinSize and MaxSize. Sizes are decided by a sequence of continuation
// coins, so deleting a suffix of elements always yields a valid tape.
func (d *ConjectureData) DrawString(c *choice.StringConstraints, forced ...string) string {
	node, replay := d.beginDraw(choice.String, c)
	var fr []rune
	haveForced := false
	if len(forced) > 0 {
		fr = []rune(forced[0])
		haveForced = true
	} else if replay {
		fr = []rune(node.Value.Str)
		haveForced = true
	}
	if haveForced && (len(fr) < c.MinSize || len(fr) > c.MaxSize) {
		panic(ErrUnsatisfiedForce)
	}
	began := time.Now()
	start := len(d.buffer)
	pContinue := continuationProbability(c.MinSize, c.MaxSize)
	var sb strings.Builder
	count := 0
	for {
		var more bool
		switch {
		case haveForced:
			f := count < len(fr)
			more = d.drawBooleanP(pContinue, &f)
		case count < c.MinSize:
			f := true
			more = d.drawBooleanP(pContinue, &f)
		case count >= c.MaxSize:
			f := false
			more = d.drawBooleanP(pContinue, &f)
		default:
			more = d.drawBooleanP(pContinue, nil)
		}
		if !more {
			break
		}
		d.StartSpan(labelCollectionElement)
		var idx int64
		if haveForced {
			found := runeIndex(c.Alphabet, fr[count])
			if found < 0 {
				panic(ErrUnsatisfiedForce)
			}
			idx = d.drawIntegerRange(0, int64(len(c.Alphabet)-1), &found)
		} else {
			idx = d.drawIntegerRange(0, int64(len(c.Alphabet)-1), nil)
		}
		sb.WriteRune(c.Alphabet[idx])
		d.StopSpan(false)
		count++
	}
	value := sb.String()
	d.recordNode(choice.String, c, choice.StringValue(value), len(forced) > 0 || (replay && node.WasForced), start, began)
	return value
}

func runeIndex(alphabet []rune, r rune) int64 {
	for i, a := range alphabet {
		if a == r {
			return int64(i)
		}
	}
	return -1
}

// continuationProbability picks the coin bias so that the expected size
// sits between the bounds, leaning towards small collections.
func continuationProbability(minSize, maxSize int) float64 {
	avg := math.Min(
		math.Max(float64(minSize)*2, float64(minSize)+5),
		0.5*float64(minSize+maxSize),
	)
	if avg <= 0 {
		avg = 0.5
	}
	return 1 - 1/(1+avg)
}

// DrawBytes draws a byte string with a size between MinSize and MaxSize.
// The size is drawn first, then the content as a single block, so that
// byte-level passes can minimize the content lexicographically in place.
func (d *ConjectureData) DrawBytes(c *choice.BytesConstraints, forced ...[]byte) []byte {
	node, replay := d.beginDraw(choice.Bytes, c)
	var fb []byte
	haveForced := false
	if len(forced) > 0 {
		fb = forced[0]
		haveForced = true
	} else if replay {
		fb = node.Value.Byte
		haveForced = true
	}
	if haveForced && (len(fb) < c.MinSize || len(fb) > c.MaxSize) {
		panic(ErrUnsatisfiedForce)
	}
	began := time.Now()
	start := len(d.buffer)
	d.StartSpan(labelSize)
	var size int64
	if haveForced {
		fs := int64(len(fb))
		size = d.drawIntegerRange(int64(c.MinSize), int64(c.MaxSize), &fs)
	} else {
		size = d.drawIntegerRange(int64(c.MinSize), int64(c.MaxSize), nil)
	}
	d.StopSpan(false)
	var content []byte
	if haveForced {
		content = append([]byte(nil), fb...)
		d.appendBlock(content, true)
	} else {
		content = d.rawBytes(int(size))
		d.appendBlock(content, false)
	}
	value := append([]byte(nil), content...)
	d.recordNode(choice.Bytes, c, choice.BytesValue(value), len(forced) > 0 || (replay && node.WasForced), start, began)
	return value
}

// simplestValue is the value a template substitution uses for a node whose
// recorded value is dropped: the shrink target permitted by the
// constraints.
func simplestValue(kind choice.Kind, constraints choice.Constraints) choice.Value {
	switch kind {
	case choice.Integer:
		c := constraints.(*choice.IntegerConstraints)
		v := c.ShrinkTowards
		if v < c.Min {
			v = c.Min
		}
		if v > c.Max {
			v = c.Max
		}
		return choice.IntegerValue(v)
	case choice.Boolean:
		c := constraints.(*choice.BooleanConstraints)
		return choice.BooleanValue(c.P >= 1)
	case choice.Float:
		c := constraints.(*choice.FloatConstraints)
		v := 0.0
		if c.Min > 0 {
			v = c.Min
		}
		if c.Max < 0 {
			v = c.Max
		}
		return choice.FloatValue(v)
	case choice.String:
		c := constraints.(*choice.StringConstraints)
		var sb strings.Builder
		for i := 0; i < c.MinSize; i++ {
			sb.WriteRune(c.Alphabet[0])
		}
		return choice.StringValue(sb.String())
	case choice.Bytes:
		c := constraints.(*choice.BytesConstraints)
		return choice.BytesValue(make([]byte, c.MinSize))
	}
	panic(fmt.Sprintf("simplestValue: unknown kind %v", kind))
}

// sortedKeys returns the keys of a set of tape indices in ascending order.
func sortedKeys(m map[int]bool) []int {
	res := make([]int, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Ints(res)
	return res
}
