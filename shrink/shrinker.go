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
	"math/big"
	"sort"

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/data"
	"pgregory.net/rand"
)

// Harness is what the shrinker needs from the surrounding engine: cached
// re-execution of candidate tapes and a source of randomness for step
// ordering.
type Harness interface {
	// CachedTestFunction executes the given tape, deduplicated against the
	// engine's execution cache, and returns the frozen result.
	CachedTestFunction(buffer []byte) *data.Result
	Random() *rand.Rand
}

// defaultMaxStall is the number of consecutive unproductive executions
// after which the current pass is abandoned for this sweep. It bounds
// pathological pass runtime without giving up improvements already found.
const defaultMaxStall = 200

// Shrinker minimizes an interesting result while a predicate (typically
// "same failure origin") keeps holding. Candidates are accepted only when
// their tape is strictly simpler in shortlex order, so the process always
// terminates and the final target is the best example seen.
type Shrinker struct {
	harness   Harness
	predicate func(*data.Result) bool
	target    *data.Result

	initialSize int
	calls       int
	shrinks     int
	maxStall    int

	passes  []*shrinkPass
	byName  map[string]*shrinkPass
	current *shrinkPass

	changedBlocks      map[int]bool
	shrinkingPrefixes  map[string]bool
	shrinkingBlockSeen map[int]bool

	endpointsFor *data.Result
	endpoints    [][]int
}

// passArgs is one unit of work for a pass. The meaning of the two indices
// is pass-specific; they always refer to the shrink target the argument
// list was generated for.
type passArgs struct {
	a, b int
}

type shrinkPass struct {
	name     string
	generate func(s *Shrinker) []passArgs
	execute  func(s *Shrinker, arg passArgs)

	args    []passArgs
	argsFor *data.Result

	fixedPointAt *data.Result
	runs         int
	calls        int
	shrinks      int
	deletions    int
	stalls       int
}

// arguments returns the step arguments for the current shrink target,
// regenerating them whenever the target has moved.
func (p *shrinkPass) arguments(s *Shrinker) []passArgs {
	if p.argsFor != s.target {
		p.args = p.generate(s)
		p.argsFor = s.target
	}
	return p.args
}

func (p *shrinkPass) runStep(s *Shrinker, i int) {
	args := p.arguments(s)
	if i >= len(args) {
		return
	}
	size := len(s.target.Buffer)
	prev := s.current
	s.current = p
	p.execute(s, args[i])
	s.current = prev
	p.deletions += size - len(s.target.Buffer)
}

// New creates a shrinker for the given interesting result. The predicate
// decides whether a re-executed result still exhibits the behavior being
// minimized; it is expected to check the status as well as the origin.
func New(harness Harness, initial *data.Result, predicate func(*data.Result) bool) *Shrinker {
	s := &Shrinker{
		harness:            harness,
		predicate:          predicate,
		target:             initial,
		initialSize:        len(initial.Buffer),
		maxStall:           defaultMaxStall,
		byName:             map[string]*shrinkPass{},
		changedBlocks:      map[int]bool{},
		shrinkingPrefixes:  map[string]bool{},
		shrinkingBlockSeen: map[int]bool{},
	}
	s.registerPasses()
	return s
}

// Target returns the best known result.
func (s *Shrinker) Target() *data.Result { return s.target }

// Calls returns the number of executions the shrinker has requested.
func (s *Shrinker) Calls() int { return s.calls }

// Shrinks returns the number of accepted improvements.
func (s *Shrinker) Shrinks() int { return s.shrinks }

// runTape executes a candidate tape through the harness and incorporates
// the result if it is an improvement.
func (s *Shrinker) runTape(buffer []byte) *data.Result {
	s.calls++
	if s.current != nil {
		s.current.calls++
		s.current.stalls++
	}
	r := s.harness.CachedTestFunction(buffer)
	s.incorporateResult(r)
	return r
}

func (s *Shrinker) incorporateResult(r *data.Result) bool {
	if r == nil || !s.predicate(r) {
		return false
	}
	if !choice.Simpler(r.Buffer, s.target.Buffer) {
		return false
	}
	s.updateTarget(r)
	return true
}

// incorporateBuffer offers a candidate tape and reports whether it became
// the new target.
func (s *Shrinker) incorporateBuffer(buffer []byte) bool {
	if !choice.Simpler(buffer, s.target.Buffer) {
		return false
	}
	previous := s.target
	s.runTape(buffer)
	return previous != s.target
}

// considerBuffer is incorporateBuffer treating the unchanged tape as
// success.
func (s *Shrinker) considerBuffer(buffer []byte) bool {
	if bytes.Equal(buffer, s.target.Buffer) {
		return true
	}
	return s.incorporateBuffer(buffer)
}

// updateTarget installs a strictly simpler result and maintains the
// changed-block tracking used by lowerCommonBlockOffset.
func (s *Shrinker) updateTarget(r *data.Result) {
	old := s.target
	s.shrinks++
	if s.current != nil {
		s.current.shrinks++
		s.current.stalls = 0
	}
	if len(r.Blocks) != len(old.Blocks) || !sameBlockBounds(r, old) {
		s.changedBlocks = map[int]bool{}
	} else {
		for i, b := range old.Blocks {
			if !s.changedBlocks[i] &&
				!bytes.Equal(old.Buffer[b.Start:b.End], r.Buffer[b.Start:b.End]) {
				s.changedBlocks[i] = true
			}
		}
	}
	s.target = r
	s.shrinkingBlockSeen = map[int]bool{}
}

func sameBlockBounds(a, b *data.Result) bool {
	if len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		if a.Blocks[i].Start != b.Blocks[i].Start || a.Blocks[i].End != b.Blocks[i].End {
			return false
		}
	}
	return true
}

// Shrink runs the full set of passes to a fixpoint and returns the final
// target. It is safe to call on an already minimal target.
func (s *Shrinker) Shrink() *data.Result {
	// An all-zero tape is assumed unbeatable. This is not strictly true
	// but lets every pass treat non-zero bytes as a signpost of
	// complexity.
	if !anyNonZero(s.target.Buffer) ||
		s.incorporateBuffer(make([]byte, len(s.target.Buffer))) {
		return s.target
	}
	s.greedyShrink()
	return s.target
}

func (s *Shrinker) greedyShrink() {
	// Coarse passes make large scale modifications or delete data; the
	// fine passes make many small changes and are wasteful while bulk
	// data remains; the emergency passes are expensive procedures for
	// getting unstuck, run last in the hope they do nothing.
	coarse := []string{
		"alphabet_minimize",
		"pass_to_descendant",
		"zero_spans",
		"adaptive_span_deletion",
	}
	fine := []string{
		"reorder_spans",
		"minimize_floats",
		"minimize_duplicated_blocks",
		"minimize_individual_blocks",
	}
	emergency := []string{
		"block_program(-XX)",
		"block_program(XX)",
		"span_deletion_with_block_lowering",
	}
	s.fixate(coarse)
	s.fixate(append(coarse, fine...))
	s.fixate(append(append(coarse, fine...), emergency...))
}

// fixate runs steps from each named pass until the shrink target is a
// fixed point of all of them.
func (s *Shrinker) fixate(names []string) {
	passes := make([]*shrinkPass, len(names))
	for i, name := range names {
		p, ok := s.byName[name]
		if !ok {
			panic("unknown shrink pass " + name)
		}
		passes[i] = p
	}

	var initial *data.Result
	for initial != s.target {
		initial = s.target

		type step struct {
			pass *shrinkPass
			i    int
		}
		var steps []step
		for _, p := range passes {
			p.stalls = 0
			if p.fixedPointAt == s.target {
				continue
			}
			p.runs++
			for i := range p.arguments(s) {
				steps = append(steps, step{p, i})
			}
		}
		rnd := s.harness.Random()
		rnd.Shuffle(len(steps), func(i, j int) {
			steps[i], steps[j] = steps[j], steps[i]
		})

		// remove_discarded runs between steps as cleanup. Either there is
		// no discarded data and it is free, or it reliably deletes data,
		// or it fails once and is disabled for the rest of this sweep.
		canDiscard := s.removeDiscarded()
		for _, st := range steps {
			if st.pass.stalls > s.maxStall {
				continue
			}
			st.pass.runStep(s, st.i)
			if canDiscard {
				canDiscard = s.removeDiscarded()
			}
		}
	}
	for _, p := range passes {
		p.fixedPointAt = s.target
	}
}

// removeDiscarded deletes all discarded spans in one attempt, repeating
// while it keeps working. Returns false only if discarded data exists and
// deleting it failed.
func (s *Shrinker) removeDiscarded() bool {
	for {
		var regions [][2]int
		for _, sp := range s.target.Spans {
			if sp.Length() > 0 && sp.Discard &&
				(len(regions) == 0 || sp.Start >= regions[len(regions)-1][1]) {
				regions = append(regions, [2]int{sp.Start, sp.End})
			}
		}
		if len(regions) == 0 {
			return true
		}
		attempt := make([]byte, 0, len(s.target.Buffer))
		prev := 0
		for _, reg := range regions {
			attempt = append(attempt, s.target.Buffer[prev:reg[0]]...)
			prev = reg[1]
		}
		attempt = append(attempt, s.target.Buffer[prev:]...)
		if !s.incorporateBuffer(attempt) {
			return false
		}
	}
}

// markShrinking records that lowering these blocks may reduce the amount
// of data drawn afterwards.
func (s *Shrinker) markShrinking(blocks []int) {
	for _, i := range blocks {
		if s.shrinkingBlockSeen[i] {
			continue
		}
		s.shrinkingBlockSeen[i] = true
		s.shrinkingPrefixes[string(s.target.Buffer[:s.target.Blocks[i].Start])] = true
	}
}

// isShrinkingBlock reports whether block i was previously marked as
// shrinking, matching re-indexed blocks across targets by their prefix.
func (s *Shrinker) isShrinkingBlock(i int) bool {
	if len(s.shrinkingPrefixes) == 0 {
		return false
	}
	if s.shrinkingBlockSeen[i] {
		return true
	}
	if i >= len(s.target.Blocks) {
		return false
	}
	return s.shrinkingPrefixes[string(s.target.Buffer[:s.target.Blocks[i].Start])]
}

// lowerCommonBlockOffset detects that a set of recently changed blocks
// share a non-zero common offset and lowers them all at once. This breaks
// the exponential zig-zag where two draws block each other from reaching
// zero one step at a time.
func (s *Shrinker) lowerCommonBlockOffset() {
	if len(s.changedBlocks) <= 1 {
		return
	}
	current := s.target

	var changed []int
	for i := range s.changedBlocks {
		if i < len(current.Blocks) && anyNonZero(current.BlockBytes(i)) {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return
	}
	sort.Ints(changed)

	ints := make([]*big.Int, len(changed))
	offset := (*big.Int)(nil)
	for k, i := range changed {
		b := current.Blocks[i]
		ints[k] = bigFromBytes(current.Buffer[b.Start:b.End])
		if offset == nil || ints[k].Cmp(offset) < 0 {
			offset = new(big.Int).Set(ints[k])
		}
	}
	for k := range ints {
		ints[k].Sub(ints[k], offset)
	}

	reoffset := func(o *big.Int) bool {
		attempt := append([]byte(nil), current.Buffer...)
		for k, i := range changed {
			b := current.Blocks[i]
			v := new(big.Int).Add(ints[k], o)
			bs, ok := bigToBytes(v, b.Length())
			if !ok {
				return false
			}
			copy(attempt[b.Start:b.End], bs)
		}
		return s.incorporateBuffer(attempt)
	}
	minimizeBig(offset, reoffset)
	s.changedBlocks = map[int]bool{}
}

// tryShrinkingBlocks replaces each listed block with b and reports whether
// an improvement was found. If the replacement shortens the amount of data
// drawn it additionally attempts to delete trailing regions that the size
// dependency left behind.
func (s *Shrinker) tryShrinkingBlocks(blocks []int, b []byte) bool {
	target := s.target
	attempt := append([]byte(nil), target.Buffer...)
	n := len(blocks)
	for i, bi := range blocks {
		if bi >= len(target.Blocks) {
			n = i
			break
		}
		blk := target.Blocks[bi]
		k := blk.Length()
		if len(b) < k {
			k = len(b)
		}
		copy(attempt[blk.End-k:blk.End], b[len(b)-k:])
	}
	blocks = blocks[:n]
	if len(blocks) == 0 {
		return false
	}

	start := target.Blocks[blocks[0]].Start
	end := target.Blocks[blocks[len(blocks)-1]].End

	initial := s.runTape(attempt)
	if initial.Status == data.StatusInteresting {
		s.lowerCommonBlockOffset()
		return initial == s.target
	}
	if initial.Status < data.StatusValid {
		return false
	}
	if len(initial.Buffer) < end {
		return false
	}
	lost := len(target.Buffer) - len(initial.Buffer)
	if lost <= 0 {
		return false
	}

	s.markShrinking(blocks)

	regions := map[[2]int]bool{{end, end + lost}: true}

	// A block shortly after the replaced ones that lost length while
	// keeping its start is deleted from its beginning, which preserves
	// its integer value across the shrink.
	for _, j := range []int{blocks[len(blocks)-1] + 1, blocks[len(blocks)-1] + 2} {
		if j >= len(initial.Blocks) || j >= len(target.Blocks) {
			continue
		}
		b1 := target.Blocks[j]
		b2 := initial.Blocks[j]
		lostHere := b1.Length() - b2.Length()
		if lostHere <= 0 || b1.Start != b2.Start {
			continue
		}
		regions[[2]int{b1.Start, b1.Start + lostHere}] = true
	}

	// A span straddling the replacement whose rightmost children vanished
	// must keep those instead of its leftmost ones.
	for idx, ex := range target.Spans {
		if ex.Start > start || ex.End <= end {
			continue
		}
		if ex.Index >= len(initial.Spans) {
			continue
		}
		var inOriginal, inReplaced []data.Span
		for _, ci := range target.Children(idx) {
			if target.Spans[ci].Start >= end {
				inOriginal = append(inOriginal, target.Spans[ci])
			}
		}
		for _, ci := range initial.Children(ex.Index) {
			if initial.Spans[ci].Start >= end {
				inReplaced = append(inReplaced, initial.Spans[ci])
			}
		}
		if len(inReplaced) >= len(inOriginal) || len(inReplaced) == 0 {
			continue
		}
		regions[[2]int{
			inOriginal[0].Start,
			inOriginal[len(inOriginal)-len(inReplaced)].Start,
		}] = true
	}

	ordered := make([][2]int, 0, len(regions))
	for reg := range regions {
		ordered = append(ordered, reg)
	}
	sort.Slice(ordered, func(i, j int) bool {
		si, sj := ordered[i][1]-ordered[i][0], ordered[j][1]-ordered[j][0]
		if si != sj {
			return si > sj
		}
		return ordered[i][0] < ordered[j][0]
	})

	for _, reg := range ordered {
		u, v := reg[0], reg[1]
		if u < 0 || v > len(attempt) || u >= v {
			continue
		}
		withDeleted := make([]byte, 0, len(attempt)-(v-u))
		withDeleted = append(withDeleted, attempt[:u]...)
		withDeleted = append(withDeleted, attempt[v:]...)
		if s.incorporateBuffer(withDeleted) {
			return true
		}
	}
	return false
}

