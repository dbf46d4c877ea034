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
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/data"
)

func (s *Shrinker) registerPass(name string,
	generate func(s *Shrinker) []passArgs,
	execute func(s *Shrinker, arg passArgs),
) {
	p := &shrinkPass{name: name, generate: generate, execute: execute}
	s.passes = append(s.passes, p)
	s.byName[name] = p
}

func (s *Shrinker) registerPasses() {
	s.registerPass("alphabet_minimize", generateAlphabetMinimize, executeAlphabetMinimize)
	s.registerPass("pass_to_descendant", generatePassToDescendant, executePassToDescendant)
	s.registerPass("zero_spans", generateZeroSpans, executeZeroSpans)
	s.registerPass("adaptive_span_deletion", generateAdaptiveSpanDeletion, executeAdaptiveSpanDeletion)
	s.registerPass("reorder_spans", generateReorderSpans, executeReorderSpans)
	s.registerPass("minimize_floats", generateMinimizeFloats, executeMinimizeFloats)
	s.registerPass("minimize_duplicated_blocks", generateMinimizeDuplicatedBlocks, executeMinimizeDuplicatedBlocks)
	s.registerPass("minimize_individual_blocks", generateMinimizeIndividualBlocks, executeMinimizeIndividualBlocks)
	s.registerPass("span_deletion_with_block_lowering", generateSpanDeletionWithBlockLowering, executeSpanDeletionWithBlockLowering)
	s.registerBlockProgram("-XX")
	s.registerBlockProgram("XX")
}

// alphabet_minimize reduces the set of byte values occurring anywhere in the
// tape. Collapsing distinct values onto each other raises the cache hit rate
// and often slips the whole tape to a simpler representation of the same bug.

func generateAlphabetMinimize(*Shrinker) []passArgs {
	args := make([]passArgs, 256)
	for c := range args {
		args[c] = passArgs{a: c}
	}
	return args
}

func executeAlphabetMinimize(s *Shrinker, arg passArgs) {
	c := byte(arg.a)
	buf := s.target.Buffer
	if !bytes.Contains(buf, []byte{c}) {
		return
	}

	canReplaceWith := func(d int) bool {
		if d < 0 {
			return false
		}
		attempt := append([]byte(nil), buf...)
		for i, b := range attempt {
			if b == c {
				attempt[i] = byte(d)
			}
		}
		if !s.considerBuffer(attempt) {
			return false
		}
		if d <= 1 {
			// Replacing with a near-minimal byte worked, so attempt a
			// bulk replacement of all values just below c as well. Tapes
			// with many dead bytes shrink in one go this way instead of
			// one byte value at a time.
			replaceRange := func(k int) bool {
				if k > int(c) {
					return false
				}
				bulk := append([]byte(nil), buf...)
				for i, b := range bulk {
					if int(c)-k <= int(b) && b <= c && d < int(b) {
						bulk[i] = byte(d)
					}
				}
				return s.considerBuffer(bulk)
			}
			FindInteger(replaceRange)
		}
		return true
	}

	// A byte that cannot even drop to its predecessor is taken as already
	// minimal, so non-shrinkable values cost one call each.
	if !canReplaceWith(int(c)-1) || canReplaceWith(0) || canReplaceWith(1) ||
		!canReplaceWith(int(c)-2) {
		return
	}

	// We cannot replace with lo, we can replace with hi.
	lo, hi := 1, int(c)-2
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if canReplaceWith(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
}

// pass_to_descendant replaces a span with one of its descendants carrying
// the same label. Recursive generators produce nested same-labeled spans,
// and any subtree is a valid replacement for its ancestor. Quadratic in the
// number of spans, so it runs on already small targets.

func generatePassToDescendant(s *Shrinker) []passArgs {
	byLabel := map[uint64][]int{}
	for i, sp := range s.target.Spans {
		byLabel[sp.Label] = append(byLabel[sp.Label], i)
	}
	var args []passArgs
	for _, ls := range byLabel {
		if len(ls) <= 1 {
			continue
		}
		for x, i := range ls[:len(ls)-1] {
			anc := s.target.Spans[i]
			for _, j := range ls[x+1:] {
				if s.target.Spans[j].Start >= anc.End {
					break
				}
				args = append(args, passArgs{a: i, b: j})
			}
		}
	}
	sort.Slice(args, func(i, j int) bool {
		if args[i].a != args[j].a {
			return args[i].a < args[j].a
		}
		return args[i].b < args[j].b
	})
	return args
}

func executePassToDescendant(s *Shrinker, arg passArgs) {
	if arg.a >= len(s.target.Spans) || arg.b >= len(s.target.Spans) {
		return
	}
	anc := s.target.Spans[arg.a]
	desc := s.target.Spans[arg.b]
	buf := s.target.Buffer
	attempt := make([]byte, 0, len(buf))
	attempt = append(attempt, buf[:anc.Start]...)
	attempt = append(attempt, buf[desc.Start:desc.End]...)
	attempt = append(attempt, buf[anc.End:]...)
	s.incorporateBuffer(attempt)
}

// zero_spans replaces each non-trivial span with zero bytes. If the zeroed
// span draws less data than the original, a second attempt pads with
// exactly as many zero bytes as the replacement consumed.

func generateZeroSpans(s *Shrinker) []passArgs {
	var args []passArgs
	for i := range s.target.Spans {
		if !s.target.SpanIsTrivial(i) {
			args = append(args, passArgs{a: i})
		}
	}
	return args
}

func executeZeroSpans(s *Shrinker, arg passArgs) {
	if arg.a >= len(s.target.Spans) {
		return
	}
	ex := s.target.Spans[arg.a]
	u, v := ex.Start, ex.End
	buf := s.target.Buffer
	attempt := make([]byte, 0, len(buf))
	attempt = append(attempt, buf[:u]...)
	attempt = append(attempt, make([]byte, v-u)...)
	attempt = append(attempt, buf[v:]...)
	r := s.runTape(attempt)
	if r.Status == data.StatusOverrun || arg.a >= len(r.Spans) {
		return
	}
	replacement := r.Spans[arg.a]
	used := replacement.Length()
	if !s.predicate(r) && replacement.End < len(r.Buffer) && used < ex.Length() {
		shorter := make([]byte, 0, len(buf)-(v-u)+used)
		shorter = append(shorter, buf[:u]...)
		shorter = append(shorter, make([]byte, used)...)
		shorter = append(shorter, buf[v:]...)
		s.incorporateBuffer(shorter)
	}
}

// adaptive_span_deletion deletes spans, expanding each successful deletion
// to neighbouring spans in both directions. The tape is partitioned at span
// endpoints up to increasing depths, coarse partitions first.

func generateAdaptiveSpanDeletion(s *Shrinker) []passArgs {
	var args []passArgs
	for i, partition := range s.endpointsByDepth() {
		for j := range partition {
			args = append(args, passArgs{a: i, b: j})
		}
	}
	return args
}

func executeAdaptiveSpanDeletion(s *Shrinker, arg passArgs) {
	partitions := s.endpointsByDepth()
	if arg.a >= len(partitions) {
		return
	}
	partition := partitions[arg.a]
	j := arg.b
	// Deleting up to the last endpoint would just try a prefix.
	if j >= len(partition)-1 {
		return
	}

	deleteRegion := func(a, b int) bool {
		if a < 0 || b >= len(partition)-1 {
			return false
		}
		buf := s.target.Buffer
		if partition[b] > len(buf) {
			return false
		}
		attempt := make([]byte, 0, len(buf))
		attempt = append(attempt, buf[:partition[a]]...)
		attempt = append(attempt, buf[partition[b]:]...)
		return s.considerBuffer(attempt)
	}

	toRight := FindInteger(func(n int) bool { return deleteRegion(j, j+n) })
	if toRight > 0 {
		FindInteger(func(n int) bool { return deleteRegion(j-n, j+toRight) })
	}
}

// endpointsByDepth partitions the tape at the endpoints of all spans up to
// some depth, one partition per depth that adds new boundaries. Cached per
// shrink target.
func (s *Shrinker) endpointsByDepth() [][]int {
	if s.endpointsFor == s.target {
		return s.endpoints
	}
	atDepth := map[int]map[int]bool{}
	maxDepth := 0
	for _, ex := range s.target.Spans {
		m := atDepth[ex.Depth]
		if m == nil {
			m = map[int]bool{}
			atDepth[ex.Depth] = m
		}
		m[ex.Start] = true
		m[ex.End] = true
		if ex.Depth > maxDepth {
			maxDepth = ex.Depth
		}
	}
	prev := map[int]bool{0: true, len(s.target.Buffer): true}
	var partitions [][]int
	for d := 0; d <= maxDepth; d++ {
		grew := false
		for e := range atDepth[d] {
			if !prev[e] {
				grew = true
				break
			}
		}
		if !grew {
			continue
		}
		next := map[int]bool{}
		for e := range prev {
			next[e] = true
		}
		for e := range atDepth[d] {
			next[e] = true
		}
		partition := make([]int, 0, len(next))
		for e := range next {
			partition = append(partition, e)
		}
		sort.Ints(partition)
		partitions = append(partitions, partition)
		prev = next
	}
	s.endpoints = partitions
	s.endpointsFor = s.target
	return partitions
}

// reorder_spans sorts the children of each span into shortlex order so
// that which of two exchangeable draws carries the failure is canonical.

func generateReorderSpans(s *Shrinker) []passArgs {
	var args []passArgs
	for i := range s.target.Spans {
		if !s.target.SpanIsTrivial(i) && len(s.target.Children(i)) > 1 {
			args = append(args, passArgs{a: i})
		}
	}
	return args
}

func executeReorderSpans(s *Shrinker, arg passArgs) {
	target := s.target
	if arg.a >= len(target.Spans) {
		return
	}
	ex := target.Spans[arg.a]
	children := target.Children(arg.a)
	pieces := make([][]byte, len(children))
	for k, ci := range children {
		c := target.Spans[ci]
		pieces[k] = target.Buffer[c.Start:c.End]
	}
	prefix := target.Buffer[:ex.Start]
	suffix := target.Buffer[ex.End:]
	Ordering(pieces, func(ls [][]byte) bool {
		attempt := make([]byte, 0, len(target.Buffer))
		attempt = append(attempt, prefix...)
		for _, p := range ls {
			attempt = append(attempt, p...)
		}
		attempt = append(attempt, suffix...)
		return s.incorporateBuffer(attempt)
	})
}

// minimize_floats applies value-level float shrinks to each float draw.
// The transformations only make sense for the lexicographic float encoding
// and cannot be discovered by bytewise minimization, e.g. replacing a NaN
// with an infinity or a float with its nearest integer.

func generateMinimizeFloats(s *Shrinker) []passArgs {
	var args []passArgs
	for i, n := range s.target.Nodes {
		if n.Kind == choice.Float && !n.WasForced && n.End-n.Start >= 9 {
			args = append(args, passArgs{a: i})
		}
	}
	return args
}

func executeMinimizeFloats(s *Shrinker, arg passArgs) {
	if arg.a >= len(s.target.Nodes) {
		return
	}
	node := s.target.Nodes[arg.a]
	if node.Kind != choice.Float || node.End-node.Start < 9 {
		return
	}
	// The last eight bytes of the draw hold the accepted magnitude;
	// everything before them is the sign byte and any rejected probes.
	u, v := node.End-8, node.End
	buf := s.target.Buffer
	b := buf[u:v]
	f := choice.LexToFloat(binary.BigEndian.Uint64(b))
	var b2 [8]byte
	binary.BigEndian.PutUint64(b2[:], choice.FloatToLex(f))

	reencode := func(x float64) bool {
		live := s.target.Buffer
		if v > len(live) {
			return false
		}
		attempt := make([]byte, 0, len(live))
		attempt = append(attempt, live[:u]...)
		var enc [8]byte
		binary.BigEndian.PutUint64(enc[:], choice.FloatToLex(x))
		attempt = append(attempt, enc[:]...)
		attempt = append(attempt, live[v:]...)
		return s.considerBuffer(attempt)
	}
	if bytes.Equal(b, b2[:]) || reencode(f) {
		Float(f, reencode)
	}
}

// minimize_duplicated_blocks lowers all blocks sharing the same non-zero
// suffix simultaneously. Values that cannot shrink independently of each
// other often shrink together, e.g. an element that must stay equal to a
// separately drawn value.

func generateMinimizeDuplicatedBlocks(s *Shrinker) []passArgs {
	args := make([]passArgs, len(duplicatedBlockSuffixes(s.target)))
	for i := range args {
		args[i] = passArgs{a: i}
	}
	return args
}

func executeMinimizeDuplicatedBlocks(s *Shrinker, arg passArgs) {
	groups := duplicatedBlockSuffixes(s.target)
	if arg.a >= len(groups) {
		return
	}
	g := groups[arg.a]
	MinimizeOnce(g.suffix, func(b []byte) bool {
		return s.tryShrinkingBlocks(g.blocks, b)
	})
}

type blockGroup struct {
	suffix []byte
	blocks []int
}

// duplicatedBlockSuffixes groups block indices by the non-zero suffix of
// their contents, keeping only non-empty suffixes occurring more than once.
func duplicatedBlockSuffixes(r *data.Result) []blockGroup {
	groups := map[string][]int{}
	for i := range r.Blocks {
		suffix := nonZeroSuffix(r.BlockBytes(i))
		if len(suffix) > 0 {
			groups[string(suffix)] = append(groups[string(suffix)], i)
		}
	}
	var res []blockGroup
	for suffix, blocks := range groups {
		if len(blocks) > 1 {
			res = append(res, blockGroup{suffix: []byte(suffix), blocks: blocks})
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].suffix, res[j].suffix) < 0
	})
	return res
}

func nonZeroSuffix(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// minimize_individual_blocks lexicographically minimizes each block on its
// own. This is what guarantees that every drawn integer ends up at the
// boundary value of whatever condition kept the result interesting.

func generateMinimizeIndividualBlocks(s *Shrinker) []passArgs {
	args := make([]passArgs, len(s.target.Blocks))
	for i := range args {
		args[i] = passArgs{a: i}
	}
	return args
}

func executeMinimizeIndividualBlocks(s *Shrinker, arg passArgs) {
	if arg.a >= len(s.target.Blocks) {
		return
	}
	i := arg.a
	MinimizeOnce(s.target.BlockBytes(i), func(b []byte) bool {
		return s.tryShrinkingBlocks([]int{i}, b)
	})
}

// span_deletion_with_block_lowering deletes a span while lowering an
// earlier shrinking block by one. This unsticks data that could easily be
// deleted except that doing so changes how many draws a lowered size field
// permits. Expensive, so it runs as an emergency pass.

func generateSpanDeletionWithBlockLowering(s *Shrinker) []passArgs {
	var args []passArgs
	for i, blk := range s.target.Blocks {
		if !s.isShrinkingBlock(i) {
			continue
		}
		for j, ex := range s.target.Spans {
			if ex.Start >= blk.End && ex.Length() > 0 {
				args = append(args, passArgs{a: i, b: j})
			}
		}
	}
	return args
}

func executeSpanDeletionWithBlockLowering(s *Shrinker, arg passArgs) {
	if arg.a >= len(s.target.Blocks) || arg.b >= len(s.target.Spans) {
		return
	}
	blk := s.target.Blocks[arg.a]
	ex := s.target.Spans[arg.b]
	if ex.Start < blk.End {
		return
	}
	u, v := blk.Start, blk.End
	n := bigFromBytes(s.target.Buffer[u:v])
	if n.Sign() == 0 {
		return
	}
	lowered, ok := bigToBytes(new(big.Int).Sub(n, big.NewInt(1)), v-u)
	if !ok {
		return
	}
	buf := s.target.Buffer
	attempt := make([]byte, 0, len(buf)-ex.Length())
	attempt = append(attempt, buf[:u]...)
	attempt = append(attempt, lowered...)
	attempt = append(attempt, buf[v:ex.Start]...)
	attempt = append(attempt, buf[ex.End:]...)
	s.incorporateBuffer(attempt)
}

// registerBlockProgram installs a pass running a small block rewriting
// program over every contiguous run of blocks of the program's length.
// Commands: "-" subtracts one from the block (skipping the run when it is
// zero), "0" zeroes it, "X" deletes it, "." leaves it alone.
func (s *Shrinker) registerBlockProgram(description string) {
	name := "block_program(" + description + ")"
	s.registerPass(name,
		func(s *Shrinker) []passArgs {
			args := make([]passArgs, len(s.target.Blocks))
			for i := range args {
				args[i] = passArgs{a: i}
			}
			return args
		},
		func(s *Shrinker, arg passArgs) {
			s.runBlockProgram(arg.a, description)
		},
	)
}

func (s *Shrinker) runBlockProgram(i int, description string) {
	n := len(description)
	if i+n > len(s.target.Blocks) {
		return
	}
	attempt := append([]byte(nil), s.target.Buffer...)
	for k := n - 1; k >= 0; k-- {
		blk := s.target.Blocks[i+k]
		u, v := blk.Start, blk.End
		switch description[k] {
		case '-':
			value := bigFromBytes(attempt[u:v])
			if value.Sign() == 0 {
				return
			}
			bs, ok := bigToBytes(value.Sub(value, big.NewInt(1)), v-u)
			if !ok {
				return
			}
			copy(attempt[u:v], bs)
		case '0':
			for j := u; j < v; j++ {
				attempt[j] = 0
			}
		case 'X':
			attempt = append(attempt[:u], attempt[v:]...)
		case '.':
		default:
			panic("unrecognised block program command " + description[k:k+1])
		}
	}
	s.incorporateBuffer(attempt)
}
