// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package tree tracks which regions of the tape space have been fully
// explored. It is a byte trie over executed tapes: a node is dead once every
// tape passing through it is known, so the search never revisits it.
package tree

import (
	"slices"

	"github.com/conjecture-engine/conjecture/data"
	"pgregory.net/rand"
)

// Tree is the dead-branch trie. The zero value is not usable; create
// instances with New.
type Tree struct {
	// children holds the byte transitions of each node. Node 0 is the root.
	children []map[byte]int
	dead     map[int]bool
	// forced maps a node to the single byte every execution writes there.
	forced map[int]bool
	bytes  map[int]byte
	// masks maps a node to the bit mask applied to the byte read there,
	// which bounds how many distinct children the node can ever have.
	masks map[int]byte
}

// New creates an empty trie.
func New() *Tree {
	return &Tree{
		children: []map[byte]int{{}},
		dead:     map[int]bool{},
		forced:   map[int]bool{},
		bytes:    map[int]byte{},
		masks:    map[int]byte{},
	}
}

// IsExhausted reports whether every tape has been explored. Once true, no
// novel prefix exists and the search space is proven finite and done.
func (t *Tree) IsExhausted() bool {
	return t.dead[0]
}

// Add records a concluded execution. The path of its tape is inserted, the
// forced and masked positions are remembered, and nodes whose subtrees are
// now completely known are marked dead. Overruns do not close their final
// node since longer tapes through it remain unexplored.
func (t *Tree) Add(r *data.Result) {
	trail := make([]int, 0, len(r.Buffer))
	node := 0
	for i, b := range r.Buffer {
		trail = append(trail, node)
		if r.ForcedIndices[i] {
			t.forced[node] = true
			t.bytes[node] = b
		}
		if m, ok := r.MaskedIndices[i]; ok {
			t.masks[node] = m
		}
		next, ok := t.children[node][b]
		if !ok {
			next = len(t.children)
			t.children = append(t.children, map[byte]int{})
			t.children[node][b] = next
		}
		node = next
	}
	if r.Status == data.StatusOverrun || t.dead[node] {
		return
	}
	t.dead[node] = true
	for i := len(trail) - 1; i >= 0; i-- {
		n := trail[i]
		if len(t.children[n]) < t.branchingFactor(n) {
			return
		}
		for _, child := range t.children[n] {
			if !t.dead[child] {
				return
			}
		}
		t.dead[n] = true
	}
}

// branchingFactor is the number of distinct bytes that can ever be read at
// the given node.
func (t *Tree) branchingFactor(node int) int {
	if t.forced[node] {
		return 1
	}
	if m, ok := t.masks[node]; ok {
		return int(m) + 1
	}
	return 256
}

// Rewrite canonicalizes a tape against the recorded forced bytes and masks,
// so that tapes that would execute identically share one cache identity. It
// reports whether the canonical tape is known to run into a dead node; if
// so, the returned tape is truncated at that node and executing it is
// pointless.
func (t *Tree) Rewrite(buffer []byte) (canonical []byte, knownDead bool) {
	res := slices.Clone(buffer)
	node := 0
	for i := range res {
		if t.dead[node] {
			return res[:i], true
		}
		if t.forced[node] {
			res[i] = t.bytes[node]
		} else if m, ok := t.masks[node]; ok {
			res[i] &= m
		}
		next, ok := t.children[node][res[i]]
		if !ok {
			return res, false
		}
		node = next
	}
	return res, t.dead[node]
}

// GenerateNovelPrefix walks the trie picking bytes that avoid dead subtrees
// and returns a prefix ending in unexplored territory. It must not be
// called on an exhausted tree.
func (t *Tree) GenerateNovelPrefix(rnd *rand.Rand) []byte {
	if t.IsExhausted() {
		panic("GenerateNovelPrefix on an exhausted tree")
	}
	var prefix []byte
	node := 0
	for {
		if t.forced[node] {
			b := t.bytes[node]
			prefix = append(prefix, b)
			next, ok := t.children[node][b]
			if !ok {
				return prefix
			}
			node = next
			continue
		}
		upper := t.branchingFactor(node)
		b := byte(rnd.Intn(upper))
		next, explored := t.children[node][b]
		if explored && t.dead[next] {
			var live []byte
			for v := 0; v < upper; v++ {
				child, ok := t.children[node][byte(v)]
				if !ok || !t.dead[child] {
					live = append(live, byte(v))
				}
			}
			b = live[rnd.Intn(len(live))]
			next, explored = t.children[node][b]
		}
		prefix = append(prefix, b)
		if !explored {
			return prefix
		}
		node = next
	}
}
