// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package pareto maintains an approximate non-dominated set of valid
// execution results, trading exactness for constant amortized insertion
// cost.
package pareto

import (
	"bytes"

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/data"
	"pgregory.net/rand"
)

// Dominance is the outcome of comparing two results.
type Dominance int

const (
	NoDominance Dominance = iota
	Equal
	LeftDominates
	RightDominates
)

func (d Dominance) String() string {
	switch d {
	case NoDominance:
		return "no dominance"
	case Equal:
		return "equal"
	case LeftDominates:
		return "left dominates"
	case RightDominates:
		return "right dominates"
	}
	return "?"
}

// Compare determines the dominance relation between two results. The
// primary criterion is the shortlex order of the tapes; a simpler tape
// dominates unless the other result has a strictly better status, a
// different failure origin, or a strictly better score on any target
// observation.
func Compare(left, right *data.Result) Dominance {
	if bytes.Equal(left.Buffer, right.Buffer) {
		return Equal
	}
	if choice.Simpler(right.Buffer, left.Buffer) {
		if Compare(right, left) == LeftDominates {
			return RightDominates
		}
		return NoDominance
	}
	// left now has the simpler tape.
	if left.Status < right.Status {
		return NoDominance
	}
	if left.Status == data.StatusInteresting && left.Origin != right.Origin {
		return NoDominance
	}
	for label, rightScore := range right.TargetObservations {
		leftScore, ok := left.TargetObservations[label]
		if !ok || leftScore < rightScore {
			return NoDominance
		}
	}
	return LeftDominates
}

// Front is the approximate Pareto front. Membership is keyed by the exact
// tape; all mutation happens through Add.
type Front struct {
	rnd       *rand.Rand
	members   []*data.Result
	index     map[string]int
	listeners []func(*data.Result)
}

// NewFront creates an empty front drawing its sampling decisions from rnd.
func NewFront(rnd *rand.Rand) *Front {
	return &Front{rnd: rnd, index: map[string]int{}}
}

// OnEvict registers a listener invoked for every member removed from the
// front.
func (f *Front) OnEvict(listener func(*data.Result)) {
	f.listeners = append(f.listeners, listener)
}

// Len returns the current number of members.
func (f *Front) Len() int { return len(f.members) }

// Member returns the i-th member. Order is arbitrary and changes across
// insertions.
func (f *Front) Member(i int) *data.Result { return f.members[i] }

// Contains reports whether a result with the given tape is in the front.
func (f *Front) Contains(buffer []byte) bool {
	_, ok := f.index[string(buffer)]
	return ok
}

// Add offers a result to the front and reports whether it is a member
// afterwards. Results below VALID are rejected. The result is inserted
// unconditionally, then checked against up to ten randomly sampled members;
// each pairwise comparison evicts whichever side is dominated. The front is
// therefore only approximately non-dominated, which is all the search
// needs.
func (f *Front) Add(r *data.Result) bool {
	if r.Status < data.StatusValid {
		return false
	}
	key := string(r.Buffer)
	if _, ok := f.index[key]; ok {
		return true
	}
	f.index[key] = len(f.members)
	f.members = append(f.members, r)

	// Sample without replacement by swapping chosen candidates to the end
	// of a snapshot of the other members.
	candidates := make([]*data.Result, len(f.members)-1)
	copy(candidates, f.members[:len(f.members)-1])
	limit := 10
	if len(candidates) < limit {
		limit = len(candidates)
	}
	for k := 0; k < limit; k++ {
		j := f.rnd.Intn(len(candidates) - k)
		last := len(candidates) - k - 1
		candidates[j], candidates[last] = candidates[last], candidates[j]
		other := candidates[last]
		if !f.Contains(other.Buffer) {
			continue
		}
		switch Compare(r, other) {
		case LeftDominates:
			f.evict(other)
		case RightDominates:
			f.evict(r)
			return false
		}
	}
	return true
}

func (f *Front) evict(r *data.Result) {
	key := string(r.Buffer)
	pos, ok := f.index[key]
	if !ok {
		return
	}
	last := len(f.members) - 1
	f.members[pos] = f.members[last]
	f.index[string(f.members[pos].Buffer)] = pos
	f.members = f.members[:last]
	delete(f.index, key)
	for _, listener := range f.listeners {
		listener(r)
	}
}
