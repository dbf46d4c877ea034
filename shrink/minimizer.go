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
	"math"
	"math/big"
	"sort"

	"github.com/conjecture-engine/conjecture/choice"
)

// Minimizer performs a lexicographic minimization of a fixed-length byte
// block against a predicate. At a fixpoint the lexicographic predecessor of
// the result is not a solution and no single byte can be lowered while
// holding the others fixed; in practice it usually does much better.
type Minimizer struct {
	current   []byte
	condition func([]byte) bool
	full      bool
	changes   int
	seen      map[string]bool
}

// Minimize runs a full minimization of the given block and returns the
// smallest accepted block of the same length. The initial block is assumed
// to satisfy the condition.
func Minimize(initial []byte, condition func([]byte) bool) []byte {
	m := &Minimizer{
		current:   append([]byte(nil), initial...),
		condition: condition,
		full:      true,
		seen:      map[string]bool{},
	}
	m.run()
	return m.current
}

// MinimizeOnce is a single non-iterated sweep, used where the caller
// amortizes re-runs itself.
func MinimizeOnce(initial []byte, condition func([]byte) bool) []byte {
	m := &Minimizer{
		current:   append([]byte(nil), initial...),
		condition: condition,
		seen:      map[string]bool{},
	}
	m.run()
	return m.current
}

// incorporate offers a candidate of the same length. It must not be
// lexicographically above the current block.
func (m *Minimizer) incorporate(candidate []byte) bool {
	if len(candidate) != len(m.current) || bytes.Compare(candidate, m.current) > 0 {
		panic("minimizer candidate is not a reduction")
	}
	key := string(candidate)
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	if !bytes.Equal(candidate, m.current) && m.condition(candidate) {
		m.current = append([]byte(nil), candidate...)
		m.changes++
		return true
	}
	return false
}

// consider is incorporate for candidates that may equal the current block.
func (m *Minimizer) consider(candidate []byte) bool {
	if bytes.Equal(candidate, m.current) {
		return true
	}
	return m.incorporate(candidate)
}

// shift lowers individual bytes by right-shifting them as far as possible.
func (m *Minimizer) shift() {
	prev := -1
	for prev != m.changes {
		prev = m.changes
		for i := range m.current {
			block := append([]byte(nil), m.current...)
			c := block[i]
			for k := bitLength(c); k > 0; k-- {
				block[i] = c >> k
				if m.incorporate(block) {
					break
				}
			}
		}
	}
}

func bitLength(b byte) int {
	n := 0
	for b > 0 {
		n++
		b >>= 1
	}
	return n
}

// shrinkIndices minimizes each byte individually, betting on a monotonic
// lower bound per position.
func (m *Minimizer) shrinkIndices() {
	for i := range m.current {
		minimizeInteger(uint64(m.current[i]), func(v uint64) bool {
			if uint64(m.current[i]) == v {
				return true
			}
			candidate := append([]byte(nil), m.current...)
			candidate[i] = byte(v)
			return m.incorporate(candidate)
		})
	}
}

// minimizeAsInteger binary searches the block interpreted as one big-endian
// integer.
func (m *Minimizer) minimizeAsInteger() {
	current := bigFromBytes(m.current)
	minimizeBig(current, func(v *big.Int) bool {
		if v.Cmp(current) == 0 {
			return true
		}
		bs, ok := bigToBytes(v, len(m.current))
		if !ok {
			return false
		}
		return m.incorporate(bs)
	})
}

func (m *Minimizer) sort() bool {
	candidate := append([]byte(nil), m.current...)
	sort.Slice(candidate, func(i, j int) bool { return candidate[i] < candidate[j] })
	return m.incorporate(candidate)
}

// partialSort sorts as much as possible without moving elements across
// positions the predicate needs stationary. It never swaps elements past a
// blocked one.
func (m *Minimizer) partialSort() {
	ps := append([]byte(nil), m.current...)
	for i := 0; i+1 < len(ps); i++ {
		for j := i + 1; j > 0 && ps[j-1] > ps[j]; j-- {
			prev := append([]byte(nil), ps...)
			ps[j], ps[j-1] = ps[j-1], ps[j]
			if !m.incorporate(ps) {
				ps = prev
			}
		}
	}
}

// floatHack performs shrinks that are only meaningful when the block holds
// the lexicographic encoding of a float. There is no way to know whether it
// does, so the transformations are simply attempted; they are valid byte
// reductions either way.
func (m *Minimizer) floatHack() {
	if len(m.current) != 8 || m.current[0]>>7 == 0 {
		return
	}
	i := bigFromBytes(m.current).Uint64()
	f := choice.LexToFloat(i)

	if choice.IsSimpleFloat(f) {
		m.incorporateFloat(f)
		return
	}

	for _, g := range []float64{math.NaN(), math.Inf(1), math.MaxFloat64} {
		j := choice.FloatToLex(g)
		if j < i && m.incorporateUint(j) {
			f = g
			i = j
		}
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return
	}
	for _, g := range []float64{math.Floor(f), math.Ceil(f)} {
		if m.incorporateFloat(g) {
			return
		}
	}
	if f > 2 {
		m.incorporateFloat(f - 1)
	}
}

func (m *Minimizer) incorporateUint(v uint64) bool {
	bs, ok := bigToBytes(new(big.Int).SetUint64(v), len(m.current))
	if !ok || bytes.Compare(bs, m.current) > 0 {
		return false
	}
	return m.incorporate(bs)
}

func (m *Minimizer) incorporateFloat(f float64) bool {
	return m.incorporateUint(choice.FloatToLex(f))
}

func (m *Minimizer) run() {
	if !anyNonZero(m.current) {
		return
	}
	if len(m.current) == 1 {
		m.minimizeAsInteger()
		return
	}

	// The two smallest possible blocks of this length first; if either
	// works there is nothing left to do.
	if m.incorporate(make([]byte, len(m.current))) {
		return
	}
	almostZero := make([]byte, len(m.current))
	almostZero[len(almostZero)-1] = 1
	if m.incorporate(almostZero) {
		return
	}

	// Binary search for a long prefix that can be zeroed wholesale.
	nonzero := len(m.current)
	canZero := 0
	for m.current[canZero] == 0 {
		canZero++
	}
	base := append([]byte(nil), m.current...)
	binSearch(canZero, nonzero, func(mid int) bool {
		candidate := make([]byte, len(base))
		copy(candidate[mid:], base[mid:])
		return m.consider(candidate)
	})

	// Binary search for how far the whole block can be shifted right.
	base = append([]byte(nil), m.current...)
	binSearch(0, len(base), func(mid int) bool {
		if mid == 0 {
			return true
		}
		if mid == len(base) {
			return false
		}
		candidate := make([]byte, len(base))
		copy(candidate[mid:], base[:len(base)-mid])
		return m.consider(candidate)
	})

	counter := -1
	first := true
	for (first || m.full) && counter < m.changes {
		first = false
		counter = m.changes

		m.sort()
		m.floatHack()
		m.shift()
		m.shrinkIndices()
		m.minimizeAsInteger()
		m.partialSort()
	}
}

func anyNonZero(bs []byte) bool {
	for _, b := range bs {
		if b != 0 {
			return true
		}
	}
	return false
}
