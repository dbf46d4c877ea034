// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package choice defines the primitive vocabulary of the engine: the closed
// set of choice kinds, the constraints attached to each draw, the recorded
// choice nodes, the lexicographic float encoding, and the shortlex ordering
// over raw tapes.
package choice

import (
	"bytes"
	"fmt"
	"math"
	"slices"
)

// Kind enumerates the primitive draw operations. The set is closed; codec
// and shrinker code switches exhaustively over it.
type Kind uint8

const (
	Integer Kind = iota
	Boolean
	Float
	String
	Bytes
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Float:
		return "float"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Constraints is the per-kind payload restricting a draw. Implementations
// are the *Constraints structs below, one per Kind.
type Constraints interface {
	Kind() Kind
	// Equal reports whether the receiver restricts a draw in exactly the
	// same way as other. Replaying recorded nodes against a procedure that
	// issues different constraints is a misalignment, detected with this.
	Equal(other Constraints) bool
}

// IntegerConstraints restricts an integer draw to [Min, Max], optionally
// weighting individual values. ShrinkTowards is the value the shrinker
// steers the draw to; it must lie inside the range.
type IntegerConstraints struct {
	Min, Max      int64
	ShrinkTowards int64
	// Weights assigns relative weights to Max-Min+1 consecutive values.
	// Empty means uniform.
	Weights []float64
}

func (c *IntegerConstraints) Kind() Kind { return Integer }

func (c *IntegerConstraints) Equal(other Constraints) bool {
	o, ok := other.(*IntegerConstraints)
	return ok && c.Min == o.Min && c.Max == o.Max &&
		c.ShrinkTowards == o.ShrinkTowards && slices.Equal(c.Weights, o.Weights)
}

// BooleanConstraints restricts a boolean draw to come up true with
// probability P.
type BooleanConstraints struct {
	P float64
}

func (c *BooleanConstraints) Kind() Kind { return Boolean }

func (c *BooleanConstraints) Equal(other Constraints) bool {
	o, ok := other.(*BooleanConstraints)
	return ok && c.P == o.P
}

// FloatConstraints restricts a float draw. NaN values are only produced if
// AllowNaN is set, and are always canonicalized to a single bit pattern.
type FloatConstraints struct {
	Min, Max float64
	AllowNaN bool
}

func (c *FloatConstraints) Kind() Kind { return Float }

func (c *FloatConstraints) Equal(other Constraints) bool {
	o, ok := other.(*FloatConstraints)
	return ok && sameFloat(c.Min, o.Min) && sameFloat(c.Max, o.Max) &&
		c.AllowNaN == o.AllowNaN
}

// StringConstraints restricts a string draw to runes of the given alphabet
// and a size in [MinSize, MaxSize].
type StringConstraints struct {
	Alphabet         []rune
	MinSize, MaxSize int
}

func (c *StringConstraints) Kind() Kind { return String }

func (c *StringConstraints) Equal(other Constraints) bool {
	o, ok := other.(*StringConstraints)
	return ok && slices.Equal(c.Alphabet, o.Alphabet) &&
		c.MinSize == o.MinSize && c.MaxSize == o.MaxSize
}

// BytesConstraints restricts a bytes draw to a size in [MinSize, MaxSize].
type BytesConstraints struct {
	MinSize, MaxSize int
}

func (c *BytesConstraints) Kind() Kind { return Bytes }

func (c *BytesConstraints) Equal(other Constraints) bool {
	o, ok := other.(*BytesConstraints)
	return ok && c.MinSize == o.MinSize && c.MaxSize == o.MaxSize
}

// Value is the realized result of one draw, tagged by Kind.
type Value struct {
	Kind    Kind
	Int     int64
	Bool    bool
	Float   float64
	Str     string
	Byte    []byte
}

// IntegerValue wraps v as a Value.
func IntegerValue(v int64) Value { return Value{Kind: Integer, Int: v} }

// BooleanValue wraps v as a Value.
func BooleanValue(v bool) Value { return Value{Kind: Boolean, Bool: v} }

// FloatValue wraps v as a Value.
func FloatValue(v float64) Value { return Value{Kind: Float, Float: v} }

// StringValue wraps v as a Value.
func StringValue(v string) Value { return Value{Kind: String, Str: v} }

// BytesValue wraps v as a Value.
func BytesValue(v []byte) Value { return Value{Kind: Bytes, Byte: v} }

// Equal reports whether two values are the same draw result. Floats compare
// by bit pattern so that shrink passes can unify NaN draws.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Integer:
		return v.Int == o.Int
	case Boolean:
		return v.Bool == o.Bool
	case Float:
		return sameFloat(v.Float, o.Float)
	case String:
		return v.Str == o.Str
	case Bytes:
		return bytes.Equal(v.Byte, o.Byte)
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case Integer:
		return fmt.Sprintf("%d", v.Int)
	case Boolean:
		return fmt.Sprintf("%t", v.Bool)
	case Float:
		return fmt.Sprintf("%g", v.Float)
	case String:
		return fmt.Sprintf("%q", v.Str)
	case Bytes:
		return fmt.Sprintf("0x%x", v.Byte)
	}
	return "?"
}

// Node records one primitive draw: its kind and constraints, the realized
// value, whether the value was forced from outside, and the half-open byte
// range [Start, End) it occupies on the tape.
type Node struct {
	Kind        Kind
	Constraints Constraints
	Value       Value
	WasForced   bool
	Start, End  int
}

// sameFloat compares floats by bit pattern, so NaN == NaN and 0.0 != -0.0.
func sameFloat(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}
