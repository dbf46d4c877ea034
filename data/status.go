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

import "fmt"

// Status describes the outcome of one execution attempt. The order matters:
// a higher status is a strictly better outcome, which the Pareto front
// relies on.
type Status uint8

const (
	// StatusActive is the state of an attempt that is still drawing. It is
	// never observed on a frozen result.
	StatusActive Status = iota
	// StatusOverrun means the attempt ran out of tape (or choice budget)
	// mid-draw.
	StatusOverrun
	// StatusInvalid means the procedure rejected its own input.
	StatusInvalid
	// StatusValid means the procedure ran to completion without failing.
	StatusValid
	// StatusInteresting means the procedure failed; the result carries an
	// Origin identifying the failure.
	StatusInteresting
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusOverrun:
		return "OVERRUN"
	case StatusInvalid:
		return "INVALID"
	case StatusValid:
		return "VALID"
	case StatusInteresting:
		return "INTERESTING"
	}
	return fmt.Sprintf("Status(%d)", s)
}

// Origin identifies a distinct failure by its kind and the source location
// it was raised from. Failures with equal origins are treated as the same
// bug and deduplicated; distinct origins are tracked independently.
type Origin struct {
	Kind string
	File string
	Line int
}

func (o Origin) String() string {
	if o.File == "" {
		return o.Kind
	}
	return fmt.Sprintf("%s at %s:%d", o.Kind, o.File, o.Line)
}

// StopTest is the panic value used to unwind from a draw deep inside the
// test procedure back to the runner. It carries the generation counter of
// the attempt that raised it, so the single recovery boundary can tell a
// current signal from a stale one left over from an abandoned attempt.
// Recovering a StopTest for any other generation is a bug and the value is
// re-panicked.
type StopTest struct {
	Generation uint64
}

func (s StopTest) String() string {
	return fmt.Sprintf("StopTest(generation=%d)", s.Generation)
}
