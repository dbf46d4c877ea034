// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package runner

import (
	"testing"

	"github.com/conjecture-engine/conjecture/data"
)

func TestOptimiser_ClimbsTowardsHigherScores(t *testing.T) {
	test := func(d *data.ConjectureData) {
		v := d.DrawInteger(fullByte())
		d.Target("v", float64(v))
	}
	r := New(test, Settings{Seed: 1})
	start := r.CachedTestFunction([]byte{0})
	if start.Status != data.StatusValid {
		t.Fatalf("expected a valid starting point, got %v", start.Status)
	}
	o := &optimiser{runner: r, current: start, target: "v"}
	o.run()
	if !o.improved {
		t.Fatalf("expected the climb to improve on a zero score")
	}
	if score := o.current.TargetObservations["v"]; score <= 0 {
		t.Errorf("expected a positive score after climbing, got %v", score)
	}
}

func TestOptimiser_StopsClimbingAtAFailure(t *testing.T) {
	test := func(d *data.ConjectureData) {
		v := d.DrawInteger(fullByte())
		d.Target("v", float64(v))
		if v >= 10 {
			d.MarkInteresting(testOrigin)
		}
	}
	r := New(test, Settings{Seed: 1})
	start := r.CachedTestFunction([]byte{0})
	o := &optimiser{runner: r, current: start, target: "v"}
	o.run()
	if o.current.Status != data.StatusInteresting {
		t.Fatalf("expected the climb to stop on a failure, got %v", o.current.Status)
	}
	if len(r.interesting) != 1 {
		t.Errorf("expected the failure to be tracked, got %d", len(r.interesting))
	}
}

func TestOptimiser_RejectsScoreTies(t *testing.T) {
	test := func(d *data.ConjectureData) {
		d.DrawInteger(fullByte())
		d.Target("constant", 42)
	}
	r := New(test, Settings{Seed: 1})
	start := r.CachedTestFunction([]byte{7})
	o := &optimiser{runner: r, current: start, target: "constant"}
	o.run()
	if o.improved {
		t.Errorf("a constant score must never count as an improvement")
	}
	if o.current != start {
		t.Errorf("a constant score must never replace the current example")
	}
}
