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
	"math"

	"github.com/conjecture-engine/conjecture/data"
)

// optimiser hill-climbs one target label. The neighbourhood it explores is
// "keep some prefix of the current tape, redraw the rest": it picks a span,
// regenerates everything from the span's start, and also tries splicing
// just the regenerated span back into the current tape. It is deliberately
// naive; it runs in a small budget and prioritizes easy wins.
type optimiser struct {
	runner   *Runner
	current  *data.Result
	target   string
	improved bool
}

func (o *optimiser) run() {
	o.hillClimb(o.lastSpan)
	o.hillClimb(o.randomSpan)
}

func (o *optimiser) score(result *data.Result) float64 {
	if s, ok := result.TargetObservations[o.target]; ok {
		return s
	}
	return math.Inf(-1)
}

// consider adopts the result as the new climbing position if it scores
// strictly better than the current one. Results that merely tie are not
// adopted but also not counted as progress.
func (o *optimiser) consider(result *data.Result) bool {
	if result.Status < data.StatusValid {
		return false
	}
	score := o.score(result)
	if score <= o.score(o.current) {
		return false
	}
	o.improved = true
	o.current = result
	return true
}

func (o *optimiser) considerBuffer(buffer []byte) bool {
	return o.consider(o.runner.CachedTestFunction(buffer))
}

// lastSpan selects the last non-empty span. This works particularly well
// for procedures that draw a variable number of trailing elements.
func (o *optimiser) lastSpan(result *data.Result) int {
	for i := len(result.Spans) - 1; i >= 0; i-- {
		if result.Spans[i].Length() > 0 {
			return i
		}
	}
	return -1
}

// randomSpan selects any non-empty span uniformly at random.
func (o *optimiser) randomSpan(result *data.Result) int {
	if o.lastSpan(result) < 0 {
		return -1
	}
	for {
		i := o.runner.rnd.Intn(len(result.Spans))
		if result.Spans[i].Length() > 0 {
			return i
		}
	}
}

// hillClimb keeps attempting improvements until a modest number of
// consecutive attempts fail, which is weak evidence of a local maximum.
// Reaching a failure stops the climb; shrinking it matters more than
// pushing the score further.
func (o *optimiser) hillClimb(selectSpan func(*data.Result) int) {
	const maxFailures = 10
	failures := 0
	for failures < maxFailures && o.current.Status <= data.StatusValid {
		index := selectSpan(o.current)
		if index < 0 {
			return
		}
		if o.attemptToImprove(index) {
			failures = 0
		} else {
			failures++
		}
	}
}

// attemptToImprove redraws the tape from the start of the selected span. If
// the fresh tape does not score better by itself, the regenerated span is
// spliced into the current tape as a second chance.
func (o *optimiser) attemptToImprove(index int) bool {
	current := o.current
	span := current.Spans[index]
	prefix := current.Buffer[:span.Start]

	attempt := o.runner.executeFresh(prefix)
	if o.consider(attempt) {
		return true
	}
	if index >= len(attempt.Spans) {
		return false
	}
	redrawn := attempt.Spans[index]
	if redrawn.Start != span.Start || redrawn.Length() == 0 {
		return false
	}
	spliced := make([]byte, 0, len(prefix)+redrawn.Length()+len(current.Buffer)-span.End)
	spliced = append(spliced, prefix...)
	spliced = append(spliced, attempt.Buffer[redrawn.Start:redrawn.End]...)
	spliced = append(spliced, current.Buffer[span.End:]...)
	return o.considerBuffer(spliced)
}
