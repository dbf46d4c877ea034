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
	"fmt"
	"time"

	"github.com/conjecture-engine/conjecture/database"
)

// Phase is one stage of a run. Phases execute in the order they are declared
// here and can be disabled individually through Settings.
type Phase int

const (
	// PhaseReuse replays tapes recovered from the database.
	PhaseReuse Phase = iota
	// PhaseGenerate produces fresh tapes from novel prefixes.
	PhaseGenerate
	// PhaseTarget hill-climbs towards better target observations.
	PhaseTarget
	// PhaseShrink minimizes every tracked failure.
	PhaseShrink
)

func (p Phase) String() string {
	switch p {
	case PhaseReuse:
		return "reuse"
	case PhaseGenerate:
		return "generate"
	case PhaseTarget:
		return "target"
	case PhaseShrink:
		return "shrink"
	}
	return fmt.Sprintf("Phase(%d)", p)
}

// HealthCheck identifies one of the sanity checks run during generation.
// A failing check aborts the run unless it is suppressed in the settings.
type HealthCheck int

const (
	// HealthCheckDataTooLarge fires when examples routinely overrun the
	// tape budget.
	HealthCheckDataTooLarge HealthCheck = iota
	// HealthCheckFilterTooMuch fires when the procedure rejects far more
	// inputs than it accepts.
	HealthCheckFilterTooMuch
	// HealthCheckTooSlow fires when data generation eats the run's time.
	HealthCheckTooSlow
	// HealthCheckLargeBaseExample fires when the minimal example for the
	// procedure already fills most of the tape budget.
	HealthCheckLargeBaseExample
	// HealthCheckHungTest fires when a single run executes for so long
	// that it was almost certainly not intended to.
	HealthCheckHungTest
)

func (c HealthCheck) String() string {
	switch c {
	case HealthCheckDataTooLarge:
		return "data_too_large"
	case HealthCheckFilterTooMuch:
		return "filter_too_much"
	case HealthCheckTooSlow:
		return "too_slow"
	case HealthCheckLargeBaseExample:
		return "large_base_example"
	case HealthCheckHungTest:
		return "hung_test"
	}
	return fmt.Sprintf("HealthCheck(%d)", c)
}

// Settings configures a run. The zero value is usable; zero fields are
// replaced by the documented defaults when the runner is created.
type Settings struct {
	// MaxExamples bounds the number of valid examples generated before the
	// run stops looking for failures. Defaults to 100.
	MaxExamples int
	// MaxIterations bounds the total number of executions during
	// generation, counting invalid and overrun attempts. Defaults to ten
	// times MaxExamples, but no less than 1000.
	MaxIterations int
	// TimeBudget bounds the wall-clock duration of the whole run. Zero
	// means unlimited.
	TimeBudget time.Duration
	// BufferSize is the tape budget per execution. Defaults to 8 KiB.
	BufferSize int
	// MaxShrinks bounds how often a tracked failure may be replaced by a
	// smaller one before the run stops. Defaults to 500.
	MaxShrinks int
	// MaxDistinctBugs caps how many distinct failure origins are tracked
	// simultaneously. Defaults to 10.
	MaxDistinctBugs int

	// Derandomize fixes the random seed so runs are fully reproducible.
	Derandomize bool
	// Seed seeds the random source when not derandomizing. Zero picks a
	// fresh seed.
	Seed uint64

	// Database persists failing tapes across runs. Nil disables
	// persistence.
	Database database.Database
	// DatabaseKey is the corpus key for this procedure. Persistence is
	// disabled when it is empty.
	DatabaseKey []byte

	// Phases lists the enabled phases. Nil enables all of them.
	Phases []Phase
	// SuppressedHealthChecks lists checks that are ignored when they fail.
	SuppressedHealthChecks []HealthCheck
	// ReportMultipleBugs makes Run return a MultipleFailuresError when
	// more than one distinct failure was found.
	ReportMultipleBugs bool
	// DeadlinePerExample fails the too_slow health check when a single
	// execution takes longer. Zero disables the deadline.
	DeadlinePerExample time.Duration

	// Reporter receives human-readable progress lines. Nil discards them.
	Reporter func(string)
}

// DefaultSettings returns the settings a plain run uses.
func DefaultSettings() Settings {
	return Settings{
		MaxExamples:        defaultMaxExamples,
		BufferSize:         defaultBufferSize,
		MaxShrinks:         defaultMaxShrinks,
		MaxDistinctBugs:    defaultMaxDistinctBugs,
		ReportMultipleBugs: true,
	}
}

func (s Settings) withDefaults() Settings {
	if s.MaxExamples <= 0 {
		s.MaxExamples = defaultMaxExamples
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = max(10*s.MaxExamples, 1000)
	}
	if s.BufferSize <= 0 {
		s.BufferSize = defaultBufferSize
	}
	if s.MaxShrinks <= 0 {
		s.MaxShrinks = defaultMaxShrinks
	}
	if s.MaxDistinctBugs <= 0 {
		s.MaxDistinctBugs = defaultMaxDistinctBugs
	}
	return s
}

func (s Settings) hasPhase(p Phase) bool {
	if s.Phases == nil {
		return true
	}
	for _, enabled := range s.Phases {
		if enabled == p {
			return true
		}
	}
	return false
}

func (s Settings) suppressed(c HealthCheck) bool {
	for _, suppressed := range s.SuppressedHealthChecks {
		if suppressed == c {
			return true
		}
	}
	return false
}
