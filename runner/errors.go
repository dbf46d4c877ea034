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
	"strings"

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/data"
)

// ErrUnsatisfiable is returned when the generate phase exhausts its budget
// without producing a single valid example.
const ErrUnsatisfiable = choice.ConstErr("unable to generate any valid examples")

// HealthCheckError is returned when a health check fails during generation.
type HealthCheckError struct {
	Check   HealthCheck
	Message string
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check %v failed: %s", e.Check, e.Message)
}

// FlakyError is returned when replaying the stored tape of a tracked
// failure does not reproduce the same failure origin.
type FlakyError struct {
	Origin data.Origin
	Status data.Status
}

func (e *FlakyError) Error() string {
	return fmt.Sprintf(
		"flaky failure: replaying %v produced %v instead of the same failure",
		e.Origin, e.Status)
}

// MultipleFailuresError bundles every distinct failure origin found during
// a run with multi-bug reporting enabled.
type MultipleFailuresError struct {
	Origins []data.Origin
}

func (e *MultipleFailuresError) Error() string {
	descriptions := make([]string, len(e.Origins))
	for i, origin := range e.Origins {
		descriptions[i] = origin.String()
	}
	return fmt.Sprintf("found %d distinct failures: %s",
		len(e.Origins), strings.Join(descriptions, "; "))
}
