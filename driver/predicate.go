// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dsnet/golib/unitconv"
)

const reportInterval = 5 * time.Second

// predicate answers membership queries by running a command with the
// candidate input on stdin. Exit code zero means the input is accepted.
// Results are cached since both reduction and learning revisit candidates.
type predicate struct {
	command []string
	timeout time.Duration

	cache      map[string]bool
	queries    int
	runs       int
	start      time.Time
	lastReport time.Time
}

func newPredicate(command []string, timeout time.Duration) *predicate {
	now := time.Now()
	return &predicate{
		command:    command,
		timeout:    timeout,
		cache:      map[string]bool{},
		start:      now,
		lastReport: now,
	}
}

func (p *predicate) accepts(input []byte) bool {
	p.queries++
	if accepted, ok := p.cache[string(input)]; ok {
		return accepted
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	accepted := cmd.Run() == nil

	p.cache[string(input)] = accepted
	p.runs++
	p.maybeReport()
	return accepted
}

func (p *predicate) maybeReport() {
	if time.Since(p.lastReport) < reportInterval {
		return
	}
	p.lastReport = time.Now()
	elapsed := time.Since(p.start)
	rate := float64(p.runs) / elapsed.Seconds()
	fmt.Printf(
		"[t=%4d:%02d] - Running ~%s commands per second, total %d, answered from cache %d\n",
		int(elapsed.Seconds())/60, int(elapsed.Seconds())%60,
		unitconv.FormatPrefix(rate, unitconv.SI, 0), p.runs, p.queries-p.runs,
	)
}
