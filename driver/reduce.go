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
	"fmt"
	"os"
	"time"

	"github.com/conjecture-engine/conjecture/shrink"
	"github.com/urfave/cli/v2"
)

var ReduceCmd = cli.Command{
	Action:    doReduce,
	Name:      "reduce",
	Usage:     "Shrink a file while a command keeps accepting it on stdin",
	ArgsUsage: "<file> <command> [args...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "write the reduced input to the given file instead of <file>.reduced",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "time limit per command execution",
			Value: 10 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "bytes",
			Usage: "skip the line-oriented pass and work on raw bytes only",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "load defaults from a YAML file",
		},
	},
}

func doReduce(context *cli.Context) error {
	if context.Args().Len() < 2 {
		return fmt.Errorf("expected a file and a command, got %v", context.Args().Slice())
	}
	path := context.Args().Get(0)
	command := context.Args().Slice()[1:]

	config, err := loadConfig(context.String("config"))
	if err != nil {
		return err
	}
	timeout, err := config.timeout(context.IsSet("timeout"), context.Duration("timeout"))
	if err != nil {
		return err
	}
	output := context.String("output")
	if output == "" {
		output = config.Output
	}
	if output == "" {
		output = path + ".reduced"
	}

	input, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	pred := newPredicate(command, timeout)
	if !pred.accepts(input) {
		return fmt.Errorf("the command must accept %s before it can be reduced", path)
	}

	reduced := reduce(input, pred.accepts, !context.Bool("bytes"))
	if err := os.WriteFile(output, reduced, 0644); err != nil {
		return err
	}

	fmt.Printf("Reduced %d bytes to %d in %d command runs, result written to %s\n",
		len(input), len(reduced), pred.runs, output)
	return nil
}

// reduce alternates deletion passes with lexicographic byte minimization
// until neither makes progress. The line pass goes first since dropping
// whole lines is by far the cheapest way to lose bulk.
func reduce(input []byte, accepts func([]byte) bool, lines bool) []byte {
	current := input
	for {
		before := current
		if lines {
			split := shrink.Length(splitLines(current), func(candidate [][]byte) bool {
				return accepts(bytes.Join(candidate, nil))
			})
			current = bytes.Join(split, nil)
		}
		current = shrink.Length(current, accepts)
		current = shrink.Minimize(current, accepts)
		if bytes.Equal(current, before) {
			return current
		}
	}
}

// splitLines cuts the input after every newline, keeping the separators so
// that joining the pieces restores the input.
func splitLines(input []byte) [][]byte {
	split := bytes.SplitAfter(input, []byte("\n"))
	if n := len(split); n > 0 && len(split[n-1]) == 0 {
		split = split[:n-1]
	}
	return split
}
