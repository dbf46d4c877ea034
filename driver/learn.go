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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/conjecture-engine/conjecture/dfa"
	"github.com/urfave/cli/v2"
)

var LearnCmd = cli.Command{
	Action:    doLearn,
	Name:      "learn",
	Usage:     "Learn a deterministic automaton of the inputs a command accepts on stdin",
	ArgsUsage: "<command> [args...]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "example",
			Usage: "input to learn from, may be repeated",
		},
		&cli.StringFlag{
			Name:  "examples-from",
			Usage: "file with one example per line",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "time limit per command execution",
			Value: 10 * time.Second,
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "load defaults from a YAML file",
		},
	},
}

func doLearn(context *cli.Context) error {
	command := context.Args().Slice()
	if len(command) == 0 {
		return fmt.Errorf("expected a command to learn from")
	}

	config, err := loadConfig(context.String("config"))
	if err != nil {
		return err
	}
	timeout, err := config.timeout(context.IsSet("timeout"), context.Duration("timeout"))
	if err != nil {
		return err
	}

	examples := append(config.Examples, context.StringSlice("example")...)
	if path := context.String("examples-from"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		examples = append(examples,
			strings.Split(strings.TrimRight(string(content), "\n"), "\n")...)
	}
	if len(examples) == 0 {
		return fmt.Errorf("at least one example is needed to anchor the model")
	}

	pred := newPredicate(command, timeout)
	learner := dfa.NewLStar(pred.accepts)
	corpus := make([][]byte, len(examples))
	for i, example := range examples {
		corpus[i] = []byte(example)
	}
	learner.LearnAll(corpus)

	canonical := dfa.NewAutomaton(learner.DFA()).Canonicalize()
	printDFA(os.Stdout, canonical)
	fmt.Printf("Learned from %d command runs\n", pred.runs)
	return nil
}

// printDFA writes the automaton as one transition table per state, bytes
// shown as characters where printable.
func printDFA(out io.Writer, d *dfa.ConcreteDFA) {
	a := dfa.NewAutomaton(d)
	fmt.Fprintf(out, "states: %d\n", d.NumStates())
	if size, finite := dfa.NewIndex(a).Length(); finite {
		fmt.Fprintf(out, "language size: %v\n", size)
	} else {
		fmt.Fprintf(out, "language size: infinite\n")
	}
	for i := 0; i < d.NumStates(); i++ {
		marker := ""
		if i == d.Start() {
			marker += " start"
		}
		if d.IsAccepting(i) {
			marker += " accepting"
		}
		fmt.Fprintf(out, "state %d%s:\n", i, marker)
		for _, t := range a.Transitions(i) {
			if t.Lo == t.Hi {
				fmt.Fprintf(out, "  %s -> %d\n", formatByte(t.Lo), t.To)
			} else {
				fmt.Fprintf(out, "  %s-%s -> %d\n", formatByte(t.Lo), formatByte(t.Hi), t.To)
			}
		}
	}
}

func formatByte(b byte) string {
	if b >= 0x21 && b <= 0x7e {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("0x%02x", b)
}
