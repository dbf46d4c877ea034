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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries driver options that are awkward to pass on the command
// line, loaded from a YAML file through the --config flag. Explicitly set
// flags take precedence over the file.
type Config struct {
	// Timeout is the per-execution time limit for the command under
	// analysis, as a duration string such as "30s".
	Timeout string `yaml:"timeout"`
	// Output is where the reduce command writes its result.
	Output string `yaml:"output"`
	// Examples are inputs the learn command anchors its model on.
	Examples []string `yaml:"examples"`
}

func loadConfig(path string) (Config, error) {
	var config Config
	if path == "" {
		return config, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return config, nil
}

// timeout resolves the per-execution time limit from the flag if set, the
// config file otherwise, and the flag's default as a fallback.
func (c Config) timeout(flagSet bool, flagValue time.Duration) (time.Duration, error) {
	if !flagSet && c.Timeout != "" {
		timeout, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout in config: %w", err)
		}
		return timeout, nil
	}
	return flagValue, nil
}
