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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_EmptyPathIsTheZeroConfig(t *testing.T) {
	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Timeout != "" || config.Output != "" || len(config.Examples) != 0 {
		t.Errorf("expected a zero config, got %+v", config)
	}
}

func TestLoadConfig_ParsesAllFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver.yml")
	content := "timeout: 30s\noutput: out.bin\nexamples:\n  - abc\n  - def\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Timeout != "30s" || config.Output != "out.bin" {
		t.Errorf("unexpected config: %+v", config)
	}
	if len(config.Examples) != 2 || config.Examples[0] != "abc" || config.Examples[1] != "def" {
		t.Errorf("unexpected examples: %v", config.Examples)
	}
}

func TestLoadConfig_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver.yml")
	if err := os.WriteFile(path, []byte("timeout: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Errorf("expected an error for malformed YAML")
	}
}

func TestConfig_TimeoutResolution(t *testing.T) {
	tests := map[string]struct {
		config   Config
		flagSet  bool
		flag     time.Duration
		want     time.Duration
		wantFail bool
	}{
		"flag wins when set": {
			config:  Config{Timeout: "30s"},
			flagSet: true,
			flag:    time.Second,
			want:    time.Second,
		},
		"config wins over the flag default": {
			config: Config{Timeout: "30s"},
			flag:   10 * time.Second,
			want:   30 * time.Second,
		},
		"flag default as fallback": {
			config: Config{},
			flag:   10 * time.Second,
			want:   10 * time.Second,
		},
		"invalid config duration": {
			config:   Config{Timeout: "soon"},
			flag:     10 * time.Second,
			wantFail: true,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := test.config.timeout(test.flagSet, test.flag)
			if test.wantFail {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != test.want {
				t.Errorf("expected %v, got %v", test.want, got)
			}
		})
	}
}
