/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package csweep

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("csweep", pflag.ContinueOnError)
	flags.String("template", "template", "")
	flags.String("output-dir", ".", "")
	flags.Int("cores-per-node", 24, "")
	flags.Bool("submit", false, "")
	flags.StringArray("queue-arg", nil, "")
	flags.Duration("delay", time.Second, "")
	flags.String("log-level", "info", "")
	flags.String("log-file", "", "")
	return flags
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "csweep.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false, nil)
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}
	if config.Template != "template" || config.OutputDir != "." || config.FileMode != "0744" {
		t.Errorf("unexpected path defaults: %+v", config)
	}
	if config.CoresPerNode != 24 || config.Layout != "nodes" {
		t.Errorf("unexpected shape defaults: %+v", config)
	}
	if config.Submit.Enabled || config.Submit.Command != "qsub" || config.Submit.Delay != time.Second || config.Submit.Timeout != 0 {
		t.Errorf("unexpected submit defaults: %+v", config.Submit)
	}
}

func TestLoadConfigRequiredFileMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), true, nil); err == nil {
		t.Errorf("LoadConfig() should fail for a missing explicit config file")
	}
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	path := writeConfig(t, `
template: /etc/seissol/template
output_dir: /scratch/launch
cores_per_node: 48
divisors: [1, 2, 48]
layout: ranks
submit:
  enabled: true
  command: sbatch
  args: ["-p", "normal"]
  delay: 2s
  timeout: 1m
`)
	flags := testFlags()
	if err := flags.Parse([]string{"--cores-per-node=24", "--queue-arg=-q", "--queue-arg=batch"}); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path, true, flags)
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}
	if config.Template != "/etc/seissol/template" || config.OutputDir != "/scratch/launch" {
		t.Errorf("paths not read from file: %+v", config)
	}
	if config.CoresPerNode != 24 {
		t.Errorf("CoresPerNode = %d, flag should win", config.CoresPerNode)
	}
	if !reflect.DeepEqual(config.Divisors, []int{1, 2, 48}) {
		t.Errorf("Divisors = %v", config.Divisors)
	}
	if config.Layout != "ranks" {
		t.Errorf("Layout = %q", config.Layout)
	}
	if !config.Submit.Enabled || config.Submit.Command != "sbatch" {
		t.Errorf("Submit = %+v", config.Submit)
	}
	if !reflect.DeepEqual(config.Submit.Args, []string{"-q", "batch"}) {
		t.Errorf("Submit.Args = %v, flag should win", config.Submit.Args)
	}
	if config.Submit.Delay != 2*time.Second || config.Submit.Timeout != time.Minute {
		t.Errorf("durations = %v, %v", config.Submit.Delay, config.Submit.Timeout)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("CSWEEP_OUTPUT_DIR", "/from/env")
	t.Setenv("CSWEEP_SUBMIT_COMMAND", "bsub")
	config, err := LoadConfig("", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if config.OutputDir != "/from/env" || config.Submit.Command != "bsub" {
		t.Errorf("environment not applied: %+v", config)
	}
}

func TestResolve(t *testing.T) {
	base := func() *Config {
		return &Config{
			Template:     "template",
			OutputDir:    ".",
			FileMode:     "0744",
			CoresPerNode: 24,
			Layout:       "nodes",
			Submit:       SubmitConfig{Command: "qsub", Delay: time.Second},
		}
	}

	resolved, err := base().Resolve()
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if resolved.Mode != 0o744 || resolved.Layout != LayoutNodes {
		t.Errorf("Resolve() = %+v", resolved)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cores", func(c *Config) { c.CoresPerNode = 0 }},
		{"bad divisor", func(c *Config) { c.Divisors = []int{1, 5} }},
		{"bad mode", func(c *Config) { c.FileMode = "rwx" }},
		{"bad layout", func(c *Config) { c.Layout = "cores" }},
		{"empty template", func(c *Config) { c.Template = "" }},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
		{"submit without command", func(c *Config) { c.Submit.Enabled = true; c.Submit.Command = "" }},
		{"negative delay", func(c *Config) { c.Submit.Delay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if _, err := c.Resolve(); err == nil {
				t.Errorf("Resolve() should fail")
			}
		})
	}
}

func TestDumpRoundTrip(t *testing.T) {
	config, err := LoadConfig("", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := config.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "delay: 1s") || !strings.Contains(out, "file_mode:") {
		t.Errorf("unexpected dump:\n%s", out)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &raw); err != nil {
		t.Fatalf("dump is not valid YAML: %v", err)
	}
	reloaded, err := LoadConfig(writeConfig(t, out), true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reloaded.Submit, config.Submit) || reloaded.FileMode != config.FileMode {
		t.Errorf("reloaded %+v, want %+v", reloaded, config)
	}
}

func TestLoadConfigFileMode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want os.FileMode
	}{
		{"quoted", "file_mode: \"0644\"\n", 0o644},
		{"unquoted octal", "file_mode: 0644\n", 0o644},
		{"unquoted default", "file_mode: 0744\n", 0o744},
		{"yaml 1.2 octal", "file_mode: 0o750\n", 0o750},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeConfig(t, tt.body), true, nil)
			if err != nil {
				t.Fatalf("LoadConfig() unexpected error: %v", err)
			}
			resolved, err := config.Resolve()
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if resolved.Mode != tt.want {
				t.Errorf("Mode = %o, want %o (file_mode %q)", resolved.Mode, tt.want, config.FileMode)
			}
		})
	}

	t.Run("negative", func(t *testing.T) {
		if _, err := LoadConfig(writeConfig(t, "file_mode: -1\n"), true, nil); err == nil {
			t.Errorf("LoadConfig() should reject a negative file mode")
		}
	})
}

func TestLoadConfigLogFlagsMergeWithFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: warn
  file: /var/log/csweep.log
`)
	flags := testFlags()
	if err := flags.Parse([]string{"--log-level=debug"}); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(path, true, flags)
	if err != nil {
		t.Fatal(err)
	}
	if config.Log.Level != "debug" || config.Log.File != "/var/log/csweep.log" {
		t.Errorf("Log = %+v, want level from flag and file from config", config.Log)
	}
}
