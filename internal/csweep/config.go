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
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"CraneSweep/internal/util"
)

const EnvPrefix = "CSWEEP"

// OctalMode is a permission string such as "0744". An unquoted YAML value
// like 0744 arrives as an integer and is converted back to its octal digits.
type OctalMode string

type Config struct {
	Template     string       `mapstructure:"template" yaml:"template"`
	OutputDir    string       `mapstructure:"output_dir" yaml:"output_dir"`
	FileMode     OctalMode    `mapstructure:"file_mode" yaml:"file_mode"`
	CoresPerNode int          `mapstructure:"cores_per_node" yaml:"cores_per_node"`
	DetectCores  bool         `mapstructure:"detect_cores" yaml:"detect_cores"`
	Divisors     []int        `mapstructure:"divisors" yaml:"divisors"`
	Layout       string       `mapstructure:"layout" yaml:"layout"`
	Submit       SubmitConfig `mapstructure:"submit" yaml:"submit"`
	Log          LogConfig    `mapstructure:"log" yaml:"log"`
}

type SubmitConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	Delay   time.Duration `mapstructure:"delay" yaml:"delay"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MarshalYAML writes durations in their string form so that the dump can be
// read back as a config file.
func (s SubmitConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Enabled bool     `yaml:"enabled"`
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
		Delay   string   `yaml:"delay"`
		Timeout string   `yaml:"timeout"`
	}{s.Enabled, s.Command, s.Args, s.Delay.String(), s.Timeout.String()}, nil
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// flagKeys maps config keys to the command line flags that override them.
var flagKeys = map[string]string{
	"template":       "template",
	"output_dir":     "output-dir",
	"cores_per_node": "cores-per-node",
	"detect_cores":   "detect-cores",
	"layout":         "layout",
	"submit.enabled": "submit",
	"submit.command": "queue-cmd",
	"submit.args":    "queue-arg",
	"submit.delay":   "delay",
	"submit.timeout": "timeout",
	"log.level":      "log-level",
	"log.file":       "log-file",
}

// LoadConfig merges defaults, the YAML file at path, CSWEEP_* environment
// variables and the flags that were set on the command line, in increasing
// order of precedence. A missing file is only an error when required is set.
func LoadConfig(path string, required bool, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if required || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			log.Debugf("Config file %s not found, using defaults", path)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag --%s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		octalModeHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func octalModeHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(OctalMode("")) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := reflect.ValueOf(data).Int()
			if n < 0 {
				return nil, fmt.Errorf("invalid file mode %d", n)
			}
			return fmt.Sprintf("0%o", n), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return fmt.Sprintf("0%o", reflect.ValueOf(data).Uint()), nil
		}
		return data, nil
	}
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("template", "template")
	v.SetDefault("output_dir", ".")
	v.SetDefault("file_mode", "0744")
	v.SetDefault("cores_per_node", 24)
	v.SetDefault("detect_cores", false)
	v.SetDefault("divisors", []int{})
	v.SetDefault("layout", string(LayoutNodes))

	v.SetDefault("submit.enabled", false)
	v.SetDefault("submit.command", "qsub")
	v.SetDefault("submit.args", []string{})
	v.SetDefault("submit.delay", time.Second)
	v.SetDefault("submit.timeout", time.Duration(0))

	v.SetDefault("log.level", util.DefaultLogLevel)
	v.SetDefault("log.file", "")
}

// Resolved is a validated Config with its derived values.
type Resolved struct {
	*Config
	Mode   os.FileMode
	Layout Layout
}

// Resolve validates the config and fills in the host core count when
// detect_cores is set.
func (c *Config) Resolve() (*Resolved, error) {
	if c.DetectCores {
		n, err := cpu.Counts(false)
		if err != nil {
			return nil, fmt.Errorf("failed to detect physical cores: %w", err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("failed to detect physical cores: got %d", n)
		}
		log.Infof("Detected %d physical cores on this host", n)
		c.CoresPerNode = n
	}
	if c.CoresPerNode <= 0 {
		return nil, fmt.Errorf("cores per node must be greater than 0, got %d", c.CoresPerNode)
	}
	if err := CheckDivisors(c.CoresPerNode, c.Divisors); err != nil {
		return nil, fmt.Errorf("invalid divisor list: %w", err)
	}
	mode, err := util.ParseFileMode(string(c.FileMode))
	if err != nil {
		return nil, err
	}
	layout, err := ParseLayout(c.Layout)
	if err != nil {
		return nil, err
	}
	if c.Template == "" {
		return nil, fmt.Errorf("template path must be specified")
	}
	if c.OutputDir == "" {
		return nil, fmt.Errorf("output directory must be specified")
	}
	if c.Submit.Enabled && c.Submit.Command == "" {
		return nil, fmt.Errorf("queue command must be specified when submitting")
	}
	if c.Submit.Delay < 0 || c.Submit.Timeout < 0 {
		return nil, fmt.Errorf("delay and timeout must not be negative")
	}
	return &Resolved{Config: c, Mode: mode, Layout: layout}, nil
}

// Dump renders the config as YAML.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func PrintConfig(c *Resolved) {
	log.Debugf("Template: %s", c.Template)
	log.Debugf("Output directory: %s (mode %s)", c.OutputDir, util.FormatFileMode(c.Mode))
	log.Debugf("Cores per node: %d, layout: %s", c.CoresPerNode, c.Layout)
	if c.Submit.Enabled {
		log.Debugf("Queue command: %s %v, delay %v, timeout %v",
			c.Submit.Command, c.Submit.Args, c.Submit.Delay, c.Submit.Timeout)
	}
}
