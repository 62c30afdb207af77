// Package config loads optional on-disk defaults for flags the CLI
// otherwise expects on the command line. A config file is never
// required: every field it can set also has a flag, and flags always
// win when both are given.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults holds the subset of CLI flags a YAML file can pre-fill.
type Defaults struct {
	Multicast   string `yaml:"multicast"`
	Interface   string `yaml:"interface"`
	Device      string `yaml:"device"`
	DelayMs     int    `yaml:"delay_ms"`
	MaxSeqGap   int    `yaml:"max_seq_gap"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads and parses a YAML defaults file. A missing path is not an
// error — it returns a zero-valued Defaults, so a fully flag-driven
// invocation never needs to point at a config file at all.
func Load(path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return d, nil
}
