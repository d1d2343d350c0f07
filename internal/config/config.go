// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the redaction engine configuration from YAML.
// Every tunable has a safe default; a missing or unreadable config file
// silently falls back to the defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Default settings
	Defaults struct {
		// MaskGlyph is the replacement character written over matched text
		MaskGlyph string `yaml:"mask_glyph"`

		// Checks selects the active detection rules ("all" or CSV of rule ids)
		Checks string `yaml:"checks"`

		// Verbose enables progress output
		Verbose bool `yaml:"verbose"`

		// Debug enables JSON event logging
		Debug bool `yaml:"debug"`

		// NoColor disables colored terminal output
		NoColor bool `yaml:"no_color"`
	} `yaml:"defaults"`

	// Engine holds the binary-redaction tunables. All of them are
	// empirical limits carried over from observed document corpora; they
	// bound best-effort heuristics, not format guarantees.
	Engine struct {
		// DriftTolerance bounds the accepted difference between a piece's
		// logical character count and its decoded character count
		DriftTolerance int `yaml:"drift_tolerance"`

		// DeflateScanStride is the interval for raw-deflate offset guesses
		DeflateScanStride int `yaml:"deflate_scan_stride"`

		// DeflateScanLimit caps compressed-segment candidates per blob
		DeflateScanLimit int `yaml:"deflate_scan_limit"`

		// MaxChainSteps caps FAT chain traversal steps
		MaxChainSteps int `yaml:"max_chain_steps"`

		// MaxNestingDepth bounds recursive embedded-container redaction
		MaxNestingDepth int `yaml:"max_nesting_depth"`

		// WipePreviewImages zeroes preview image streams when set
		WipePreviewImages bool `yaml:"wipe_preview_images"`
	} `yaml:"engine"`

	// Output settings
	Output struct {
		// Dir is where redacted copies are written; empty means alongside
		// the input with a ".redacted" suffix
		Dir string `yaml:"dir"`
	} `yaml:"output"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Defaults.MaskGlyph = "*"
	cfg.Defaults.Checks = "all"
	cfg.Engine.DriftTolerance = 5
	cfg.Engine.DeflateScanStride = 64
	cfg.Engine.DeflateScanLimit = 64
	cfg.Engine.MaxChainSteps = 65536
	cfg.Engine.MaxNestingDepth = 3
	cfg.Engine.WipePreviewImages = true
	return cfg
}

// MaskRune returns the configured mask glyph as a rune. Only the first
// rune of the setting is used; an empty setting yields '*'.
func (c *Config) MaskRune() rune {
	for _, r := range c.Defaults.MaskGlyph {
		return r
	}
	return '*'
}

// LoadConfig loads configuration from path. An empty path returns defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.fillZeroes()
	return cfg, nil
}

// LoadConfigOrDefault loads configuration from path, falling back to the
// defaults on any error.
func LoadConfigOrDefault(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// fillZeroes restores defaults for tunables the file left unset; zero is
// not a usable value for any of them.
func (c *Config) fillZeroes() {
	d := DefaultConfig()
	if c.Defaults.MaskGlyph == "" {
		c.Defaults.MaskGlyph = d.Defaults.MaskGlyph
	}
	if c.Defaults.Checks == "" {
		c.Defaults.Checks = d.Defaults.Checks
	}
	if c.Engine.DriftTolerance <= 0 {
		c.Engine.DriftTolerance = d.Engine.DriftTolerance
	}
	if c.Engine.DeflateScanStride <= 0 {
		c.Engine.DeflateScanStride = d.Engine.DeflateScanStride
	}
	if c.Engine.DeflateScanLimit <= 0 {
		c.Engine.DeflateScanLimit = d.Engine.DeflateScanLimit
	}
	if c.Engine.MaxChainSteps <= 0 {
		c.Engine.MaxChainSteps = d.Engine.MaxChainSteps
	}
	if c.Engine.MaxNestingDepth <= 0 {
		c.Engine.MaxNestingDepth = d.Engine.MaxNestingDepth
	}
}
