// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package paths resolves where the tool keeps its configuration.
package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the configuration directory. ECLIPSO_CONFIG_DIR
// overrides the per-user default.
func GetConfigDir() string {
	if dir := os.Getenv("ECLIPSO_CONFIG_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "eclipso")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".eclipso")
}

// GetConfigFile returns the path to the main config file.
func GetConfigFile() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// FindConfigFile looks for a config file in the working directory, then
// the user config directory. Empty when none exists.
func FindConfigFile() string {
	for _, candidate := range []string{"eclipso.yaml", ".eclipso.yaml", GetConfigFile()} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
