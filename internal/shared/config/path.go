package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigDir  = ".memoh"
	defaultConfigName = "config.yaml"

	// ConfigPathEnv overrides the configuration file location.
	ConfigPathEnv = "MEMOH_CONFIG_PATH"
)

// DefaultEnvLookup reads the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ResolveConfigPath returns the configuration file path and its source label.
// Priority order:
//  1. Explicit MEMOH_CONFIG_PATH.
//  2. $HOME/.memoh/config.yaml.
//  3. ./config.yaml when the home directory is unavailable.
func ResolveConfigPath(envLookup EnvLookup, homeDir func() (string, error)) (string, string) {
	if envLookup == nil {
		envLookup = DefaultEnvLookup
	}
	if value, ok := envLookup(ConfigPathEnv); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed, ConfigPathEnv
		}
	}

	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	if home, err := homeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(strings.TrimSpace(home), defaultConfigDir, defaultConfigName), "default"
	}
	return defaultConfigName, "fallback"
}
