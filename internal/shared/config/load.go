package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MEMOH_LLM_MODEL.
const EnvPrefix = "MEMOH"

// Metadata describes where a loaded configuration came from.
type Metadata struct {
	Path       string
	PathSource string
	FileLoaded bool
}

type loadOptions struct {
	path      string
	envLookup EnvLookup
	homeDir   func() (string, error)
}

// Option customizes Load.
type Option func(*loadOptions)

// WithConfigPath loads the given file instead of the resolved default.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.path = strings.TrimSpace(path)
	}
}

// WithEnvLookup overrides how MEMOH_CONFIG_PATH is resolved.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithHomeDir overrides the home directory used to resolve the default path.
func WithHomeDir(homeDir func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = homeDir
	}
}

// Load layers defaults, the YAML file and MEMOH_* environment variables, in
// that order. A missing file is not an error.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: DefaultEnvLookup, homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{Path: options.path, PathSource: "flag"}
	if meta.Path == "" {
		meta.Path, meta.PathSource = ResolveConfigPath(options.envLookup, options.homeDir)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seeding viper with the defaults registers every key so that
	// AutomaticEnv can override keys absent from the file.
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, meta, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, meta, fmt.Errorf("read defaults: %w", err)
	}

	data, err := os.ReadFile(meta.Path)
	switch {
	case err == nil:
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return Config{}, meta, fmt.Errorf("parse config %s: %w", meta.Path, err)
		}
		meta.FileLoaded = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, meta, fmt.Errorf("read config %s: %w", meta.Path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, meta, fmt.Errorf("decode config: %w", err)
	}
	return cfg, meta, nil
}
