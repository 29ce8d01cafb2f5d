// Package config loads tool configuration for the coil CLI: compiler
// option overrides, build orchestration settings, and REPL preferences.
// Configuration is optional; every field has a working default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"coil/internal/compiler"
)

// DefaultPath is the project-local config file the CLI looks for when no
// --config flag is given.
const DefaultPath = "coil.yaml"

// EmitTreeEnv enables generated-tree emission when set to a boolean true
// word. It overrides the config file; an explicit CLI flag overrides both.
const EmitTreeEnv = "COIL_EMIT_GENERATED_TREE"

// Config holds all coil configuration.
type Config struct {
	// Compiler holds tri-state option overrides. Absent keys keep the
	// compiler defaults; explicit false is honored.
	Compiler compiler.Overrides `yaml:"compiler"`

	// Build orchestration settings
	Build BuildConfig `yaml:"build"`

	// Interactive session settings
	REPL REPLConfig `yaml:"repl"`

	// Verbose raises the log level to debug.
	Verbose bool `yaml:"verbose"`
}

// BuildConfig controls multi-file build orchestration.
type BuildConfig struct {
	// Parallelism bounds concurrent file compiles. Zero or negative
	// selects the builder default.
	Parallelism int `yaml:"parallelism"`

	// EmitTree dumps each assembled module tree during compilation.
	EmitTree bool `yaml:"emit-tree"`

	// Debounce is the watch-mode settle window as a duration string
	// such as "500ms".
	Debounce string `yaml:"debounce"`
}

// REPLConfig controls the interactive session.
type REPLConfig struct {
	// HistoryFile stores readline history. Empty disables persistence.
	HistoryFile string `yaml:"history-file"`

	// WrapperBase overrides the base name of the wrapper bindings the
	// evaluator generates. Empty keeps the compiler default.
	WrapperBase string `yaml:"wrapper-base"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		REPL: REPLConfig{
			HistoryFile: ".coil_history",
		},
	}
}

// Load reads the config file at path over the defaults and applies
// environment overrides. A missing file is not an error; the defaults
// come back with only the environment applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EmitTreeEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Build.EmitTree = b
		}
	}
}

// GetDebounce returns the watch-mode settle window as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Build.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Options materializes the compiler options with the configured overrides
// applied.
func (c *Config) Options() *compiler.Options {
	return compiler.NewOptions(&c.Compiler)
}
