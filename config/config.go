// Package config handles the dsq configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds defaults for the command line. Flags override every field.
type Config struct {
	Output OutputConfig `toml:"output"`

	// Lazy compiles pipelines in deferred mode.
	Lazy bool `toml:"lazy"`

	// Timeout bounds a single query run, e.g. "30s". Empty means no limit.
	Timeout string `toml:"timeout"`

	Log LogConfig `toml:"log"`

	Load LoadConfig `toml:"load"`
}

// OutputConfig controls how results are printed.
type OutputConfig struct {
	// Format is "auto", "table" or a loader format name (json, jsonl, csv, yaml).
	Format string `toml:"format"`

	// Color is "auto", "always" or "never".
	Color string `toml:"color"`

	// Compact prints JSON on one line.
	Compact bool `toml:"compact"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LoadConfig configures input loading.
type LoadConfig struct {
	// Concurrency bounds parallel reads for glob inputs. 0 reads every
	// match at once.
	Concurrency int `toml:"concurrency"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Output: OutputConfig{Format: "auto", Color: "auto"},
		Log:    LogConfig{Level: "warn", Format: "text"},
		Load:   LoadConfig{Concurrency: 4},
	}
}

// Load loads the configuration from the default location.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from a specific path. Keys missing from
// the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/dsq/config.toml, falling back to the
// OS-specific config directory.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "dsq", "config.toml")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dsq", "config.toml")
	}
	return "config.toml"
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Output.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("output.color must be auto, always or never, got %q", c.Output.Color)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.Load.Concurrency < 0 {
		return fmt.Errorf("load.concurrency must not be negative")
	}
	return nil
}

// LogLevel parses Log.Level. Empty means warn.
func (c *Config) LogLevel() (slog.Level, error) {
	if c.Log.Level == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// TimeoutDuration parses Timeout. Zero means no limit.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative")
	}
	return d, nil
}
