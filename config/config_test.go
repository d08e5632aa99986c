package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrom(t *testing.T) {
	path := writeConfig(t, `
lazy = true
timeout = "30s"

[output]
format = "json"
compact = true

[log]
level = "debug"
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Lazy)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.True(t, cfg.Output.Compact)
	// unset keys keep their defaults
	assert.Equal(t, "auto", cfg.Output.Color)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Load.Concurrency)

	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "lazy = "},
		{"unknown key", "colour = \"always\"\n"},
		{"bad color", "[output]\ncolor = \"sometimes\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad timeout", "timeout = \"soon\"\n"},
		{"negative concurrency", "[load]\nconcurrency = -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".config", "dsq", "config.toml"), DefaultPath())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
