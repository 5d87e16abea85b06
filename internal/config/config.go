// Package config handles conversion run configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshseq/pkg/mesh"
)

// Input extensions understood by the orchestrator.
const (
	ExtPLY     = "ply"
	ExtArchive = "msa"
)

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all run settings.
type Config struct {
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Processing ProcessingConfig `yaml:"processing"`
	Frames     FramesConfig     `yaml:"frames"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InputConfig selects the frame files of a run.
type InputConfig struct {
	Dir       string `yaml:"dir"`       // Working directory; empty means the current directory
	BaseName  string `yaml:"base_name"` // File name prefix, without index or extension
	Extension string `yaml:"extension"` // "ply" or "msa"
}

// OutputConfig names the final archive.
type OutputConfig struct {
	Name string `yaml:"name"` // Part of the output file name; falls back to the base name
}

// ProcessingConfig holds per-frame conversion settings.
type ProcessingConfig struct {
	Color         bool   `yaml:"color"`
	Texture       bool   `yaml:"texture"`
	Workers       int    `yaml:"workers"`
	ColorEncoding string `yaml:"color_encoding"` // "float32" or "uint8"
}

// FramesConfig holds the frame drop-out and cleanup policy.
type FramesConfig struct {
	SkipMissing bool   `yaml:"skip_missing"` // Combine surviving frames when some fail to convert
	KeepTemp    bool   `yaml:"keep_temp"`    // Keep intermediate archives after success
	TempDir     string `yaml:"temp_dir"`     // Intermediate directory name inside Input.Dir
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Extension: ExtPLY,
		},
		Processing: ProcessingConfig{
			Workers:       10,
			ColorEncoding: "float32",
		},
		Frames: FramesConfig{
			TempDir: "TempABCFiles",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Input.Extension != ExtPLY && c.Input.Extension != ExtArchive {
		return fmt.Errorf("%w: unknown input extension %q, expected %q or %q", ErrInvalid, c.Input.Extension, ExtPLY, ExtArchive)
	}
	if c.Processing.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Processing.Workers)
	}
	if _, err := mesh.ParseColorEncoding(c.Processing.ColorEncoding); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Frames.TempDir == "" {
		return fmt.Errorf("%w: temp_dir must not be empty", ErrInvalid)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Logging.Level)
	}
	return nil
}

// OutputName returns the configured output name, falling back to the base name.
func (c *Config) OutputName() string {
	if c.Output.Name != "" {
		return c.Output.Name
	}
	return c.Input.BaseName
}
