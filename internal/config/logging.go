package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// LoggingConfig controls the console and rotating file outputs. Level and
// Format apply to every output that does not set its own.
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`
}

// RotationConfig is passed to lumberjack as is.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// DefaultLoggingConfig logs to the console only; file output is opt-in.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: OutputConfig{Enabled: true},
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	defaults := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.Dir == "" {
		c.Dir = defaults.Dir
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = defaults.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = defaults.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = defaults.Rotation.MaxAge
	}

	c.Console.inherit(c.Level, c.Format)
	c.File.inherit(c.Level, c.Format)
}

func (o *OutputConfig) inherit(level, format string) {
	if o.Level == "" {
		o.Level = level
	}
	if o.Format == "" {
		o.Format = format
	}
}

// ApplyEnvOverrides reads LOG_LEVEL and LOG_FORMAT. Both replace the
// per-output values too.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		level := strings.ToLower(val)
		c.Level, c.Console.Level, c.File.Level = level, level, level
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		format := strings.ToLower(val)
		c.Format, c.Console.Format, c.File.Format = format, format, format
	}
}

// ResolvePaths places a relative log dir next to the config directory, so
// config/ and logs/ end up siblings.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir == "" || filepath.IsAbs(c.Dir) {
		return
	}
	c.Dir = filepath.Clean(filepath.Join(filepath.Dir(configDir), c.Dir))
}

func (c *LoggingConfig) Validate() error {
	if err := checkLevel("logging.level", c.Level); err != nil {
		return err
	}
	if err := checkFormat("logging.format", c.Format); err != nil {
		return err
	}
	if c.Dir == "" {
		return fmt.Errorf("logging.dir cannot be empty")
	}

	for name, out := range map[string]OutputConfig{"console": c.Console, "file": c.File} {
		if !out.Enabled {
			continue
		}
		if out.Level != "" {
			if err := checkLevel("logging."+name+".level", out.Level); err != nil {
				return err
			}
		}
		if out.Format != "" {
			if err := checkFormat("logging."+name+".format", out.Format); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkLevel(field, level string) error {
	if !slices.Contains(logLevels, level) {
		return fmt.Errorf("invalid %s %q (must be one of %s)", field, level, strings.Join(logLevels, ", "))
	}
	return nil
}

func checkFormat(field, format string) error {
	if !slices.Contains(logFormats, format) {
		return fmt.Errorf("invalid %s %q (must be one of %s)", field, format, strings.Join(logFormats, ", "))
	}
	return nil
}
