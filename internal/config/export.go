package config

import (
	"errors"
	"time"
)

// ExportConfig controls polling of point-in-time exports.
type ExportConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPolls bounds the number of status checks; 0 polls until a terminal state.
	MaxPolls int `yaml:"max_polls"`
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{PollInterval: 5 * time.Second}
}

func (c *ExportConfig) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultExportConfig().PollInterval
	}
}

func (c *ExportConfig) ApplyEnvOverrides() {}

func (c *ExportConfig) ResolvePaths(_ string) {}

func (c *ExportConfig) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("export.poll_interval must be positive")
	}
	if c.MaxPolls < 0 {
		return errors.New("export.max_polls must not be negative")
	}
	return nil
}

// QueueConfig sizes the change queue.
type QueueConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{BufferSize: 256}
}

func (c *QueueConfig) ApplyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultQueueConfig().BufferSize
	}
}

func (c *QueueConfig) ApplyEnvOverrides() {}

func (c *QueueConfig) ResolvePaths(_ string) {}

func (c *QueueConfig) Validate() error { return nil }
