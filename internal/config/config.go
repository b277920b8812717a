package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/guidewire-oss/nosql2sql/internal/server"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where config.yml and config.local.yml are looked up.
const DefaultDir = "config"

// Config holds the application configuration
type Config struct {
	Server  server.Config `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	// Connections
	Postgres PostgresConfig `yaml:"postgres"`
	AWS      AWSConfig      `yaml:"aws"`

	// Replication
	Mapping MappingConfig `yaml:"mapping"`
	Export  ExportConfig  `yaml:"export"`
	Queue   QueueConfig   `yaml:"queue"`
	Sources SourcesConfig `yaml:"sources"`
}

// DefaultConfig returns the configuration used before any file is read.
func DefaultConfig() *Config {
	return &Config{
		Server:   server.DefaultConfig(),
		Logging:  DefaultLoggingConfig(),
		Postgres: DefaultPostgresConfig(),
		AWS:      DefaultAWSConfig(),
		Mapping:  DefaultMappingConfig(),
		Export:   DefaultExportConfig(),
		Queue:    DefaultQueueConfig(),
		Sources:  DefaultSourcesConfig(),
	}
}

// Load loads configuration from files and environment variables.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults -> ApplyEnvOverrides -> ResolvePaths -> Validate
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultDir
	}

	// 1. Start with default values (so YAML can override them, including bool fields)
	cfg := DefaultConfig()

	// 2. Load config.yml (overrides defaults)
	loadFile(filepath.Join(configDir, "config.yml"), cfg)

	// 3. Load config.local.yml (overrides config.yml)
	loadFile(filepath.Join(configDir, "config.local.yml"), cfg)

	// 4. Apply configuration lifecycle
	if err := ApplyServiceConfigs(configDir,
		&cfg.Server,
		&cfg.Logging,
		&cfg.Postgres,
		&cfg.AWS,
		&cfg.Mapping,
		&cfg.Export,
		&cfg.Queue,
		&cfg.Sources,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return cfg, nil
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}
