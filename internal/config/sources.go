package config

import (
	"errors"
	"os"
)

// SourcesConfig enables optional change intakes besides the HTTP API.
type SourcesConfig struct {
	Mongo MongoSourceConfig `yaml:"mongo"`
	NATS  NATSSourceConfig  `yaml:"nats"`
}

type MongoSourceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type NATSSourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Subject  string `yaml:"subject"`
	Consumer string `yaml:"consumer"`
}

func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		Mongo: MongoSourceConfig{
			URI: "mongodb://localhost:27017",
		},
		NATS: NATSSourceConfig{
			URL:      "nats://localhost:4222",
			Stream:   "NOSQL2SQL",
			Subject:  "nosql2sql.records",
			Consumer: "nosql2sql",
		},
	}
}

func (c *SourcesConfig) ApplyDefaults() {
	defaults := DefaultSourcesConfig()
	if c.Mongo.URI == "" {
		c.Mongo.URI = defaults.Mongo.URI
	}
	if c.NATS.URL == "" {
		c.NATS.URL = defaults.NATS.URL
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = defaults.NATS.Stream
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = defaults.NATS.Subject
	}
	if c.NATS.Consumer == "" {
		c.NATS.Consumer = defaults.NATS.Consumer
	}
}

func (c *SourcesConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MONGO_URI"); val != "" {
		c.Mongo.URI = val
	}
	if val := os.Getenv("NATS_URL"); val != "" {
		c.NATS.URL = val
	}
}

func (c *SourcesConfig) ResolvePaths(_ string) {}

func (c *SourcesConfig) Validate() error {
	if c.Mongo.Enabled && (c.Mongo.Database == "" || c.Mongo.Collection == "") {
		return errors.New("sources.mongo requires database and collection when enabled")
	}
	return nil
}
