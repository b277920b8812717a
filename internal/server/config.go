package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds HTTP listener settings. The write timeout also bounds a
// synchronous snapshot import issued over HTTP.
type Config struct {
	Host             string        `yaml:"host"`
	HTTPPort         int           `yaml:"http_port"`
	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"http_idle_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		HTTPPort:         8080,
		HTTPReadTimeout:  15 * time.Second,
		HTTPWriteTimeout: 10 * time.Minute,
		HTTPIdleTimeout:  60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Addr is the host:port the listener binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = d.HTTPPort
	}
	for _, f := range []struct{ v, def *time.Duration }{
		{&c.HTTPReadTimeout, &d.HTTPReadTimeout},
		{&c.HTTPWriteTimeout, &d.HTTPWriteTimeout},
		{&c.HTTPIdleTimeout, &d.HTTPIdleTimeout},
		{&c.ShutdownTimeout, &d.ShutdownTimeout},
	} {
		if *f.v == 0 {
			*f.v = *f.def
		}
	}
}

// ApplyEnvOverrides reads HTTP_HOST and HTTP_PORT. An unparsable port is
// left for Validate to report.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("HTTP_HOST"); val != "" {
		c.Host = val
	}
	if val := os.Getenv("HTTP_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			port = -1
		}
		c.HTTPPort = port
	}
}

func (c *Config) ResolvePaths(_ string) {}

func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.HTTPPort)
	}
	if c.HTTPReadTimeout < 0 || c.HTTPWriteTimeout < 0 || c.HTTPIdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}
