// Package config holds application configuration for the btlink CLI and any
// embedding program. Values come from defaults, optionally overridden by a
// YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	LogLevel              string `yaml:"log_level" default:"info"`
	ScanSeconds           int    `yaml:"scan_seconds" default:"10"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" default:"30"`
	DiscoverableSeconds   int    `yaml:"discoverable_seconds" default:"120"`
	EventBufferSize       int    `yaml:"event_buffer_size" default:"64"`
	FrameBufferSize       int    `yaml:"frame_buffer_size" default:"64"`

	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig configures the session-to-PTY bridge.
type BridgeConfig struct {
	BufferSize int    `yaml:"buffer_size" default:"4096"`
	TTYSymlink string `yaml:"tty_symlink"`
}

// Default returns the configuration with every field at its default value.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads path over the defaults. A missing file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// ScanDuration returns the scan timeout as a duration.
func (c *Config) ScanDuration() time.Duration {
	return time.Duration(c.ScanSeconds) * time.Second
}

// ConnectTimeout returns the connect handshake timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// DiscoverableDuration returns the advertising window as a duration.
func (c *Config) DiscoverableDuration() time.Duration {
	return time.Duration(c.DiscoverableSeconds) * time.Second
}

// NewLogger creates a logger configured from LogLevel. An unknown level
// falls back to info.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
