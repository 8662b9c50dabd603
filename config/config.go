// Package config loads the TOML configuration file describing how a
// Client should dial its transport and behave once connected, following
// the same BurntSushi/toml decode-into-struct convention as the rest of
// the pack.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level decoded configuration document.
type Config struct {
	Client ClientConfig
	Log    LogConfig
}

// ClientConfig controls dispatcher/control-plane defaults.
type ClientConfig struct {
	// Host is dialed with CONNECT at startup to establish the default
	// realm; empty means the caller connects explicitly after New.
	Host string

	// RequestTimeoutMs bounds a single request's Get() wait.
	RequestTimeoutMs int

	// Debug keeps the transport header on returned messages instead of
	// stripping it after a request completes.
	Debug bool

	// Monitor subscribes to the broadcast queue at startup.
	Monitor bool

	// Mirror additionally mirrors every delivered message into the
	// broadcast queue; implies Monitor.
	Mirror bool
}

// LogConfig controls the charmbracelet/log logger used throughout the
// client.
type LogConfig struct {
	Level      string // debug, info, warn, error
	ReportTime bool
}

// RequestTimeout returns Client.RequestTimeoutMs as a time.Duration,
// defaulting to 5s when unset.
func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Load decodes the TOML document at path into a Config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s has unrecognized keys: %v", path, undecoded)
	}
	return cfg, nil
}

// Default returns a Config with conservative defaults, no host set.
func Default() *Config {
	return &Config{
		Client: ClientConfig{RequestTimeoutMs: 5000},
		Log:    LogConfig{Level: "info"},
	}
}
