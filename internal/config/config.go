// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultServer is the relay endpoint used when none is configured.
const DefaultServer = "wss://mles.io"

// Config holds the session parameters. All fields are optional in the file;
// command line flags override anything set here and missing identity fields
// are prompted for interactively.
type Config struct {
	Server      string `toml:"server"`
	Channel     string `toml:"channel"`
	UID         string `toml:"uid"`
	ProxyServer string `toml:"proxy_server"`
	MQTTBroker  string `toml:"mqtt_broker"`
	LogLevel    string `toml:"log_level"`
	LogFile     string `toml:"log_file"`
}

// Default returns a Config with the built-in defaults applied.
func Default() *Config {
	return &Config{
		Server:   DefaultServer,
		LogLevel: "NOTICE",
	}
}

// Load reads a TOML config file and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.LogLevel == "" {
		c.LogLevel = "NOTICE"
	}
}

// Validate rejects contradictory mode selections.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("config: server is required")
	}
	if c.ProxyServer != "" && c.MQTTBroker != "" {
		return fmt.Errorf("config: proxy_server and mqtt_broker are mutually exclusive")
	}
	return nil
}
