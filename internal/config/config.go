// Package config loads service configuration from an optional YAML
// file. The vendor credential is never read from the file; it comes
// from the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable holding the vendor credential.
const EnvAPIKey = "ANTHROPIC_API_KEY"

// DefaultPort matches the conventional pipelines server port.
const DefaultPort = 9099

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AnthropicConfig captures vendor endpoint settings. The API key is
// deliberately absent: it is sourced from the environment so it never
// lands in a config file.
type AnthropicConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: DefaultPort},
	}
}

// Load reads YAML configuration from disk, applies defaults, and
// validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration. The credential
// is not checked here: an absent or invalid key surfaces as a vendor
// authentication error on the first call, exactly as the vendor
// reports it.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	return nil
}

// Credential reads the vendor API key from the environment.
func Credential() string {
	return os.Getenv(EnvAPIKey)
}
