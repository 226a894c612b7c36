// Package config loads gatekeeper configuration from a YAML file with
// ${ENV_VAR} expansion, falling back to defaults suitable for local runs.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gatekeeper configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Breach   BreachConfig   `yaml:"breach"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig holds the Redis connection URL.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds the SQLite database path.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token and challenge settings.
type AuthConfig struct {
	AppName string `yaml:"app_name"`
	// SigningKeyFile points at a PEM-encoded ECDSA P-256 private key. When
	// empty an ephemeral key is generated, which invalidates all tokens on
	// restart.
	SigningKeyFile string        `yaml:"signing_key_file"`
	AccessTTL      time.Duration `yaml:"-"`
	RefreshTTL     time.Duration `yaml:"-"`

	AccessTTLRaw  string `yaml:"access_ttl"`
	RefreshTTLRaw string `yaml:"refresh_ttl"`
}

// BreachConfig toggles the best-effort password breach check.
type BreachConfig struct {
	Enabled bool `yaml:"enabled"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses the config file at path. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := envPattern.ReplaceAllStringFunc(string(raw), func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":9000"},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0"},
		Database: DatabaseConfig{Path: "gatekeeper.db"},
		Auth: AuthConfig{
			AppName:    "CGraph",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Breach: BreachConfig{Enabled: true},
	}
}

func (c *Config) parseDurations() error {
	if c.Auth.AccessTTLRaw != "" {
		d, err := time.ParseDuration(c.Auth.AccessTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing access_ttl: %w", err)
		}
		c.Auth.AccessTTL = d
	}
	if c.Auth.RefreshTTLRaw != "" {
		d, err := time.ParseDuration(c.Auth.RefreshTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_ttl: %w", err)
		}
		c.Auth.RefreshTTL = d
	}
	return nil
}
