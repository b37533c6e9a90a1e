// Package config provides YAML-based configuration loading for panoramix.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level panoramix configuration, loaded from panoramix.yaml.
type Config struct {
	PeerID        string               `yaml:"peer_id"`
	Database      DatabaseConfig       `yaml:"database"`
	Crypto        CryptoConfig         `yaml:"crypto"`
	Proofs        ProofConfig          `yaml:"proofs"`
	API           APIConfig            `yaml:"api"`
	Alerts        AlertConfig          `yaml:"alerts"`
	EndpointTypes []EndpointTypeConfig `yaml:"endpoint_types"`
}

// DatabaseConfig selects the record store. Driver "mysql" talks to a
// MySQL-compatible server (Dolt included); "sqlite" opens a local file.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
}

// CryptoConfig holds the hashing algorithm and this node's signing key.
type CryptoConfig struct {
	Hash    string `yaml:"hash"`
	KeyFile string `yaml:"key_file"`
	KeyID   string `yaml:"key_id"`
}

// ProofConfig controls periodic process proof refresh.
type ProofConfig struct {
	Schedule string `yaml:"schedule"`
	Disabled bool   `yaml:"disabled"`
}

// APIConfig holds audit API settings.
type APIConfig struct {
	Port int `yaml:"port"`
}

// AlertConfig holds integrity alert sinks.
type AlertConfig struct {
	SlackWebhook string `yaml:"slack_webhook"`
}

// EndpointTypeConfig limits how many links may feed each box of an
// endpoint of this type. Zero means unlimited.
type EndpointTypeConfig struct {
	Name             string `yaml:"name"`
	MaxInboxSources  int    `yaml:"max_inbox_sources"`
	MaxOutboxSources int    `yaml:"max_outbox_sources"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" && c.PeerID != "" {
			c.Database.Name = "panoramix_" + c.PeerID
		}
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "panoramix.db"
		}
	}
	if c.Crypto.Hash == "" {
		c.Crypto.Hash = "sha256"
	}
	if c.Crypto.KeyID == "" {
		c.Crypto.KeyID = c.PeerID
	}
	if c.Proofs.Schedule == "" {
		c.Proofs.Schedule = "@every 5m"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if len(c.EndpointTypes) == 0 {
		c.EndpointTypes = DefaultEndpointTypes()
	}
}

// DefaultEndpointTypes returns the built-in endpoint type descriptors.
func DefaultEndpointTypes() []EndpointTypeConfig {
	return []EndpointTypeConfig{
		{Name: "mailbox"},
		{Name: "mix", MaxOutboxSources: 1},
		{Name: "relay", MaxInboxSources: 1, MaxOutboxSources: 1},
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.PeerID == "" {
		errs = append(errs, "peer_id is required")
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	switch c.Crypto.Hash {
	case "sha256", "sha3-256":
	default:
		errs = append(errs, fmt.Sprintf("crypto.hash %q is not supported (sha256, sha3-256)", c.Crypto.Hash))
	}
	seen := make(map[string]bool)
	for i, et := range c.EndpointTypes {
		if et.Name == "" {
			errs = append(errs, fmt.Sprintf("endpoint_types[%d].name is required", i))
			continue
		}
		if seen[et.Name] {
			errs = append(errs, fmt.Sprintf("endpoint_types[%d].name %q is duplicated", i, et.Name))
		}
		seen[et.Name] = true
		if et.MaxInboxSources < 0 || et.MaxOutboxSources < 0 {
			errs = append(errs, fmt.Sprintf("endpoint_types[%d] source limits must not be negative", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
