// Package config loads the optional CLI configuration file. Flags
// always override configured values; a missing file yields defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the user's home
// directory.
const FileName = ".securestore.yaml"

// DefaultStorePath is the store used when neither flag nor config names
// one.
const DefaultStorePath = "secrets.json"

// Config holds the CLI configuration.
type Config struct {
	// Store is the default vault file path.
	Store string `yaml:"store"`

	// KeyFile is the default key file path. Empty means password mode.
	KeyFile string `yaml:"keyfile"`

	// Upgrade allows loading and upgrading older-schema vaults.
	// The CLI default is true; the library default stays strict.
	Upgrade *bool `yaml:"upgrade"`

	// Audit enables the local audit log.
	Audit bool `yaml:"audit"`

	// AuditPath is the audit log directory. Empty means
	// ~/.securestore/audit.
	AuditPath string `yaml:"audit_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{Store: DefaultStorePath}
}

// Load reads the configuration from the user's home directory. A
// missing file is not an error.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(filepath.Join(home, FileName))
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if cfg.Store == "" {
		cfg.Store = DefaultStorePath
	}
	return cfg, nil
}

// UpgradeAllowed reports whether older vaults may be upgraded. Absent
// from the file, the CLI defaults to allowing upgrades.
func (c *Config) UpgradeAllowed() bool {
	if c.Upgrade == nil {
		return true
	}
	return *c.Upgrade
}
