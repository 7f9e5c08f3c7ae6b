// Package config loads graphetl configuration from a TOML file with
// environment variable and CLI flag overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the TOML file schema.
type Config struct {
	LogLevel    string `toml:"log_level"`
	DestDir     string `toml:"dest_dir"`
	JournalPath string `toml:"journal_path"`

	Library     Library     `toml:"library"`
	Credentials Credentials `toml:"credentials"`
}

// Library identifies the document library and the app registration.
// Field names follow the original configuration vocabulary: res_id is the
// Graph drive ID of the document library.
type Library struct {
	ClientID  string `toml:"client_id"`
	SiteID    string `toml:"site_id"`
	ResID     string `toml:"res_id"`
	Authority string `toml:"authority"`
	Scope     string `toml:"scope"`
}

// Credentials holds the certificate material for the client-credentials flow.
// The private key stays on disk; only its path lives in config.
type Credentials struct {
	Thumbprint     string `toml:"thumbprint"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		DestDir:  ".",
		Library: Library{
			Scope: "https://graph.microsoft.com/.default",
		},
	}
}

// DefaultConfigPath returns the per-user config file location,
// e.g. ~/.config/graphetl/config.toml on Linux.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, "graphetl", "config.toml")
}

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a fully resolved Config. Missing library or credential
// fields are fatal: there is no interactive fallback to prompt for them.
func Validate(cfg *Config) error {
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("config: invalid log_level %q (want debug, info, warn, or error)", cfg.LogLevel)
	}

	required := []struct {
		key   string
		value string
	}{
		{"library.client_id", cfg.Library.ClientID},
		{"library.site_id", cfg.Library.SiteID},
		{"library.res_id", cfg.Library.ResID},
		{"library.authority", cfg.Library.Authority},
		{"library.scope", cfg.Library.Scope},
		{"credentials.thumbprint", cfg.Credentials.Thumbprint},
		{"credentials.private_key_path", cfg.Credentials.PrivateKeyPath},
	}

	var missing []string

	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(cfg.Library.Authority, "https://") {
		return fmt.Errorf("config: library.authority must be an https URL, got %q", cfg.Library.Authority)
	}

	return nil
}

// ReadPrivateKey reads the PEM file named by credentials.private_key_path.
func (c Credentials) ReadPrivateKey() ([]byte, error) {
	data, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading private key: %w", err)
	}

	return data, nil
}
