package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvOverrides carries configuration read from the environment.
// Empty fields mean "not set".
type EnvOverrides struct {
	ConfigPath     string
	ClientID       string
	SiteID         string
	ResID          string
	Authority      string
	Scope          string
	Thumbprint     string
	PrivateKeyPath string
	DestDir        string
	JournalPath    string
}

// ReadEnvOverrides reads all GRAPHETL_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv("GRAPHETL_CONFIG"),
		ClientID:       os.Getenv("GRAPHETL_CLIENT_ID"),
		SiteID:         os.Getenv("GRAPHETL_SITE_ID"),
		ResID:          os.Getenv("GRAPHETL_RES_ID"),
		Authority:      os.Getenv("GRAPHETL_AUTHORITY"),
		Scope:          os.Getenv("GRAPHETL_SCOPE"),
		Thumbprint:     os.Getenv("GRAPHETL_THUMBPRINT"),
		PrivateKeyPath: os.Getenv("GRAPHETL_PRIVATE_KEY"),
		DestDir:        os.Getenv("GRAPHETL_DEST_DIR"),
		JournalPath:    os.Getenv("GRAPHETL_JOURNAL"),
	}
}

// CLIOverrides carries configuration from command line flags.
// Empty fields mean "not set".
type CLIOverrides struct {
	ConfigPath  string
	DestDir     string
	JournalPath string
}

// Load reads and parses a TOML config file. Unknown keys are fatal —
// silently ignoring a typo in a config file leads to hard-to-debug behavior.
// Validation happens after the override chain in Resolve, not here.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// defaults. Supports env-only operation in CI where no file is present.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain — defaults, config file, environment,
// CLI flags — and validates the result.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if cli.DestDir != "" {
		cfg.DestDir = cli.DestDir
	}

	if cli.JournalPath != "" {
		cfg.JournalPath = cli.JournalPath
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv copies non-empty environment overrides onto cfg.
func applyEnv(cfg *Config, env EnvOverrides) {
	if env.ClientID != "" {
		cfg.Library.ClientID = env.ClientID
	}

	if env.SiteID != "" {
		cfg.Library.SiteID = env.SiteID
	}

	if env.ResID != "" {
		cfg.Library.ResID = env.ResID
	}

	if env.Authority != "" {
		cfg.Library.Authority = env.Authority
	}

	if env.Scope != "" {
		cfg.Library.Scope = env.Scope
	}

	if env.Thumbprint != "" {
		cfg.Credentials.Thumbprint = env.Thumbprint
	}

	if env.PrivateKeyPath != "" {
		cfg.Credentials.PrivateKeyPath = env.PrivateKeyPath
	}

	if env.DestDir != "" {
		cfg.DestDir = env.DestDir
	}

	if env.JournalPath != "" {
		cfg.JournalPath = env.JournalPath
	}
}
