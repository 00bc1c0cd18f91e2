package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Resolved is the outcome of the override chain: the effective Config plus
// where it came from.
type Resolved struct {
	*Config

	Path         string // config file consulted (may not exist)
	DataDir      string
	GatewayToken string `json:"-"` // from the environment; empty means use the token file
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal, with "did you mean?" suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config loaded", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns the
// defaults.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	if env.GatewayURL != "" {
		cfg.Backend.GatewayURL = env.GatewayURL
	}

	if cli.GatewayURL != nil {
		cfg.Backend.GatewayURL = *cli.GatewayURL
	}

	dataDir, cacheDir := DefaultDataDir(), DefaultCacheDir()
	if env.DataDir != "" {
		dataDir = expandTilde(env.DataDir)
		cacheDir = filepath.Join(dataDir, "cache")
	}

	applyPathDefaults(cfg, dataDir, cacheDir)

	// Overrides bypass Load's validation, so check again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &Resolved{
		Config:       cfg,
		Path:         cfgPath,
		DataDir:      dataDir,
		GatewayToken: env.GatewayToken,
	}, nil
}
