package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "cloudplay"

// File and directory names inside the data and cache directories.
const (
	configFileName  = "config.toml"
	catalogFileName = "catalog.db"
	tokenFileName   = "gateway-token.json"
	pidFileName     = "serve.pid"
	backendDirName  = "backend"
	filesDirName    = "files"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/cloudplay).
// On macOS, uses ~/Library/Application Support/cloudplay.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for the catalog,
// the backend session database, and the gateway token.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/cloudplay).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultCacheDir returns the platform-specific directory for downloaded
// media. On Linux, respects XDG_CACHE_HOME (defaults to ~/.cache/cloudplay).
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxCacheDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Caches", appName)
	default:
		return filepath.Join(home, ".cache", appName)
	}
}

func linuxCacheDir(home string) string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".cache", appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// TokenFilePath returns where the gateway token is saved under dataDir.
func TokenFilePath(dataDir string) string {
	return filepath.Join(dataDir, tokenFileName)
}

// applyPathDefaults fills empty state paths from dataDir and cacheDir and
// expands a leading "~/" in the ones that were set.
func applyPathDefaults(cfg *Config, dataDir, cacheDir string) {
	if cfg.Backend.DatabaseDir == "" {
		cfg.Backend.DatabaseDir = filepath.Join(dataDir, backendDirName)
	}

	if cfg.Backend.FilesDir == "" {
		cfg.Backend.FilesDir = filepath.Join(cacheDir, filesDirName)
	}

	if cfg.Catalog.Database == "" {
		cfg.Catalog.Database = filepath.Join(dataDir, catalogFileName)
	}

	cfg.Backend.DatabaseDir = expandTilde(cfg.Backend.DatabaseDir)
	cfg.Backend.FilesDir = expandTilde(cfg.Backend.FilesDir)
	cfg.Catalog.Database = expandTilde(cfg.Catalog.Database)
	cfg.Logging.LogFile = expandTilde(cfg.Logging.LogFile)
}

// expandTilde replaces a leading "~/" with the user's home directory. If the
// home directory is unknown the path is returned unchanged.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// PIDFilePath returns where a running server records its PID under dataDir.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}
