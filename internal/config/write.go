package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrConfigExists is returned by WriteDefault when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

const (
	configFilePermissions = 0o600
	configDirPermissions  = 0o700
)

// configTemplate is the config file written by "config init". Every setting
// is present as a commented-out default.
const configTemplate = `# cloudplay configuration
# Uncomment and modify to override defaults.

[backend]
# gateway_url = "` + defaultGatewayURL + `"
# api_id = 0
# api_hash = ""
# database_dir = ""        # default: <data dir>/backend
# files_dir = ""           # default: <cache dir>/files
# use_test_dc = false
# system_language = "` + defaultSystemLanguage + `"
# device_model = "` + defaultDeviceModel + `"
# requests_per_second = 20 # 0 disables the limit
# event_buffer = 256
# call_timeout = "` + defaultCallTimeout + `"
# connect_timeout = "` + defaultConnectTimeout + `"

[download]
# priority = 32            # 1 (lowest) to 32 (highest)
# synchronous = false
# poll_interval = "` + defaultPollInterval + `"
# poll_attempts = 20

[stream]
# stall_retries = 50       # reads retried at the end of a still-growing file
# stall_interval = "` + defaultStallInterval + `"
# file_wait_attempts = 20
# file_wait_interval = "` + defaultFileWaitInterval + `"
# watch_files = true

[catalog]
# database = ""            # default: <data dir>/catalog.db
# chat_title = "` + defaultChatTitle + `"
# history_page_size = 50
# chat_scan_limit = 100
# lookup_workers = 8

[serve]
# listen = "` + defaultListen + `"
# bandwidth_limit = "0"    # e.g. "2MB/s"; 0 means unlimited
# shutdown_timeout = "` + defaultShutdownTimeout + `"

[logging]
# log_level = "warn"       # debug, info, warn, error
# log_file = ""
# log_format = "auto"      # auto, text, json
`

// WriteDefault writes the commented default config to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	logger.Info("writing default config", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path and renames it into place. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
