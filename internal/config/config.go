// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudplay. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Every setting lives in a named section.
type Config struct {
	Backend  BackendConfig  `toml:"backend" json:"backend"`
	Download DownloadConfig `toml:"download" json:"download"`
	Stream   StreamConfig   `toml:"stream" json:"stream"`
	Catalog  CatalogConfig  `toml:"catalog" json:"catalog"`
	Serve    ServeConfig    `toml:"serve" json:"serve"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
}

// BackendConfig describes the chat gateway and the parameters sent to it
// when the session starts. Empty directories fall back to the platform data
// and cache directories.
type BackendConfig struct {
	GatewayURL        string  `toml:"gateway_url" json:"gateway_url"`
	APIID             int     `toml:"api_id" json:"api_id"`
	APIHash           string  `toml:"api_hash" json:"-"`
	DatabaseDir       string  `toml:"database_dir" json:"database_dir"`
	FilesDir          string  `toml:"files_dir" json:"files_dir"`
	UseTestDC         bool    `toml:"use_test_dc" json:"use_test_dc"`
	SystemLanguage    string  `toml:"system_language" json:"system_language"`
	DeviceModel       string  `toml:"device_model" json:"device_model"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	EventBuffer       int     `toml:"event_buffer" json:"event_buffer"`
	CallTimeout       string  `toml:"call_timeout" json:"call_timeout"`
	ConnectTimeout    string  `toml:"connect_timeout" json:"connect_timeout"`
}

// DownloadConfig tunes how file downloads are requested and polled.
type DownloadConfig struct {
	Priority     int    `toml:"priority" json:"priority"`
	Synchronous  bool   `toml:"synchronous" json:"synchronous"`
	PollInterval string `toml:"poll_interval" json:"poll_interval"`
	PollAttempts int    `toml:"poll_attempts" json:"poll_attempts"`
}

// StreamConfig tunes the progressive reader's wait for data still in flight.
type StreamConfig struct {
	StallRetries     int    `toml:"stall_retries" json:"stall_retries"`
	StallInterval    string `toml:"stall_interval" json:"stall_interval"`
	FileWaitAttempts int    `toml:"file_wait_attempts" json:"file_wait_attempts"`
	FileWaitInterval string `toml:"file_wait_interval" json:"file_wait_interval"`
	WatchFiles       bool   `toml:"watch_files" json:"watch_files"`
}

// CatalogConfig controls the local song index and how it is synced from the
// library channel.
type CatalogConfig struct {
	Database        string `toml:"database" json:"database"`
	ChatTitle       string `toml:"chat_title" json:"chat_title"`
	HistoryPageSize int    `toml:"history_page_size" json:"history_page_size"`
	ChatScanLimit   int    `toml:"chat_scan_limit" json:"chat_scan_limit"`
	LookupWorkers   int    `toml:"lookup_workers" json:"lookup_workers"`
}

// ServeConfig controls the local HTTP streaming server.
type ServeConfig struct {
	Listen          string `toml:"listen" json:"listen"`
	BandwidthLimit  string `toml:"bandwidth_limit" json:"bandwidth_limit"`
	ShutdownTimeout string `toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig controls log output: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFile   string `toml:"log_file" json:"log_file"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	GatewayURL *string // --gateway flag
}

// Duration parses a duration string that has already passed Validate.
// Invalid input yields zero.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
