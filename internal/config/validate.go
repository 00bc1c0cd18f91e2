package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minPriority          = 1
	maxPriority          = 32
	minPollAttempts      = 1
	maxPollAttempts      = 1000
	maxStallRetries      = 100000
	minWaitAttempts      = 1
	minPageSize          = 1
	maxPageSize          = 100
	minChatScan          = 1
	maxChatScan          = 1000
	minLookupWorkers     = 1
	maxLookupWorkers     = 64
	minEventBuffer       = 1
	minPollInterval      = 10 * time.Millisecond
	minStallInterval     = time.Millisecond
	minCallTimeout       = time.Second
	minConnectTimeout    = time.Second
	minShutdownTimeout   = time.Second
	maxRequestsPerSecond = 1000
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validateDownload(&cfg.Download)...)
	errs = append(errs, validateStream(&cfg.Stream)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)
	errs = append(errs, validateServe(&cfg.Serve)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

var validGatewaySchemes = map[string]bool{"ws": true, "wss": true, "http": true, "https": true}

func validateBackend(b *BackendConfig) []error {
	var errs []error

	u, err := url.Parse(b.GatewayURL)
	switch {
	case b.GatewayURL == "":
		errs = append(errs, errors.New("backend.gateway_url: must not be empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("backend.gateway_url: %w", err))
	case !validGatewaySchemes[u.Scheme] || u.Host == "":
		errs = append(errs, fmt.Errorf("backend.gateway_url: must be a ws, wss, http or https URL, got %q", b.GatewayURL))
	}

	if b.APIID < 0 {
		errs = append(errs, fmt.Errorf("backend.api_id: must be >= 0, got %d", b.APIID))
	}

	if b.RequestsPerSecond < 0 || b.RequestsPerSecond > maxRequestsPerSecond {
		errs = append(errs, fmt.Errorf("backend.requests_per_second: must be between 0 (unlimited) and %d, got %g",
			maxRequestsPerSecond, b.RequestsPerSecond))
	}

	if b.EventBuffer < minEventBuffer {
		errs = append(errs, fmt.Errorf("backend.event_buffer: must be >= %d, got %d", minEventBuffer, b.EventBuffer))
	}

	errs = append(errs, validateDurationMin("backend.call_timeout", b.CallTimeout, minCallTimeout)...)
	errs = append(errs, validateDurationMin("backend.connect_timeout", b.ConnectTimeout, minConnectTimeout)...)

	return errs
}

func validateDownload(d *DownloadConfig) []error {
	var errs []error

	if d.Priority < minPriority || d.Priority > maxPriority {
		errs = append(errs, fmt.Errorf("download.priority: must be between %d and %d, got %d",
			minPriority, maxPriority, d.Priority))
	}

	if d.PollAttempts < minPollAttempts || d.PollAttempts > maxPollAttempts {
		errs = append(errs, fmt.Errorf("download.poll_attempts: must be between %d and %d, got %d",
			minPollAttempts, maxPollAttempts, d.PollAttempts))
	}

	errs = append(errs, validateDurationMin("download.poll_interval", d.PollInterval, minPollInterval)...)

	return errs
}

func validateStream(s *StreamConfig) []error {
	var errs []error

	if s.StallRetries < 0 || s.StallRetries > maxStallRetries {
		errs = append(errs, fmt.Errorf("stream.stall_retries: must be between 0 and %d, got %d",
			maxStallRetries, s.StallRetries))
	}

	if s.FileWaitAttempts < minWaitAttempts {
		errs = append(errs, fmt.Errorf("stream.file_wait_attempts: must be >= %d, got %d",
			minWaitAttempts, s.FileWaitAttempts))
	}

	errs = append(errs, validateDurationMin("stream.stall_interval", s.StallInterval, minStallInterval)...)
	errs = append(errs, validateDurationMin("stream.file_wait_interval", s.FileWaitInterval, minStallInterval)...)

	return errs
}

func validateCatalog(c *CatalogConfig) []error {
	var errs []error

	if c.ChatTitle == "" {
		errs = append(errs, errors.New("catalog.chat_title: must not be empty"))
	}

	if c.HistoryPageSize < minPageSize || c.HistoryPageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("catalog.history_page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, c.HistoryPageSize))
	}

	if c.ChatScanLimit < minChatScan || c.ChatScanLimit > maxChatScan {
		errs = append(errs, fmt.Errorf("catalog.chat_scan_limit: must be between %d and %d, got %d",
			minChatScan, maxChatScan, c.ChatScanLimit))
	}

	if c.LookupWorkers < minLookupWorkers || c.LookupWorkers > maxLookupWorkers {
		errs = append(errs, fmt.Errorf("catalog.lookup_workers: must be between %d and %d, got %d",
			minLookupWorkers, maxLookupWorkers, c.LookupWorkers))
	}

	return errs
}

func validateServe(s *ServeConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("serve.listen: %w", err))
	}

	if _, err := ParseSize(s.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("serve.bandwidth_limit: %w", err))
	}

	errs = append(errs, validateDurationMin("serve.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
