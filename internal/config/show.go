package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. Secrets are masked.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n")
	ew.printf("# config file: %s\n", r.Path)
	ew.printf("# data dir:    %s\n\n", r.DataDir)

	renderBackendSection(ew, &r.Backend)
	renderDownloadSection(ew, &r.Download)
	renderStreamSection(ew, &r.Stream)
	renderCatalogSection(ew, &r.Catalog)
	renderServeSection(ew, &r.Serve)
	renderLoggingSection(ew, &r.Logging)

	return ew.err
}

// errWriter captures the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderBackendSection(ew *errWriter, b *BackendConfig) {
	ew.printf("[backend]\n")
	ew.printf("  gateway_url         = %q\n", b.GatewayURL)
	ew.printf("  api_id              = %d\n", b.APIID)

	if b.APIHash != "" {
		ew.printf("  api_hash            = \"********\"\n")
	}

	ew.printf("  database_dir        = %q\n", b.DatabaseDir)
	ew.printf("  files_dir           = %q\n", b.FilesDir)
	ew.printf("  use_test_dc         = %t\n", b.UseTestDC)
	ew.printf("  system_language     = %q\n", b.SystemLanguage)
	ew.printf("  device_model        = %q\n", b.DeviceModel)
	ew.printf("  requests_per_second = %g\n", b.RequestsPerSecond)
	ew.printf("  event_buffer        = %d\n", b.EventBuffer)
	ew.printf("  call_timeout        = %q\n", b.CallTimeout)
	ew.printf("  connect_timeout     = %q\n", b.ConnectTimeout)
	ew.printf("\n")
}

func renderDownloadSection(ew *errWriter, d *DownloadConfig) {
	ew.printf("[download]\n")
	ew.printf("  priority      = %d\n", d.Priority)
	ew.printf("  synchronous   = %t\n", d.Synchronous)
	ew.printf("  poll_interval = %q\n", d.PollInterval)
	ew.printf("  poll_attempts = %d\n", d.PollAttempts)
	ew.printf("\n")
}

func renderStreamSection(ew *errWriter, s *StreamConfig) {
	ew.printf("[stream]\n")
	ew.printf("  stall_retries      = %d\n", s.StallRetries)
	ew.printf("  stall_interval     = %q\n", s.StallInterval)
	ew.printf("  file_wait_attempts = %d\n", s.FileWaitAttempts)
	ew.printf("  file_wait_interval = %q\n", s.FileWaitInterval)
	ew.printf("  watch_files        = %t\n", s.WatchFiles)
	ew.printf("\n")
}

func renderCatalogSection(ew *errWriter, c *CatalogConfig) {
	ew.printf("[catalog]\n")
	ew.printf("  database          = %q\n", c.Database)
	ew.printf("  chat_title        = %q\n", c.ChatTitle)
	ew.printf("  history_page_size = %d\n", c.HistoryPageSize)
	ew.printf("  chat_scan_limit   = %d\n", c.ChatScanLimit)
	ew.printf("  lookup_workers    = %d\n", c.LookupWorkers)
	ew.printf("\n")
}

func renderServeSection(ew *errWriter, s *ServeConfig) {
	ew.printf("[serve]\n")
	ew.printf("  listen           = %q\n", s.Listen)
	ew.printf("  bandwidth_limit  = %q\n", s.BandwidthLimit)
	ew.printf("  shutdown_timeout = %q\n", s.ShutdownTimeout)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)

	if l.LogFile != "" {
		ew.printf("  log_file   = %q\n", l.LogFile)
	}

	ew.printf("  log_format = %q\n", l.LogFormat)
}
