package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultGatewayURL        = "ws://127.0.0.1:8765/v1/session"
	defaultSystemLanguage    = "en"
	defaultDeviceModel       = "cloudplay"
	defaultRequestsPerSecond = 20
	defaultEventBuffer       = 256
	defaultCallTimeout       = "30s"
	defaultConnectTimeout    = "10s"
	defaultPriority          = 32
	defaultPollInterval      = "500ms"
	defaultPollAttempts      = 20
	defaultStallRetries      = 50
	defaultStallInterval     = "100ms"
	defaultFileWaitAttempts  = 20
	defaultFileWaitInterval  = "100ms"
	defaultChatTitle         = "PixelPlay Cloud"
	defaultHistoryPageSize   = 50
	defaultChatScanLimit     = 100
	defaultLookupWorkers     = 8
	defaultListen            = "127.0.0.1:8790"
	defaultBandwidthLimit    = "0"
	defaultShutdownTimeout   = "10s"
	defaultLogLevel          = "warn"
	defaultLogFormat         = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:  defaultBackendConfig(),
		Download: defaultDownloadConfig(),
		Stream:   defaultStreamConfig(),
		Catalog:  defaultCatalogConfig(),
		Serve:    defaultServeConfig(),
		Logging:  defaultLoggingConfig(),
	}
}

func defaultBackendConfig() BackendConfig {
	return BackendConfig{
		GatewayURL:        defaultGatewayURL,
		SystemLanguage:    defaultSystemLanguage,
		DeviceModel:       defaultDeviceModel,
		RequestsPerSecond: defaultRequestsPerSecond,
		EventBuffer:       defaultEventBuffer,
		CallTimeout:       defaultCallTimeout,
		ConnectTimeout:    defaultConnectTimeout,
	}
}

func defaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		Priority:     defaultPriority,
		PollInterval: defaultPollInterval,
		PollAttempts: defaultPollAttempts,
	}
}

func defaultStreamConfig() StreamConfig {
	return StreamConfig{
		StallRetries:     defaultStallRetries,
		StallInterval:    defaultStallInterval,
		FileWaitAttempts: defaultFileWaitAttempts,
		FileWaitInterval: defaultFileWaitInterval,
		WatchFiles:       true,
	}
}

func defaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		ChatTitle:       defaultChatTitle,
		HistoryPageSize: defaultHistoryPageSize,
		ChatScanLimit:   defaultChatScanLimit,
		LookupWorkers:   defaultLookupWorkers,
	}
}

func defaultServeConfig() ServeConfig {
	return ServeConfig{
		Listen:          defaultListen,
		BandwidthLimit:  defaultBandwidthLimit,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
