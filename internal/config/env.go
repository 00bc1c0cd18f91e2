package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "CLOUDPLAY_CONFIG"
	EnvGatewayURL   = "CLOUDPLAY_GATEWAY_URL"
	EnvGatewayToken = "CLOUDPLAY_GATEWAY_TOKEN" //nolint:gosec // G101: variable name, not a credential
	EnvDataDir      = "CLOUDPLAY_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // CLOUDPLAY_CONFIG: config file path
	GatewayURL   string // CLOUDPLAY_GATEWAY_URL: gateway endpoint
	GatewayToken string // CLOUDPLAY_GATEWAY_TOKEN: bearer token, wins over the saved token file
	DataDir      string // CLOUDPLAY_DATA_DIR: base for state that has no explicit path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		GatewayURL:   os.Getenv(EnvGatewayURL),
		GatewayToken: os.Getenv(EnvGatewayToken),
		DataDir:      os.Getenv(EnvDataDir),
	}
}
