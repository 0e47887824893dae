package config

import "os"

// EnvPrefix prefixes every environment override, e.g. LINEFOLLOWER_STREAM.
const EnvPrefix = "LINEFOLLOWER"

// File returns the config path from LINEFOLLOWER_CONFIG.
// Falls back to the provided default if not set.
func File(defaultPath string) string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return defaultPath
}
