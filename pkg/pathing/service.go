package pathing

import (
	"os"
)

const configDirEnv = "TELEMETRY_CONFIG_DIR"

// GetConfigDir honours TELEMETRY_CONFIG_DIR so the services can run unprivileged.
func GetConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return "/etc/cold_chain_telemetry"
}

// EnsureDir creates dir if it does not exist yet.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
