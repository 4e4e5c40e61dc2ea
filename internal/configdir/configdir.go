package configdir

import (
	"os"
	"path/filepath"
)

const defaultConfigDir = "/etc/credvault"

// ConfigDir resolves the system configuration directory respecting CREDVAULT_CONFIG_DIR
func ConfigDir() string {
	if env := os.Getenv("CREDVAULT_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return defaultConfigDir
}
