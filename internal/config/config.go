package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"credvault/internal/configdir"
	"credvault/internal/fsutil"
)

const (
	systemConfigFile = "config.yaml"
	userConfigDir    = ".credvault"
	userConfigFile   = "config.yaml"
)

// Load loads and merges configuration from system and user files
// Priority: defaults < system config < user config
func Load() (Config, error) {
	cfg := DefaultConfig()

	if err := mergeConfigFile(&cfg, SystemConfigPath()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load system config: %w", err)
		}
	}

	if userPath := UserConfigPath(); userPath != "" {
		if err := mergeConfigFile(&cfg, userPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("failed to load user config: %w", err)
			}
		}
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// LoadFrom loads configuration from a specific file path over the defaults
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// mergeConfigFile decodes a YAML file over cfg. Keys absent from the file keep
// their current value; unknown keys are rejected. cfg is untouched on error.
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is constructed from trusted sources
	if err != nil {
		return err
	}

	merged := *cfg
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&merged); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	*cfg = merged
	return nil
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}

// SystemConfigPath returns the path to the system configuration file
func SystemConfigPath() string {
	return filepath.Join(configdir.ConfigDir(), systemConfigFile)
}

// UserConfigPath returns the path to the user configuration file
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, userConfigFile)
}

// DataDir returns the data directory, honouring CREDVAULT_STATE_DIR
func (c *Config) DataDir() string {
	return fsutil.GetStateDir(c.Storage.DataDir)
}

// CredentialsPath returns the resolved credentials file path
func (c *Config) CredentialsPath() string {
	return c.resolve(c.Storage.CredentialsFile)
}

// KeyPath returns the resolved key file path
func (c *Config) KeyPath() string {
	return c.resolve(c.Storage.KeyFile)
}

// TimestampPath returns the resolved rotation metadata path
func (c *Config) TimestampPath() string {
	return c.resolve(c.Storage.TimestampFile)
}

// LockPath returns the resolved lock file path
func (c *Config) LockPath() string {
	return c.resolve(c.Storage.LockFile)
}

// RotationInterval converts rotation.interval_days to a duration
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.Rotation.IntervalDays) * 24 * time.Hour
}

// Marshal renders the effective configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir(), name)
}
