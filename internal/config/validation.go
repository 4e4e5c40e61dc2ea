package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// maxIntervalDays keeps the interval within time.Duration range with room to spare
const maxIntervalDays = 3650

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateRotation()...)
	errors = append(errors, c.validateHashing()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errors = append(errors, ValidationError{
			Path:    "storage.data_dir",
			Message: "must not be empty",
		})
	}

	files := []struct {
		path  string
		value string
	}{
		{"storage.credentials_file", c.Storage.CredentialsFile},
		{"storage.key_file", c.Storage.KeyFile},
		{"storage.timestamp_file", c.Storage.TimestampFile},
		{"storage.lock_file", c.Storage.LockFile},
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.value) == "" {
			errors = append(errors, ValidationError{Path: f.path, Message: "must not be empty"})
			continue
		}
		resolved := filepath.Clean(c.resolve(f.value))
		if other, dup := seen[resolved]; dup {
			errors = append(errors, ValidationError{
				Path:    f.path,
				Message: fmt.Sprintf("must differ from %s, both resolve to '%s'", other, resolved),
			})
			continue
		}
		seen[resolved] = f.path
	}

	return errors
}

func (c *Config) validateRotation() []ValidationError {
	if c.Rotation.IntervalDays >= 1 && c.Rotation.IntervalDays <= maxIntervalDays {
		return nil
	}

	return []ValidationError{{
		Path:    "rotation.interval_days",
		Message: fmt.Sprintf("must be between 1 and %d, got %d", maxIntervalDays, c.Rotation.IntervalDays),
	}}
}

func (c *Config) validateHashing() []ValidationError {
	if c.Hashing.BcryptCost >= bcrypt.MinCost && c.Hashing.BcryptCost <= bcrypt.MaxCost {
		return nil
	}

	return []ValidationError{{
		Path:    "hashing.bcrypt_cost",
		Message: fmt.Sprintf("must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Hashing.BcryptCost),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		errors = append(errors, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
		})
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, c.Logging.Format) {
		errors = append(errors, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validFormats, c.Logging.Format),
		})
	}

	return errors
}

// contains checks if a string is in a slice
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
