package config

import "golang.org/x/crypto/bcrypt"

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:         ".",
			CredentialsFile: "credentials.json",
			KeyFile:         "encryption.key",
			TimestampFile:   "key_timestamp.json",
			LockFile:        "credvault.lock",
		},
		Rotation: RotationConfig{
			IntervalDays:   30,
			CheckOnStartup: true,
		},
		Hashing: HashingConfig{
			BcryptCost: bcrypt.DefaultCost,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
