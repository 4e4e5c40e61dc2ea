package config

// Config represents the complete credvault configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Rotation RotationConfig `yaml:"rotation"`
	Hashing  HashingConfig  `yaml:"hashing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig names the data directory and the files kept in it.
// Relative file names resolve against DataDir.
type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	CredentialsFile string `yaml:"credentials_file"`
	KeyFile         string `yaml:"key_file"`
	TimestampFile   string `yaml:"timestamp_file"`
	LockFile        string `yaml:"lock_file"`
}

// RotationConfig controls the key rotation schedule
type RotationConfig struct {
	IntervalDays   int  `yaml:"interval_days"`
	CheckOnStartup bool `yaml:"check_on_startup"`
}

// HashingConfig represents password hashing configuration
type HashingConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
