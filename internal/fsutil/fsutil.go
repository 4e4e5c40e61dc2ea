package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"credvault/internal/logging"
)

const (
	// DefaultStateDir is the default location for credvault data files
	DefaultStateDir = "."
	// DefaultStatePermissions is the default permission for data directories
	DefaultStatePermissions = 0o700
	// DefaultFilePermissions is the default permission for data files
	DefaultFilePermissions = 0o600

	stateDirEnv = "CREDVAULT_STATE_DIR"
)

// ErrStorage marks every StorageError so callers can match with errors.Is
var ErrStorage = errors.New("storage error")

// StorageError reports a data file that exists but cannot be read, parsed or written.
// A missing file is never a StorageError; callers decide what absence means.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorage) match any StorageError
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// GetStateDir returns the data directory from environment or uses the provided default.
// It returns an absolute path when possible.
func GetStateDir(defaultDir string) string {
	if env := os.Getenv(stateDirEnv); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	return defaultDir
}

// EnsureStateDirectory creates the data directory if it doesn't exist.
func EnsureStateDirectory(path string) error {
	if err := os.MkdirAll(path, DefaultStatePermissions); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

// ReadFileIfExists reads path. The boolean is false when the file does not exist;
// any other read failure is returned as a StorageError.
func ReadFileIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "read", Path: path, Err: err}
	}
	return data, true, nil
}

// AtomicWriteFile writes data to a temp file in the target directory, syncs it and
// renames it over path. Readers observe either the previous content or the new one.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &StorageError{Op: "create temp", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			if logger != nil {
				logger.Warn("fsutil.cleanup_failed", "Failed to remove temp file", map[string]interface{}{
					"path":  tmpPath,
					"error": removeErr.Error(),
				})
			}
		}
	}

	if _, err := tmp.Write(data); err != nil {
		CloseWithError(tmp.Close, logger, tmpPath)
		cleanup()
		return &StorageError{Op: "write temp", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		CloseWithError(tmp.Close, logger, tmpPath)
		cleanup()
		return &StorageError{Op: "sync temp", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &StorageError{Op: "close temp", Path: path, Err: err}
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return &StorageError{Op: "chmod temp", Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return &StorageError{Op: "rename", Path: path, Err: err}
	}

	syncDir(dir, logger)
	return nil
}

// syncDir flushes the directory entry after a rename. Not all platforms allow
// opening a directory for sync, so failures are only logged.
func syncDir(dir string, logger *logging.Logger) {
	d, err := os.Open(filepath.Clean(dir)) // #nosec G304 -- directory of a configured path
	if err != nil {
		return
	}
	defer CloseWithError(d.Close, logger, dir)
	if err := d.Sync(); err != nil && logger != nil {
		logger.Debug("fsutil.dir_sync_failed", "Directory sync not supported", map[string]interface{}{
			"path":  dir,
			"error": err.Error(),
		})
	}
}

// CloseWithError closes a resource and logs any error if a logger is provided.
// This is useful for defer statements where close errors should be handled.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		if logger != nil {
			logger.Warn("fsutil.close_failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
