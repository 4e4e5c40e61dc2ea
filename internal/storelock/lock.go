package storelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"credvault/internal/fsutil"
	"credvault/internal/logging"
)

// Manager guards a data directory against concurrent credvault processes.
// The lock file is written in full, then hard-linked into place, and holds the
// owner's pid and host.
type Manager struct {
	path     string
	logger   *logging.Logger
	self     LockInfo
	held     bool
	alive    func(pid int) bool
	now      func() time.Time
	hostname func() (string, error)
}

// NewManager creates a lock manager for the lock file at path
func NewManager(path string, logger *logging.Logger) *Manager {
	return &Manager{
		path:     path,
		logger:   logger,
		alive:    processAlive,
		now:      time.Now,
		hostname: os.Hostname,
	}
}

// Path returns the lock file location
func (m *Manager) Path() string {
	return m.path
}

// Held reports whether this manager currently owns the lock
func (m *Manager) Held() bool {
	return m.held
}

// Acquire takes the lock. A lock left by a dead process on this host, or one
// whose file cannot be parsed, is cleared and retaken once. A lock held by a
// live process (or by any process on another host) returns ErrLocked.
func (m *Manager) Acquire() error {
	if m.held {
		return nil
	}

	host, err := m.hostname()
	if err != nil {
		host = "unknown"
	}
	m.self = LockInfo{PID: os.Getpid(), Hostname: host}

	for attempt := 0; attempt < 2; attempt++ {
		created, err := m.create()
		if err != nil {
			return err
		}
		if created {
			m.held = true
			m.logger.Info("storelock.acquired", "Store lock acquired", map[string]interface{}{
				"path": m.path,
				"pid":  m.self.PID,
			})
			return nil
		}

		existing, err := m.loadLock()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Released between our create and read; try again.
				continue
			}
			if !errors.Is(err, fsutil.ErrStorage) {
				return &fsutil.StorageError{Op: "read lock", Path: m.path, Err: err}
			}
			m.logger.Warn("storelock.unreadable", "Removing unreadable lock file", map[string]interface{}{
				"path":  m.path,
				"error": err.Error(),
			})
			if err := m.forceUnlock(); err != nil {
				return err
			}
			continue
		}

		if existing.SameOwner(m.self) {
			m.held = true
			return nil
		}

		if existing.Hostname == m.self.Hostname && !m.alive(existing.PID) {
			m.logger.Warn("storelock.stale_detected", "Stale store lock detected", map[string]interface{}{
				"path":        m.path,
				"stale_pid":   existing.PID,
				"age_seconds": m.now().Sub(existing.SinceTS).Seconds(),
			})
			if err := m.forceUnlock(); err != nil {
				return err
			}
			continue
		}

		return fmt.Errorf("%w: pid %d on %s since %s", ErrLocked,
			existing.PID, existing.Hostname, existing.SinceTS.Format(time.RFC3339))
	}

	return fmt.Errorf("%w: lock file %s keeps reappearing", ErrLocked, m.path)
}

// Release removes the lock file if this process owns it
func (m *Manager) Release() error {
	if !m.held {
		return nil
	}

	existing, err := m.loadLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.held = false
			m.logger.Warn("storelock.release.no_lock", "Store lock vanished before release", map[string]interface{}{
				"path": m.path,
			})
			return nil
		}
		return err
	}

	if !existing.SameOwner(m.self) {
		m.held = false
		return fmt.Errorf("cannot release lock: held by pid %d on %s", existing.PID, existing.Hostname)
	}

	if err := m.forceUnlock(); err != nil {
		return err
	}
	m.held = false

	m.logger.Info("storelock.released", "Store lock released", map[string]interface{}{
		"path": m.path,
	})
	return nil
}

// Unlock removes a lock left behind by a process that is no longer running.
// A holder that may still be alive (a live pid on this host, or any holder on
// another host) is refused with ErrLocked unless force is set. The returned
// LockInfo is the removed holder, nil when there was no lock.
func (m *Manager) Unlock(force bool) (*LockInfo, error) {
	existing, err := m.loadLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if !errors.Is(err, fsutil.ErrStorage) {
			return nil, &fsutil.StorageError{Op: "read lock", Path: m.path, Err: err}
		}
		// Unparseable locks are cleared the same way Acquire clears them.
		return nil, m.forceUnlock()
	}

	if !force && m.mayBeAlive(*existing) {
		return existing, fmt.Errorf("%w: pid %d on %s may still be running", ErrLocked,
			existing.PID, existing.Hostname)
	}

	m.logger.Warn("storelock.unlocked", "Store lock removed", map[string]interface{}{
		"previous_pid":  existing.PID,
		"previous_host": existing.Hostname,
		"forced":        force,
	})
	return existing, m.forceUnlock()
}

func (m *Manager) mayBeAlive(lock LockInfo) bool {
	host, err := m.hostname()
	if err != nil || lock.Hostname != host {
		return true
	}
	return m.alive(lock.PID)
}

// ForceUnlock removes the lock regardless of holder. For recovery only.
func (m *Manager) ForceUnlock() error {
	existing, err := m.loadLock()
	if err == nil {
		m.logger.Warn("storelock.forced", "Store lock forcibly removed", map[string]interface{}{
			"previous_pid":  existing.PID,
			"previous_host": existing.Hostname,
		})
	}
	return m.forceUnlock()
}

// GetStatus returns the current lock holder, or nil when unlocked
func (m *Manager) GetStatus() (*LockInfo, error) {
	lock, err := m.loadLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return lock, nil
}

// create publishes a fully written lock file with a hard link, which fails if
// the path exists. Readers never see a partially written lock. false means the
// lock already exists.
func (m *Manager) create() (bool, error) {
	dir := filepath.Dir(m.path)
	if err := fsutil.EnsureStateDirectory(dir); err != nil {
		return false, err
	}

	m.self.SinceTS = m.now().UTC()
	data, err := json.MarshalIndent(m.self, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return false, &fsutil.StorageError{Op: "create lock", Path: m.path, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		fsutil.CloseWithError(tmp.Close, m.logger, tmpPath)
		return false, &fsutil.StorageError{Op: "write lock", Path: m.path, Err: err}
	}
	if err := tmp.Chmod(fsutil.DefaultFilePermissions); err != nil {
		fsutil.CloseWithError(tmp.Close, m.logger, tmpPath)
		return false, &fsutil.StorageError{Op: "chmod lock", Path: m.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return false, &fsutil.StorageError{Op: "close lock", Path: m.path, Err: err}
	}

	if err := os.Link(tmpPath, m.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &fsutil.StorageError{Op: "link lock", Path: m.path, Err: err}
	}
	return true, nil
}

func (m *Manager) forceUnlock() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &fsutil.StorageError{Op: "remove lock", Path: m.path, Err: err}
	}
	return nil
}

// loadLock reads the lock file. A missing file is returned unwrapped so callers
// can test for fs.ErrNotExist.
func (m *Manager) loadLock() (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Clean(m.path))
	if err != nil {
		return nil, err
	}

	var lock LockInfo
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, &fsutil.StorageError{Op: "parse lock", Path: m.path, Err: err}
	}
	if lock.PID <= 0 {
		return nil, &fsutil.StorageError{Op: "parse lock", Path: m.path, Err: fmt.Errorf("invalid pid %d", lock.PID)}
	}
	return &lock, nil
}
