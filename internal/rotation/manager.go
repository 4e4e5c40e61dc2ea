package rotation

import (
	"errors"
	"fmt"
	"time"

	"credvault/internal/credentials"
	"credvault/internal/keystore"
	"credvault/internal/logging"
)

// DefaultInterval is how long a key stays active before rotation is due
const DefaultInterval = 30 * 24 * time.Hour

// RotationError reports an aborted rotation. Stage names the step that failed;
// the previous key and credentials file are still authoritative.
type RotationError struct {
	Stage string
	Err   error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("key rotation failed at %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause
func (e *RotationError) Unwrap() error {
	return e.Err
}

// Status summarizes key age and rotation schedule for display
type Status struct {
	KeyID        string
	KeyCreatedAt time.Time
	LastRotation *time.Time
	NextDue      time.Time
	Due          bool
	Interval     time.Duration
}

// Manager decides when rotation is due and re-encrypts the store under a new key
type Manager struct {
	keys     *keystore.KeyStore
	store    *credentials.Store
	meta     *MetadataStore
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time
	generate func() (keystore.Key, error)
	write    func(encrypted map[string]string) error
}

// NewManager wires a rotation manager; a non-positive interval means DefaultInterval
func NewManager(keys *keystore.KeyStore, store *credentials.Store, meta *MetadataStore, interval time.Duration, logger *logging.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		keys:     keys,
		store:    store,
		meta:     meta,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		generate: keystore.Generate,
		write:    store.WriteEncrypted,
	}
}

// Interval returns the configured rotation interval
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// IsRotationDue is true on first run (no recorded rotation) or once interval has elapsed
func IsRotationDue(lastRotation *time.Time, now time.Time, interval time.Duration) bool {
	if lastRotation == nil {
		return true
	}
	return now.Sub(*lastRotation) >= interval
}

// CheckAndRotate rotates when the persisted timestamp says rotation is due.
// The boolean reports whether a rotation ran.
func (m *Manager) CheckAndRotate() (bool, error) {
	meta, err := m.meta.Load()
	if err != nil {
		return false, fmt.Errorf("failed to load rotation metadata: %w", err)
	}

	var last *time.Time
	if meta != nil {
		last = &meta.LastRotation
	}

	now := m.now()
	if !IsRotationDue(last, now, m.interval) {
		m.logger.Debug("rotation.check.not_due", "Key rotation not due", map[string]interface{}{
			"last_rotation": last.Format(time.RFC3339),
			"interval":      m.interval.String(),
		})
		return false, nil
	}

	m.logger.Info("rotation.check.due", "Key rotation is due", map[string]interface{}{
		"first_run": last == nil,
	})
	if err := m.Rotate(); err != nil {
		return false, err
	}
	return true, nil
}

// Rotate re-encrypts every record under a freshly generated key.
//
// The credentials file is decrypted under the old key and re-encrypted under the new
// one entirely in memory. The new key is staged to a pending file, the credentials
// file is replaced atomically, and only then is the pending key renamed over the key
// file. Until that rename the old key file stays authoritative; if the process dies
// between the two renames, RecoverPending finishes the swap on the next start.
func (m *Manager) Rotate() error {
	started := m.now()
	oldKey := m.keys.Active()
	oldCipher := keystore.NewCipher(oldKey)

	newKey, err := m.generate()
	if err != nil {
		return m.fail("generate", err)
	}
	newCipher := keystore.NewCipher(newKey)

	plain, err := m.store.ReadEncrypted(oldCipher)
	if err != nil {
		return m.fail("decrypt", err)
	}

	reencrypted, err := credentials.EncryptAll(plain, newCipher)
	if err != nil {
		return m.fail("encrypt", err)
	}

	// Every record must decrypt under the new key before anything touches disk.
	if _, err := credentials.DecryptAll(reencrypted, newCipher); err != nil {
		return m.fail("verify", err)
	}

	if err := m.keys.Stage(newKey); err != nil {
		return m.fail("stage", err)
	}

	if err := m.write(reencrypted); err != nil {
		m.discardPending()
		return m.fail("write", err)
	}

	m.keys.ReplaceKey(newKey)

	if err := m.keys.Commit(); err != nil {
		m.rollback(oldKey, newKey, oldCipher, plain)
		return m.fail("commit", err)
	}

	m.store.ReplaceState(plain)

	completed := m.now()
	if err := m.meta.Save(Metadata{LastRotation: completed, KeyID: newKey.ID}); err != nil {
		// The key swap is durable; a stale timestamp only means an early re-rotation.
		m.logger.Warn("rotation.metadata.save_failed", "Rotation completed but timestamp not saved", map[string]interface{}{
			"path":  m.meta.Path(),
			"error": err.Error(),
		})
	}

	m.logger.Info("rotation.completed", "Key rotation completed", map[string]interface{}{
		"previous_key_id": oldKey.ID,
		"new_key_id":      newKey.ID,
		"records":         len(plain),
		"duration_ms":     completed.Sub(started).Milliseconds(),
	})
	return nil
}

// Status reports the rotation schedule at the current time
func (m *Manager) Status() (Status, error) {
	meta, err := m.meta.Load()
	if err != nil {
		return Status{}, err
	}

	active := m.keys.Active()
	now := m.now()
	st := Status{
		KeyID:        active.ID,
		KeyCreatedAt: active.CreatedAt,
		Interval:     m.interval,
	}
	if meta != nil {
		last := meta.LastRotation
		st.LastRotation = &last
		st.NextDue = last.Add(m.interval)
	} else {
		st.NextDue = now
	}
	st.Due = IsRotationDue(st.LastRotation, now, m.interval)
	return st, nil
}

// rollback restores the old key and credentials after a failed commit. If the
// restore write fails too, the pending key is left for RecoverPending.
func (m *Manager) rollback(oldKey, newKey keystore.Key, oldCipher *keystore.Cipher, plain map[string]string) {
	restored, err := credentials.EncryptAll(plain, oldCipher)
	if err == nil {
		err = m.store.WriteEncrypted(restored)
	}
	if err != nil {
		// The file on disk is still under the new key, so keep using it.
		m.keys.ReplaceKey(newKey)
		m.logger.Error("rotation.rollback.failed", "Could not restore credentials under the previous key; recovery will run on next start", map[string]interface{}{
			"pending_path": m.keys.PendingPath(),
			"error":        err.Error(),
		})
		return
	}
	m.keys.ReplaceKey(oldKey)
	m.discardPending()
}

func (m *Manager) discardPending() {
	if err := m.keys.DiscardPending(); err != nil {
		m.logger.Warn("rotation.pending.discard_failed", "Failed to remove pending key file", map[string]interface{}{
			"path":  m.keys.PendingPath(),
			"error": err.Error(),
		})
	}
}

func (m *Manager) fail(stage string, err error) error {
	m.logger.Error("rotation.failed", "Key rotation aborted", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	return &RotationError{Stage: stage, Err: err}
}

// RecoverPending finishes or abandons a rotation interrupted between writing the
// credentials file and committing the key file. It must run before the credentials
// store is opened. The boolean reports whether the pending key was promoted.
func RecoverPending(keys *keystore.KeyStore, credentialsPath string, meta *MetadataStore, logger *logging.Logger) (bool, error) {
	pending, found, err := keys.Pending()
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	_, err = credentials.ReadFile(credentialsPath, keys)
	if err == nil {
		logger.Warn("rotation.recovery.discarded", "Discarding pending key from an unfinished rotation", map[string]interface{}{
			"path": keys.PendingPath(),
		})
		return false, keys.DiscardPending()
	}
	if !errors.Is(err, keystore.ErrDecryption) {
		return false, err
	}

	if _, perr := credentials.ReadFile(credentialsPath, keystore.NewCipher(pending)); perr != nil {
		return false, fmt.Errorf("credentials decrypt under neither the active nor the pending key: %w", err)
	}

	if err := keys.Commit(); err != nil {
		return false, err
	}
	keys.ReplaceKey(pending)

	if err := meta.Save(Metadata{LastRotation: time.Now(), KeyID: pending.ID}); err != nil {
		logger.Warn("rotation.metadata.save_failed", "Recovered key but timestamp not saved", map[string]interface{}{
			"path":  meta.Path(),
			"error": err.Error(),
		})
	}

	logger.Warn("rotation.recovery.committed", "Completed an interrupted key rotation", map[string]interface{}{
		"key_id": pending.ID,
	})
	return true, nil
}
