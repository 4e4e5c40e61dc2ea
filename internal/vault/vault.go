// Package vault wires the key store, credential store and rotation manager
// behind the operations the CLI and TUI expose.
package vault

import (
	"errors"
	"fmt"
	"time"

	"credvault/internal/config"
	"credvault/internal/credentials"
	"credvault/internal/fsutil"
	"credvault/internal/keystore"
	"credvault/internal/logging"
	"credvault/internal/password"
	"credvault/internal/rotation"
	"credvault/internal/storelock"
)

// Result is the outcome of a user-facing operation. Expected failures such as
// an unknown user are OK=false with a nil error.
type Result struct {
	OK      bool
	Message string
}

// StatusReport describes the open store for display
type StatusReport struct {
	DataDir         string
	CredentialsPath string
	KeyPath         string
	Users           int
	Rotation        rotation.Status
}

// Vault is an open credential store. It is not safe for concurrent use.
type Vault struct {
	cfg      config.Config
	logger   *logging.Logger
	lock     *storelock.Manager
	keys     *keystore.KeyStore
	store    *credentials.Store
	rotation *rotation.Manager
}

// Open locks the data directory, loads or creates the key, finishes any
// interrupted rotation, loads the credentials and runs the startup rotation check.
func Open(cfg config.Config, logger *logging.Logger) (*Vault, error) {
	dataDir := cfg.DataDir()
	if err := fsutil.EnsureStateDirectory(dataDir); err != nil {
		return nil, err
	}

	lock := storelock.NewManager(cfg.LockPath(), logger)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	v, err := open(cfg, logger, lock)
	if err != nil {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn("vault.lock.release_failed", "Failed to release store lock", map[string]interface{}{
				"error": releaseErr.Error(),
			})
		}
		return nil, err
	}
	return v, nil
}

func open(cfg config.Config, logger *logging.Logger, lock *storelock.Manager) (*Vault, error) {
	keys := keystore.New(cfg.KeyPath(), logger)
	if _, err := keys.LoadOrCreate(); err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}

	meta := rotation.NewMetadataStore(cfg.TimestampPath(), logger)
	if _, err := rotation.RecoverPending(keys, cfg.CredentialsPath(), meta, logger); err != nil {
		return nil, fmt.Errorf("failed to recover interrupted rotation: %w", err)
	}

	store, err := credentials.Open(cfg.CredentialsPath(), keys, password.NewHasher(cfg.Hashing.BcryptCost), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	v := &Vault{
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		keys:     keys,
		store:    store,
		rotation: rotation.NewManager(keys, store, meta, cfg.RotationInterval(), logger),
	}

	if cfg.Rotation.CheckOnStartup {
		if _, err := v.rotation.CheckAndRotate(); err != nil {
			var rotErr *rotation.RotationError
			if !errors.As(err, &rotErr) {
				return nil, err
			}
			// The previous key is still valid; keep serving with it.
			logger.Error("vault.startup_rotation.failed", "Startup key rotation failed, continuing with current key", map[string]interface{}{
				"stage": rotErr.Stage,
				"error": rotErr.Err.Error(),
			})
		}
	}

	logger.Info("vault.opened", "Credential vault opened", map[string]interface{}{
		"data_dir": cfg.DataDir(),
		"users":    store.Len(),
		"key_id":   keys.Active().ID,
	})
	return v, nil
}

// Close releases the store lock
func (v *Vault) Close() error {
	return v.lock.Release()
}

// AddUser registers a new user
func (v *Vault) AddUser(username, pw string) (Result, error) {
	err := v.store.AddUser(username, pw)
	switch {
	case err == nil:
		return ok("User %s added successfully.", username), nil
	case errors.Is(err, credentials.ErrDuplicateUser):
		return rejected("User %s already exists.", username), nil
	case errors.Is(err, credentials.ErrInvalidUsername):
		return rejected("Username must not be empty."), nil
	case errors.Is(err, password.ErrPasswordTooLong):
		return rejected("Password must be at most %d bytes.", password.MaxLength), nil
	}
	return v.failed("add", err, "Could not add user %s.", username)
}

// Authenticate checks a password. Unknown users and wrong passwords produce the same message.
func (v *Vault) Authenticate(username, pw string) (Result, error) {
	if v.store.Authenticate(username, pw) {
		return ok("Authentication successful for %s.", username), nil
	}
	return rejected("Authentication failed for %s.", username), nil
}

// UpdatePassword replaces a user's password
func (v *Vault) UpdatePassword(username, newPassword string) (Result, error) {
	err := v.store.UpdatePassword(username, newPassword)
	switch {
	case err == nil:
		return ok("Password for %s updated successfully.", username), nil
	case errors.Is(err, credentials.ErrUserNotFound):
		return rejected("User %s does not exist.", username), nil
	case errors.Is(err, password.ErrPasswordTooLong):
		return rejected("Password must be at most %d bytes.", password.MaxLength), nil
	}
	return v.failed("update_password", err, "Could not update password for %s.", username)
}

// RenameUser changes a username, keeping its password
func (v *Vault) RenameUser(oldUsername, newUsername string) (Result, error) {
	err := v.store.RenameUser(oldUsername, newUsername)
	switch {
	case err == nil:
		return ok("Username %s changed to %s.", oldUsername, newUsername), nil
	case errors.Is(err, credentials.ErrUserNotFound):
		return rejected("User %s does not exist.", oldUsername), nil
	case errors.Is(err, credentials.ErrDuplicateUser):
		return rejected("User %s already exists.", newUsername), nil
	case errors.Is(err, credentials.ErrInvalidUsername):
		return rejected("Username must not be empty."), nil
	}
	return v.failed("rename", err, "Could not rename %s.", oldUsername)
}

// DeleteUser removes a user
func (v *Vault) DeleteUser(username string) (Result, error) {
	err := v.store.DeleteUser(username)
	switch {
	case err == nil:
		return ok("User %s deleted successfully.", username), nil
	case errors.Is(err, credentials.ErrUserNotFound):
		return rejected("User %s not found.", username), nil
	}
	return v.failed("delete", err, "Could not delete user %s.", username)
}

// RotateKey rotates the encryption key now, regardless of schedule
func (v *Vault) RotateKey() (Result, error) {
	if err := v.rotation.Rotate(); err != nil {
		return v.failed("rotate", err, "Key rotation failed; the previous key remains active.")
	}
	return ok("Key rotation completed successfully."), nil
}

// Users returns all usernames in sorted order
func (v *Vault) Users() []string {
	return v.store.Usernames()
}

// Status reports paths, user count and rotation schedule
func (v *Vault) Status() (StatusReport, error) {
	st, err := v.rotation.Status()
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		DataDir:         v.cfg.DataDir(),
		CredentialsPath: v.cfg.CredentialsPath(),
		KeyPath:         v.cfg.KeyPath(),
		Users:           v.store.Len(),
		Rotation:        st,
	}, nil
}

func (v *Vault) failed(op string, err error, format string, args ...interface{}) (Result, error) {
	v.logger.Error("vault."+op+".failed", "Operation failed", map[string]interface{}{
		"error": err.Error(),
	})
	return rejected(format, args...), err
}

func ok(format string, args ...interface{}) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func rejected(format string, args ...interface{}) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// FormatDue renders the next rotation time relative to now, e.g. "in 29d 23h"
func FormatDue(st rotation.Status, now time.Time) string {
	if st.Due {
		return "due now"
	}
	left := st.NextDue.Sub(now)
	days := int(left / (24 * time.Hour))
	hours := int((left % (24 * time.Hour)) / time.Hour)
	if days == 0 {
		minutes := int((left % time.Hour) / time.Minute)
		return fmt.Sprintf("in %dh %dm", hours, minutes)
	}
	return fmt.Sprintf("in %dd %dh", days, hours)
}
