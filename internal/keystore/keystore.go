package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"credvault/internal/fsutil"
	"credvault/internal/logging"
)

// PendingSuffix names the staging file a rotation writes before committing
const PendingSuffix = ".pending"

// KeyStore owns the key file and the single active key
type KeyStore struct {
	path   string
	active Key
	cipher *Cipher
	logger *logging.Logger
}

// New creates a key store for path. Call LoadOrCreate before use.
func New(path string, logger *logging.Logger) *KeyStore {
	return &KeyStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the key file location
func (ks *KeyStore) Path() string {
	return ks.path
}

// PendingPath returns the staging file location used during rotation
func (ks *KeyStore) PendingPath() string {
	return ks.path + PendingSuffix
}

// LoadOrCreate reads the key file, generating and persisting a key when it is absent.
// An existing but unreadable or malformed file is a StorageError; it is never replaced,
// because any ciphertext made with it would become undecryptable.
func (ks *KeyStore) LoadOrCreate() (Key, error) {
	key, found, err := readKeyFile(ks.path)
	if err != nil {
		return Key{}, err
	}

	if !found {
		key, err = Generate()
		if err != nil {
			return Key{}, err
		}
		if err := fsutil.AtomicWriteFile(ks.path, key.Bytes(), fsutil.DefaultFilePermissions, ks.logger); err != nil {
			return Key{}, fmt.Errorf("failed to persist new key: %w", err)
		}
		ks.logger.Info("keystore.key.generated", "Generated new encryption key", map[string]interface{}{
			"path":   ks.path,
			"key_id": key.ID,
		})
	} else {
		ks.logger.Debug("keystore.key.loaded", "Encryption key loaded", map[string]interface{}{
			"path":   ks.path,
			"key_id": key.ID,
		})
	}

	ks.ReplaceKey(key)
	return key, nil
}

// Active returns the key currently used by Encrypt and Decrypt
func (ks *KeyStore) Active() Key {
	return ks.active
}

// ReplaceKey swaps the active key in memory. Data encrypted under the previous key
// must already have been re-encrypted by the caller.
func (ks *KeyStore) ReplaceKey(key Key) {
	ks.active = key
	ks.cipher = NewCipher(key)
}

// Encrypt encrypts with the active key
func (ks *KeyStore) Encrypt(plaintext string) (string, error) {
	if ks.cipher == nil {
		return "", errors.New("keystore: no active key")
	}
	return ks.cipher.Encrypt(plaintext)
}

// Decrypt decrypts with the active key
func (ks *KeyStore) Decrypt(ciphertext string) (string, error) {
	if ks.cipher == nil {
		return "", errors.New("keystore: no active key")
	}
	return ks.cipher.Decrypt(ciphertext)
}

// Stage writes key to the pending file without touching the active key file
func (ks *KeyStore) Stage(key Key) error {
	if err := fsutil.AtomicWriteFile(ks.PendingPath(), key.Bytes(), fsutil.DefaultFilePermissions, ks.logger); err != nil {
		return fmt.Errorf("failed to stage key: %w", err)
	}
	return nil
}

// Pending returns the staged key, if any
func (ks *KeyStore) Pending() (Key, bool, error) {
	return readKeyFile(ks.PendingPath())
}

// Commit promotes the pending file to the key file with a single rename
func (ks *KeyStore) Commit() error {
	if err := os.Rename(ks.PendingPath(), ks.path); err != nil {
		return &fsutil.StorageError{Op: "commit key", Path: ks.path, Err: err}
	}
	ks.logger.Info("keystore.key.committed", "Pending key committed", map[string]interface{}{
		"path": ks.path,
	})
	return nil
}

// DiscardPending removes a staged key; a missing file is not an error
func (ks *KeyStore) DiscardPending() error {
	if err := os.Remove(ks.PendingPath()); err != nil && !os.IsNotExist(err) {
		return &fsutil.StorageError{Op: "discard pending key", Path: ks.PendingPath(), Err: err}
	}
	return nil
}

func readKeyFile(path string) (Key, bool, error) {
	raw, found, err := fsutil.ReadFileIfExists(path)
	if err != nil || !found {
		return Key{}, found, err
	}

	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return Key{}, false, &fsutil.StorageError{Op: "stat", Path: path, Err: err}
	}

	key, err := keyFromBytes(raw, info.ModTime())
	if err != nil {
		return Key{}, false, &fsutil.StorageError{Op: "parse key", Path: path, Err: err}
	}
	return key, true, nil
}
