package credentials

import (
	"encoding/json"
	"fmt"
	"sort"

	"credvault/internal/fsutil"
	"credvault/internal/logging"
)

// Store keeps the decrypted username → hash map and mirrors it to an encrypted file.
// Every mutation rewrites the whole file; if the write fails the mutation is undone.
type Store struct {
	path      string
	codec     Codec
	hasher    Hasher
	logger    *logging.Logger
	users     map[string]string
	dummyHash string
}

// Open loads path with codec. A missing file is an empty store; a file that cannot be
// parsed or decrypted is a StorageError.
func Open(path string, codec Codec, hasher Hasher, logger *logging.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		codec:  codec,
		hasher: hasher,
		logger: logger,
	}

	users, err := s.ReadEncrypted(codec)
	if err != nil {
		return nil, err
	}
	s.users = users

	s.logger.Info("credentials.loaded", "Credential store loaded", map[string]interface{}{
		"path":    path,
		"records": len(users),
	})

	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of stored users
func (s *Store) Len() int {
	return len(s.users)
}

// Has reports whether username exists
func (s *Store) Has(username string) bool {
	_, ok := s.users[username]
	return ok
}

// Usernames returns all usernames in sorted order
func (s *Store) Usernames() []string {
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record returns the stored record for username
func (s *Store) Record(username string) (Record, bool) {
	hash, ok := s.users[username]
	if !ok {
		return Record{}, false
	}
	return Record{Username: username, PasswordHash: hash}, true
}

// AddUser hashes password and inserts a new record
func (s *Store) AddUser(username, password string) error {
	if username == "" {
		return ErrInvalidUsername
	}
	if _, exists := s.users[username]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, username)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	s.users[username] = hash
	if err := s.persist(); err != nil {
		delete(s.users, username)
		return err
	}

	s.logger.Info("credentials.user.added", "User added", map[string]interface{}{
		"username": username,
	})
	return nil
}

// Authenticate reports whether password matches username. It never errors: unknown
// users and wrong passwords are both false, and both cost one bcrypt comparison.
func (s *Store) Authenticate(username, password string) bool {
	hash, ok := s.users[username]
	if !ok {
		s.hasher.Verify(s.dummy(), password)
		s.logger.Debug("credentials.auth.unknown_user", "Authentication for unknown user", map[string]interface{}{
			"username": username,
		})
		return false
	}

	if !s.hasher.Verify(hash, password) {
		s.logger.Debug("credentials.auth.mismatch", "Authentication failed", map[string]interface{}{
			"username": username,
		})
		return false
	}
	return true
}

// UpdatePassword replaces the hash for an existing user
func (s *Store) UpdatePassword(username, newPassword string) error {
	previous, ok := s.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	s.users[username] = hash
	if err := s.persist(); err != nil {
		s.users[username] = previous
		return err
	}

	s.logger.Info("credentials.user.password_updated", "Password updated", map[string]interface{}{
		"username": username,
	})
	return nil
}

// RenameUser moves the record from oldUsername to newUsername, both or neither
func (s *Store) RenameUser(oldUsername, newUsername string) error {
	hash, ok := s.users[oldUsername]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, oldUsername)
	}
	if newUsername == "" {
		return ErrInvalidUsername
	}
	if _, exists := s.users[newUsername]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, newUsername)
	}

	delete(s.users, oldUsername)
	s.users[newUsername] = hash
	if err := s.persist(); err != nil {
		delete(s.users, newUsername)
		s.users[oldUsername] = hash
		return err
	}

	s.logger.Info("credentials.user.renamed", "User renamed", map[string]interface{}{
		"old_username": oldUsername,
		"new_username": newUsername,
	})
	return nil
}

// DeleteUser removes a record
func (s *Store) DeleteUser(username string) error {
	hash, ok := s.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	delete(s.users, username)
	if err := s.persist(); err != nil {
		s.users[username] = hash
		return err
	}

	s.logger.Info("credentials.user.deleted", "User deleted", map[string]interface{}{
		"username": username,
	})
	return nil
}

// ReadEncrypted reads the backing file and decrypts every entry with codec.
// It does not modify the store.
func (s *Store) ReadEncrypted(codec Codec) (map[string]string, error) {
	return ReadFile(s.path, codec)
}

// ReadFile loads and decrypts a credentials file. A missing file yields an empty map.
func ReadFile(path string, codec Codec) (map[string]string, error) {
	data, found, err := fsutil.ReadFileIfExists(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]string{}, nil
	}

	var encrypted map[string]string
	if err := json.Unmarshal(data, &encrypted); err != nil {
		return nil, &fsutil.StorageError{Op: "parse credentials", Path: path, Err: err}
	}
	if encrypted == nil {
		// A literal JSON null is not a valid credentials document.
		return nil, &fsutil.StorageError{Op: "parse credentials", Path: path, Err: fmt.Errorf("expected a JSON object")}
	}

	users, err := DecryptAll(encrypted, codec)
	if err != nil {
		return nil, &fsutil.StorageError{Op: "decrypt credentials", Path: path, Err: err}
	}
	return users, nil
}

// WriteEncrypted atomically replaces the backing file with an already encrypted map
func (s *Store) WriteEncrypted(encrypted map[string]string) error {
	data, err := json.Marshal(encrypted)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return fsutil.AtomicWriteFile(s.path, data, fsutil.DefaultFilePermissions, s.logger)
}

// Snapshot returns a copy of the decrypted map
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.users))
	for k, v := range s.users {
		out[k] = v
	}
	return out
}

// ReplaceState swaps the in-memory map after the caller has persisted users itself
func (s *Store) ReplaceState(users map[string]string) {
	next := make(map[string]string, len(users))
	for k, v := range users {
		next[k] = v
	}
	s.users = next
}

// persist encrypts every key and value with the store codec and rewrites the file
func (s *Store) persist() error {
	encrypted, err := EncryptAll(s.users, s.codec)
	if err != nil {
		return err
	}
	if err := s.WriteEncrypted(encrypted); err != nil {
		s.logger.Error("credentials.persist.failed", "Failed to write credential store", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// dummy lazily builds a hash used to equalize timing for unknown users
func (s *Store) dummy() string {
	if s.dummyHash == "" {
		if hash, err := s.hasher.Hash("credvault-timing-equalizer"); err == nil {
			s.dummyHash = hash
		}
	}
	return s.dummyHash
}

// EncryptAll encrypts every username and hash independently
func EncryptAll(users map[string]string, codec Codec) (map[string]string, error) {
	out := make(map[string]string, len(users))
	for username, hash := range users {
		encUser, err := codec.Encrypt(username)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt username: %w", err)
		}
		encHash, err := codec.Encrypt(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt hash: %w", err)
		}
		out[encUser] = encHash
	}
	return out, nil
}

// DecryptAll reverses EncryptAll; any failing entry aborts the whole operation
func DecryptAll(encrypted map[string]string, codec Codec) (map[string]string, error) {
	out := make(map[string]string, len(encrypted))
	for encUser, encHash := range encrypted {
		username, err := codec.Decrypt(encUser)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt username: %w", err)
		}
		hash, err := codec.Decrypt(encHash)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt hash for %s: %w", username, err)
		}
		if _, dup := out[username]; dup {
			return nil, fmt.Errorf("%w: %s appears twice", ErrDuplicateUser, username)
		}
		out[username] = hash
	}
	return out, nil
}
