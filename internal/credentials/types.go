package credentials

import "errors"

var (
	// ErrDuplicateUser is returned when the target username already exists
	ErrDuplicateUser = errors.New("user already exists")
	// ErrUserNotFound is returned when the username is not in the store
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUsername is returned for empty usernames
	ErrInvalidUsername = errors.New("username must not be empty")
)

// Record is one stored credential
type Record struct {
	Username     string
	PasswordHash string
}

// Codec encrypts and decrypts individual strings for the on-disk file.
// *keystore.KeyStore and *keystore.Cipher both satisfy it.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Hasher hashes and verifies passwords
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}
