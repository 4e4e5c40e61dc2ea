package keystore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the size of the encryption key (32 bytes for NaCl secretbox)
	KeySize = 32
	// NonceSize is the size of the nonce (24 bytes for NaCl secretbox)
	NonceSize = 24
)

// ErrDecryption is returned for tampered, truncated or foreign ciphertext
var ErrDecryption = errors.New("decryption failed (wrong key or corrupted data)")

var encoding = base64.RawURLEncoding

// seal encrypts with NaCl secretbox; the random nonce is prepended to the box
func seal(plaintext []byte, key *[KeySize]byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// open reverses seal
func open(encrypted []byte, key *[KeySize]byte) ([]byte, error) {
	if len(encrypted) < NonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], encrypted[:NonceSize])

	decrypted, ok := secretbox.Open(nil, encrypted[NonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecryption
	}

	return decrypted, nil
}

// Cipher encrypts and decrypts strings under one fixed key.
// Ciphertext is base64url (unpadded) of nonce || box.
type Cipher struct {
	key *[KeySize]byte
}

// NewCipher binds a cipher to key
func NewCipher(key Key) *Cipher {
	material := key.material
	return &Cipher{key: &material}
}

// Encrypt encrypts plaintext into a printable ciphertext string
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	sealed, err := seal([]byte(plaintext), c.key)
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a string produced by Encrypt under the same key
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding: %v", ErrDecryption, err)
	}
	plain, err := open(raw, c.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
