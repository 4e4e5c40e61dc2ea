package keystore

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Key is the symmetric key material plus its generation metadata
type Key struct {
	ID        string
	CreatedAt time.Time
	material  [KeySize]byte
}

// Generate creates a fresh random key
func Generate() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k.material[:]); err != nil {
		return Key{}, fmt.Errorf("failed to generate key material: %w", err)
	}
	k.ID = fingerprint(k.material[:])
	k.CreatedAt = time.Now().UTC()
	return k, nil
}

// fingerprint derives a stable name-based UUID for key material so the same
// key carries the same ID across restarts and in rotation metadata.
func fingerprint(material []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, material).String()
}

// keyFromBytes wraps raw material read from disk
func keyFromBytes(raw []byte, createdAt time.Time) (Key, error) {
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("key material is %d bytes, expected %d", len(raw), KeySize)
	}
	var k Key
	copy(k.material[:], raw)
	k.ID = fingerprint(raw)
	k.CreatedAt = createdAt.UTC()
	return k, nil
}

// Bytes returns a copy of the raw key material
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.material[:])
	return out
}

// Equal compares key material in constant time
func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k.material[:], other.material[:]) == 1
}

// IsZero reports whether the key holds no material
func (k Key) IsZero() bool {
	var zero [KeySize]byte
	return subtle.ConstantTimeCompare(k.material[:], zero[:]) == 1
}

// Age returns how long the key has existed at now
func (k Key) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// String never reveals material
func (k Key) String() string {
	return fmt.Sprintf("Key(%s)", k.ID)
}
