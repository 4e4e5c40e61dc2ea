package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewHasher_Cost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"min cost", bcrypt.MinCost, bcrypt.MinCost},
		{"default", bcrypt.DefaultCost, bcrypt.DefaultCost},
		{"zero falls back", 0, bcrypt.DefaultCost},
		{"too high falls back", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHasher(tt.cost).Cost(); got != tt.want {
				t.Errorf("Cost() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasher_HashVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	passwords := []string{"pw1", "", "correct horse battery staple", "pässwörd-密码-🔑"}
	for _, p := range passwords {
		t.Run(p, func(t *testing.T) {
			hash, err := h.Hash(p)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if hash == p {
				t.Fatal("Hash() returned the plaintext")
			}
			if !h.Verify(hash, p) {
				t.Error("Verify(hash(p), p) = false")
			}
			if h.Verify(hash, p+"x") {
				t.Error("Verify(hash(p), p+x) = true")
			}
		})
	}
}

func TestHasher_FreshSalt(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Hash("same")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
	if !h.Verify(a, "same") || !h.Verify(b, "same") {
		t.Error("both hashes should verify")
	}
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	for _, hash := range []string{"", "plaintext", "$2a$10$short"} {
		if h.Verify(hash, "plaintext") {
			t.Errorf("Verify(%q) = true, want false", hash)
		}
	}
}

func TestHasher_TooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	if _, err := h.Hash(strings.Repeat("a", MaxLength)); err != nil {
		t.Errorf("Hash() at the limit error = %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", MaxLength+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash() over the limit error = %v, want ErrPasswordTooLong", err)
	}
}
