package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes = 32
	keyBytes  = 32
)

// PasswordHasher derives PBKDF2-HMAC-SHA256 hashes. Salt and hash are
// base64 strings; the salt string itself is the KDF salt input.
type PasswordHasher struct {
	iterations int
}

func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = 10000
	}
	return &PasswordHasher{iterations: iterations}
}

// Hash returns a new (hash, salt) pair for plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt := base64.StdEncoding.EncodeToString(raw)
	return h.derive(plaintext, salt), salt, nil
}

func (h *PasswordHasher) derive(plaintext, salt string) string {
	key := pbkdf2.Key([]byte(plaintext), []byte(salt), h.iterations, keyBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify compares in constant time with respect to the mismatch position.
func (h *PasswordHasher) Verify(plaintext, hash, salt string) bool {
	if hash == "" || salt == "" {
		return false
	}
	computed := h.derive(plaintext, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
