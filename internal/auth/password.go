package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PasswordIterations is the PBKDF2 work factor for stored hashes.
	PasswordIterations = 120_000

	saltSize = 16
	keySize  = 32
)

// NewSalt returns a random hex-encoded salt.
func NewSalt() (string, error) {
	buf := make([]byte, saltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives the hex-encoded PBKDF2-HMAC-SHA256 key for password.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), PasswordIterations, keySize, sha256.New)
	return hex.EncodeToString(key)
}

func CheckPasswordHash(password, salt, hash string) bool {
	candidate := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}
