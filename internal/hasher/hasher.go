// Package hasher provides deterministic content hashing and random opaque identifiers.
package hasher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the lowercase hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString hashes the UTF-8 bytes of s.
func HashString(s string) string {
	return ContentHash([]byte(s))
}

// RandomID returns n cryptographically random bytes, hex encoded.
// Never use it where the output must be reproducible.
func RandomID(n int) string {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic("hasher: read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}
