package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix    = "pdfk_"
	keyBytes     = 32
	displayChars = 12
)

// GeneratedKey is a fresh API key. Plaintext is returned to the caller once and never stored.
type GeneratedKey struct {
	Plaintext string
	Prefix    string
	Hash      string
}

func GenerateKey() (*GeneratedKey, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}

	plaintext := keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return &GeneratedKey{
		Plaintext: plaintext,
		Prefix:    plaintext[:displayChars],
		Hash:      HashKey(plaintext),
	}, nil
}

// HashKey returns the hex SHA-256 of a plaintext key
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// LooksLikeKey reports whether s has the shape of a generated key
func LooksLikeKey(s string) bool {
	return strings.HasPrefix(s, keyPrefix) && len(s) > displayChars
}
