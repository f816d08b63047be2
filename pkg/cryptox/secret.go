// Package cryptox provides the primitives for opaque refresh-token secrets:
// random secret generation and deterministic fingerprinting. Raw secrets are
// shown to the client once and never persisted; storage and lookup operate on
// fingerprints only.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Secret size constants (in bytes before encoding).
const (
	// SecretSize256 provides 256 bits of entropy (43 chars base64url).
	// The minimum for refresh tokens.
	SecretSize256 = 32
	// SecretSize512 provides 512 bits of entropy (86 chars base64url).
	SecretSize512 = 64
)

// NewSecret creates a cryptographically secure random secret of the given
// byte length, returned as a base64url string without padding.
func NewSecret(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: secret size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate secret: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns the deterministic SHA-256 digest of a secret as a
// base64url string (43 chars). Equality comparisons between a presented
// secret and a stored record always go through the fingerprint; the raw
// secret itself is never compared or stored.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
