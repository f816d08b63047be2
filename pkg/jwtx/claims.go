package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are access-token claims. The custom fields are additive so encoded
// tokens stay compatible as the set grows.
type Claims struct {
	jwt.RegisteredClaims

	// Username for the authenticated user.
	Username string `json:"username,omitempty"`

	// EmailVerified mirrors the directory's verification flag so resource
	// servers can gate features without a directory round trip.
	EmailVerified bool `json:"email_verified,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for a bearer access token.
func NewAccessClaims(
	subject string,
	ttl time.Duration,
	issuer string,
	audience []string,
	username string,
	emailVerified bool,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Username:      username,
		EmailVerified: emailVerified,
	}
}

// NewJTI returns a unique identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks the issuer against the expected value.
// An empty expectation enforces nothing.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
// An empty expectation enforces nothing.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't presented
// before it becomes valid (nbf).
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// Remaining returns the time until the token's expiry, clamped at zero for
// already-expired tokens. Tokens without an exp claim fail with ErrNoExpiry.
func (c *Claims) Remaining(now time.Time) (time.Duration, error) {
	if c.ExpiresAt == nil {
		return 0, ErrNoExpiry
	}
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
