// Package jwtx signs and verifies the short-lived bearer access tokens the
// token service issues. Tokens are signed with a process-wide symmetric key
// (HS256); the key is read-only after construction and safe to share.
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrNoExpiry    = errors.New("jwtx: token has no expiry")
)

// MinKeySize is the smallest accepted HS256 key. Anything shorter is easier
// to brute-force than the tokens it protects.
const MinKeySize = 32

// HS256Signer signs claims with a symmetric key.
type HS256Signer struct {
	key []byte
}

// NewSignerHS256 creates an HS256 signer. The key must be at least
// MinKeySize bytes.
func NewSignerHS256(key []byte) (*HS256Signer, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("jwtx: HS256 key must be at least %d bytes, got %d", MinKeySize, len(key))
	}
	return &HS256Signer{key: key}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign turns claims into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// HS256Verifier validates JWTs signed with the shared symmetric key.
type HS256Verifier struct {
	key    []byte
	issuer string
	aud    []string

	// Now overrides the clock used for expiry checks, for tests. Nil means
	// time.Now.
	Now func() time.Time
}

func (v *HS256Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// NewVerifierHS256 creates a verifier enforcing the given issuer and
// audience expectations. Empty expectations enforce nothing.
func NewVerifierHS256(key []byte, issuer string, aud []string) *HS256Verifier {
	return &HS256Verifier{key: key, issuer: issuer, aud: aud}
}

// Verify validates signature, issuer, audience and expiry, returning the
// parsed claims on success.
func (v *HS256Verifier) Verify(tokenStr string) (Claims, error) {
	return v.verify(tokenStr, true)
}

// VerifyIgnoringExpiry validates signature, issuer and audience but skips
// the exp/nbf checks. Useful for advisory inspection of stale tokens.
func (v *HS256Verifier) VerifyIgnoringExpiry(tokenStr string) (Claims, error) {
	return v.verify(tokenStr, false)
}

func (v *HS256Verifier) verify(tokenStr string, checkExpiry bool) (Claims, error) {
	// Claim requirements are validated by hand below so failures map to
	// distinct sentinel errors.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		default:
			return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.aud); err != nil {
		return Claims{}, err
	}
	if checkExpiry {
		if err := claims.ValidateExpiry(v.now()); err != nil {
			return Claims{}, err
		}
	}

	return *claims, nil
}
