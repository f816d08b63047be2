package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resys/shop-auth/internal/tokens/domain"
	"github.com/resys/shop-auth/pkg/jwtx"
)

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidTokenFormat = errors.New("invalid_token_format")
	ErrAccessTokenExpired = errors.New("access_token_expired")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrValidationFailed   = errors.New("validation_failed")
	ErrNoExpiration       = errors.New("no_expiration")
)

// AccessTokenService issues and validates the short-lived signed bearer
// tokens paired with refresh grants. It is pure computation over the signing
// key and the clock; nothing here touches storage.
type AccessTokenService struct {
	signer   *jwtx.HS256Signer
	verifier *jwtx.HS256Verifier
	issuer   string
	audience []string
	ttl      time.Duration

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// NewAccessTokenService builds the issuer from a shared symmetric key.
// Lifetimes above 30 minutes widen the replay window of a leaked token, so
// they are accepted but logged as a security warning.
func NewAccessTokenService(
	key []byte,
	issuer string,
	audience []string,
	ttl time.Duration,
	logger *slog.Logger,
) (*AccessTokenService, error) {
	signer, err := jwtx.NewSignerHS256(key)
	if err != nil {
		return nil, err
	}
	if ttl > 30*time.Minute && logger != nil {
		logger.Warn("access token lifetime exceeds 30 minutes",
			slog.Duration("ttl", ttl))
	}

	svc := &AccessTokenService{
		signer:   signer,
		verifier: jwtx.NewVerifierHS256(key, issuer, audience),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}
	// The verifier shares the service clock so expiry checks honor a test
	// override of Now.
	svc.verifier.Now = svc.now
	return svc, nil
}

func (s *AccessTokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Issue mints a signed access token for the given principal. The token
// carries the subject id, a fresh jti, issued-at, username and verification
// claims; its only lifecycle is the encoded expiry.
func (s *AccessTokenService) Issue(user domain.User) (domain.TokenResult, error) {
	if user.ID == "" {
		return domain.TokenResult{}, ErrInvalidUser
	}

	now := s.now()
	claims := jwtx.NewAccessClaims(
		user.ID, s.ttl, s.issuer, s.audience,
		user.Username, user.EmailVerified, now,
	)

	token, err := s.signer.Sign(claims)
	if err != nil {
		return domain.TokenResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.TokenResult{Token: token, ExpiresAt: now.Add(s.ttl).Unix()}, nil
}

// ParseUnverified decodes a token's claims without checking its signature,
// for advisory use only.
func (s *AccessTokenService) ParseUnverified(token string) (jwtx.Claims, error) {
	claims, err := jwtx.ParseUnverified(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidTokenFormat
	}
	return claims, nil
}

// Validate verifies signature, issuer, audience and, when checkExpiry is
// set, the encoded expiry. Failures map to stable error codes.
func (s *AccessTokenService) Validate(token string, checkExpiry bool) (jwtx.Claims, error) {
	var (
		claims jwtx.Claims
		err    error
	)
	if checkExpiry {
		claims, err = s.verifier.Verify(token)
	} else {
		claims, err = s.verifier.VerifyIgnoringExpiry(token)
	}
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			return jwtx.Claims{}, ErrAccessTokenExpired
		case errors.Is(err, jwtx.ErrInvalidSig):
			return jwtx.Claims{}, ErrInvalidSignature
		default:
			return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	return claims, nil
}

// RemainingLifetime reports how long until the token's encoded expiry,
// clamped at zero. Tokens without an expiry fail with ErrNoExpiration.
func (s *AccessTokenService) RemainingLifetime(token string) (time.Duration, error) {
	claims, err := jwtx.ParseUnverified(token)
	if err != nil {
		return 0, ErrInvalidTokenFormat
	}

	d, err := claims.Remaining(s.now())
	if err != nil {
		return 0, ErrNoExpiration
	}
	return d, nil
}

// ValidateFormat performs a structural check (three dot-separated segments,
// a header naming an algorithm, a non-empty payload) independent of
// signature validity.
func (s *AccessTokenService) ValidateFormat(token string) error {
	if err := jwtx.CheckFormat(token); err != nil {
		return ErrInvalidTokenFormat
	}
	return nil
}
