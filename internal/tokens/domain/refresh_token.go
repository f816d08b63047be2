package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/resys/shop-auth/pkg/cryptox"
	"github.com/resys/shop-auth/pkg/idx"
)

var (
	ErrInvalidLifetime = errors.New("domain: refresh token lifetime must be positive")
	ErrInvalidUser     = errors.New("domain: user has no identifier")
)

// Revocation reasons recorded on refresh token records. ReasonReuseDetected
// marks every member of a family revoked after an already-rotated token was
// presented again.
const (
	ReasonRotated       = "rotated"
	ReasonReuseDetected = "reuse detected"
	ReasonManual        = "revoked manually"
)

// RefreshToken models one persisted refresh-token grant. The raw secret the
// client holds is never stored; TokenHash is its SHA-256 fingerprint and all
// lookups go through it.
//
// Family is shared by a token and every token it is rotated into. It is a
// flat identifier queried by equality, not a parent pointer: revoking a
// compromised chain is a single bulk update, no traversal.
type RefreshToken struct {
	ID          string
	UserID      string
	TokenHash   string
	Family      string
	CreatedAt   time.Time
	CreatedByIP string
	ExpiresAt   time.Time

	RevokedAt     *time.Time
	RevokedByIP   string
	RevokedReason string
}

// NewRefreshToken builds a record for a freshly generated raw secret. When
// family is empty a new family id is minted (first grant in a chain);
// otherwise the record joins the existing chain.
func NewRefreshToken(
	user User,
	rawSecret string,
	lifetime time.Duration,
	ip string,
	family string,
	now time.Time,
) (RefreshToken, error) {
	if user.ID == "" {
		return RefreshToken{}, ErrInvalidUser
	}
	if lifetime <= 0 {
		return RefreshToken{}, ErrInvalidLifetime
	}
	if family == "" {
		family = uuid.NewString()
	}

	return RefreshToken{
		ID:          idx.New().String(),
		UserID:      user.ID,
		TokenHash:   cryptox.Fingerprint(rawSecret),
		Family:      family,
		CreatedAt:   now,
		CreatedByIP: ip,
		ExpiresAt:   now.Add(lifetime),
	}, nil
}

// Revoked reports whether the record has been revoked. Revocation is
// terminal; RevokedAt transitions from nil to set exactly once.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the record's absolute expiry has passed.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Active reports whether the record may still be presented for rotation.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// TokenResult is what issuance and rotation hand back to the caller: the raw
// token (shown to the client once) and its absolute expiry in unix seconds.
type TokenResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
