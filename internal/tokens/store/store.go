package store

import (
	"context"
	"errors"
	"time"

	"github.com/resys/shop-auth/internal/tokens/domain"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrAlreadyExists  = errors.New("store: already exists")
	ErrAlreadyRevoked = errors.New("store: already revoked")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement it. Sub-repositories keep concerns tidy and let service tests
// swap individual repos for fault injection.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit() or Rollback() the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rolled back when fn returns
	// an error, committed otherwise. This is the recommended entry point
	// for multi-step operations that must be atomic, such as refresh
	// rotation's revoke-old + insert-new pair.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store: the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the user directory at the boundary this service consumes it:
// account lookup only. Credentials and lockout administration live with the
// directory's own service.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername resolves a login identifier to an account.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the caller).
	CreateUser(ctx context.Context, u domain.User) error
}

// RefreshTokens persists refresh-token grant records. token_hash is unique
// across all records; lookups are hash-equality only.
type RefreshTokens interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, t domain.RefreshToken) error

	// GetByHash returns the record matching a presented secret's fingerprint.
	GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// Revoke marks a single active record revoked, recording when, from
	// where, and why. Revocation is terminal: a record that is already
	// revoked is left untouched and ErrAlreadyRevoked is returned, so a
	// rotation that loses a revoke race can observe it lost. ErrNotFound
	// is returned when no record matches at all.
	Revoke(ctx context.Context, hash string, at time.Time, ip, reason string) error

	// RevokeFamily revokes every still-active record sharing a family id
	// and reports how many rows changed.
	RevokeFamily(ctx context.Context, family string, at time.Time, ip, reason string) (int64, error)

	// RevokeAllForUser revokes every active record owned by a user except,
	// optionally, the one matching exceptHash (empty means no exclusion).
	RevokeAllForUser(ctx context.Context, userID string, at time.Time, ip, reason, exceptHash string) (int64, error)

	// CountActiveForUser reports the number of unrevoked, unexpired records
	// a user currently holds.
	CountActiveForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteExpired removes records whose expiry has passed, plus revoked
	// records older than the retention window, and reports the count.
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}
