package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/resys/shop-auth/internal/tokens/domain"
	"github.com/resys/shop-auth/internal/tokens/store"
)

type refreshTokensRepo struct {
	db querier
}

const refreshTokenColumns = `id, user_id, token_hash, family, created_at, created_by_ip,
	expires_at, revoked_at, revoked_by_ip, revoked_reason`

func (r *refreshTokensRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.Family, t.CreatedAt, t.CreatedByIP,
		t.ExpiresAt, mapOptionalTime(t.RevokedAt), t.RevokedByIP, t.RevokedReason,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens
		WHERE token_hash = ?`,
		hash,
	)
	return scanRefreshToken(row)
}

// Revoke flips a single active record to revoked. The revoked_at IS NULL
// guard makes revocation terminal at the storage layer: a concurrent second
// revoke matches zero rows instead of overwriting the first.
func (r *refreshTokensRepo) Revoke(ctx context.Context, hash string, at time.Time, ip, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_by_ip = ?, revoked_reason = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		at, ip, reason, hash,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoActiveRow(ctx, r.db, hash)
	}
	return nil
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, family string, at time.Time, ip, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_by_ip = ?, revoked_reason = ?
		WHERE family = ? AND revoked_at IS NULL`,
		at, ip, reason, family,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) RevokeAllForUser(
	ctx context.Context,
	userID string,
	at time.Time,
	ip, reason, exceptHash string,
) (int64, error) {
	// An empty exceptHash never matches a stored fingerprint, so the same
	// query serves both the with- and without-exclusion cases.
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_by_ip = ?, revoked_reason = ?
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ? AND token_hash <> ?`,
		at, ip, reason, userID, at, exceptHash,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) CountActiveForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		userID, now,
	).Scan(&n)
	return n, err
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at <= ?
		   OR (revoked_at IS NOT NULL AND revoked_at <= ?)`,
		now, now.Add(-retention),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// errNoActiveRow distinguishes "no such token" from "token exists but is
// already revoked" after an UPDATE matched nothing. The distinction matters
// to rotation: losing a revoke race to a concurrent rotation is the reuse
// signal.
func errNoActiveRow(ctx context.Context, db querier, hash string) error {
	var id string
	err := db.QueryRowContext(ctx, `SELECT id FROM refresh_tokens WHERE token_hash = ?`, hash).Scan(&id)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrAlreadyRevoked
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.Family, &t.CreatedAt, &t.CreatedByIP,
		&t.ExpiresAt, &revokedAt, &t.RevokedByIP, &t.RevokedReason,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.RevokedAt = mapNullTimePtr(revokedAt)
	return t, nil
}
