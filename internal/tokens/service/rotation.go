package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resys/shop-auth/internal/tokens/domain"
	"github.com/resys/shop-auth/internal/tokens/store"
	"github.com/resys/shop-auth/pkg/cryptox"
	"github.com/resys/shop-auth/pkg/slogx"
)

var (
	ErrUserNotFound         = errors.New("user_not_found")
	ErrUserLockedOut        = errors.New("user_locked_out")
	ErrRefreshTokenNotFound = errors.New("refresh_token_not_found")
	ErrRefreshTokenRevoked  = errors.New("refresh_token_revoked")
	ErrRefreshTokenExpired  = errors.New("refresh_token_expired")
	ErrRotationFailed       = errors.New("rotation_failed")
)

// RotationService owns the refresh-token lifecycle: issuance, single-use
// rotation, reuse detection with family-wide revocation, and validation.
//
// The service holds no mutable in-process state; every invariant is enforced
// through the store's transaction, so any number of instances can serve
// concurrent requests without coordination.
type RotationService struct {
	Store store.Store

	// StandardTTL and RememberTTL are the refresh lifetimes selected by the
	// caller's remember-me flag.
	StandardTTL time.Duration
	RememberTTL time.Duration

	// Retention is how long revoked records are kept for audit before the
	// sweeper may delete them.
	Retention time.Duration

	// MaxActivePerUser and MaxActivePerAdmin cap concurrent grants per
	// account. The cap is advisory: exceeding it is logged, not enforced.
	// Zero disables the check.
	MaxActivePerUser  int
	MaxActivePerAdmin int

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

func (s *RotationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RotationService) lifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return s.RememberTTL
	}
	return s.StandardTTL
}

// GenerateRefreshToken mints the first grant of a new token family for a
// resolved, unlocked account. The raw secret is returned to the caller once
// and never persisted.
func (s *RotationService) GenerateRefreshToken(
	ctx context.Context,
	userID, ip string,
	rememberMe bool,
) (domain.TokenResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, ErrUserNotFound
		}
		return domain.TokenResult{}, err
	}
	if user.LockedOut(now) {
		return domain.TokenResult{}, ErrUserLockedOut
	}

	s.checkActiveCap(ctx, user, now)

	secret, err := cryptox.NewSecret(cryptox.SecretSize256)
	if err != nil {
		return domain.TokenResult{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	rec, err := domain.NewRefreshToken(user, secret, s.lifetime(rememberMe), ip, "", now)
	if err != nil {
		return domain.TokenResult{}, err
	}

	if err := s.Store.RefreshTokens().Create(ctx, rec); err != nil {
		return domain.TokenResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	l.Info("refresh token issued",
		slog.String("user_id", user.ID),
		slog.String("family", rec.Family),
		slog.Bool("remember_me", rememberMe),
	)

	return domain.TokenResult{Token: secret, ExpiresAt: rec.ExpiresAt.Unix()}, nil
}

// RotateRefreshToken exchanges a valid refresh token for a successor in the
// same family, revoking the old one in the same transaction. A token that is
// already revoked is treated as evidence of theft: whether it is an attacker
// replaying a stolen token or a legitimate client retrying, the whole family
// is revoked and the call fails.
func (s *RotationService) RotateRefreshToken(
	ctx context.Context,
	rawToken, ip string,
	rememberMe bool,
) (domain.TokenResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	hash := cryptox.Fingerprint(rawToken)
	rec, err := s.Store.RefreshTokens().GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, ErrRefreshTokenNotFound
		}
		return domain.TokenResult{}, err
	}

	if rec.Revoked() {
		return domain.TokenResult{}, s.handleReuse(ctx, rec, ip, now)
	}
	if rec.Expired(now) {
		return domain.TokenResult{}, ErrRefreshTokenExpired
	}

	// Mobile and NAT clients legitimately change address, so an IP change
	// is an advisory signal only.
	if ip != rec.CreatedByIP {
		l.Info("refresh token presented from new address",
			slog.String("user_id", rec.UserID),
			slog.String("family", rec.Family),
			slog.String("issued_to", rec.CreatedByIP),
			slog.String("presented_from", ip),
		)
	}

	secret, err := cryptox.NewSecret(cryptox.SecretSize256)
	if err != nil {
		return domain.TokenResult{}, fmt.Errorf("%w: generate secret: %v", ErrRotationFailed, err)
	}

	successor, err := domain.NewRefreshToken(
		domain.User{ID: rec.UserID}, secret, s.lifetime(rememberMe), ip, rec.Family, now,
	)
	if err != nil {
		return domain.TokenResult{}, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}

	// Revoke-old and insert-new must commit together or not at all. On any
	// failure the transaction rolls back, leaving the presented token
	// valid so the client can retry.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().Revoke(ctx, hash, now, ip, domain.ReasonRotated); err != nil {
			return err
		}
		return tx.RefreshTokens().Create(ctx, successor)
	})
	if err != nil {
		// A concurrent rotation won the revoke race; the presented token
		// has effectively been used twice.
		if errors.Is(err, store.ErrAlreadyRevoked) {
			rec.RevokedAt = &now
			return domain.TokenResult{}, s.handleReuse(ctx, rec, ip, now)
		}
		return domain.TokenResult{}, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}

	l.Info("refresh token rotated",
		slog.String("user_id", rec.UserID),
		slog.String("family", rec.Family),
	)

	return domain.TokenResult{Token: secret, ExpiresAt: successor.ExpiresAt.Unix()}, nil
}

// handleReuse contains the defining failure path: an already-revoked token
// was presented again, so every record in its family is revoked.
func (s *RotationService) handleReuse(ctx context.Context, rec domain.RefreshToken, ip string, now time.Time) error {
	l := slogx.FromContext(ctx)

	n, err := s.Store.RefreshTokens().RevokeFamily(ctx, rec.Family, now, ip, domain.ReasonReuseDetected)
	if err != nil {
		l.Error("family revocation failed after reuse detection",
			slog.String("user_id", rec.UserID),
			slog.String("family", rec.Family),
			slog.Any("error", err),
		)
		return ErrRefreshTokenRevoked
	}

	l.Warn("refresh token reuse detected, family revoked",
		slog.String("user_id", rec.UserID),
		slog.String("family", rec.Family),
		slog.String("token_hash", rec.TokenHash),
		slog.String("presented_from", ip),
		slog.Int64("tokens_revoked", n),
	)
	return ErrRefreshTokenRevoked
}

// RevokeToken revokes a single token by its raw value. It is idempotent:
// revoking an absent or already-revoked token succeeds without further state
// change, which avoids both token enumeration and punishing double-submits.
func (s *RotationService) RevokeToken(ctx context.Context, rawToken, ip, reason string) error {
	if reason == "" {
		reason = domain.ReasonManual
	}

	err := s.Store.RefreshTokens().Revoke(ctx, cryptox.Fingerprint(rawToken), s.now(), ip, reason)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyRevoked) {
		return nil
	}
	return err
}

// RevokeAllUserTokens revokes every active grant a user holds, except an
// optionally preserved token (the session performing a "log out everywhere
// else"). A malformed or unknown except-token simply excludes nothing.
func (s *RotationService) RevokeAllUserTokens(
	ctx context.Context,
	userID, ip, reason, exceptRawToken string,
) (int64, error) {
	now := s.now()
	if reason == "" {
		reason = domain.ReasonManual
	}

	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	exceptHash := ""
	if exceptRawToken != "" {
		exceptHash = cryptox.Fingerprint(exceptRawToken)
	}

	n, err := s.Store.RefreshTokens().RevokeAllForUser(ctx, userID, now, ip, reason, exceptHash)
	if err != nil {
		return 0, err
	}

	slogx.FromContext(ctx).Info("user refresh tokens revoked",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int64("count", n),
	)
	return n, nil
}

// ValidateRefreshToken resolves a raw token to its record and owning user
// without mutating anything. Failures are reported in a fixed order:
// not-found, revoked, expired, locked-out.
func (s *RotationService) ValidateRefreshToken(
	ctx context.Context,
	rawToken string,
) (domain.RefreshToken, domain.User, error) {
	now := s.now()

	rec, err := s.Store.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshToken{}, domain.User{}, ErrRefreshTokenNotFound
		}
		return domain.RefreshToken{}, domain.User{}, err
	}

	if rec.Revoked() {
		return domain.RefreshToken{}, domain.User{}, ErrRefreshTokenRevoked
	}
	if rec.Expired(now) {
		return domain.RefreshToken{}, domain.User{}, ErrRefreshTokenExpired
	}

	user, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshToken{}, domain.User{}, ErrUserNotFound
		}
		return domain.RefreshToken{}, domain.User{}, err
	}
	if user.LockedOut(now) {
		return domain.RefreshToken{}, domain.User{}, ErrUserLockedOut
	}

	return rec, user, nil
}

// CleanupExpiredTokens bulk-deletes records that are expired outright, plus
// revoked records older than the retention window. Failures are reported to
// the caller; the sweeper's schedule provides the retry.
func (s *RotationService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.Store.RefreshTokens().DeleteExpired(ctx, s.now(), s.Retention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slogx.FromContext(ctx).Info("expired refresh tokens deleted", slog.Int64("count", n))
	}
	return n, nil
}

// checkActiveCap logs when an account exceeds its configured concurrent
// grant cap. Issuance proceeds regardless; operators act on the log.
func (s *RotationService) checkActiveCap(ctx context.Context, user domain.User, now time.Time) {
	limit := s.MaxActivePerUser
	if user.IsAdmin {
		limit = s.MaxActivePerAdmin
	}
	if limit <= 0 {
		return
	}

	n, err := s.Store.RefreshTokens().CountActiveForUser(ctx, user.ID, now)
	if err != nil {
		slogx.FromContext(ctx).Warn("active token count unavailable",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if n >= int64(limit) {
		slogx.FromContext(ctx).Warn("active refresh token cap exceeded",
			slog.String("user_id", user.ID),
			slog.Int64("active", n),
			slog.Int("cap", limit),
		)
	}
}
