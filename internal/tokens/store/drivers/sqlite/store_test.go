package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/resys/shop-auth/internal/tokens/domain"
	"github.com/resys/shop-auth/internal/tokens/store"
	"github.com/resys/shop-auth/internal/tokens/store/drivers/sqlite"
	"github.com/resys/shop-auth/pkg/cryptox"
	"github.com/resys/shop-auth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedUser(t *testing.T, s *sqlite.Store, username string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:        idx.New().String(),
		Username:  username,
		Email:     username + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func seedToken(t *testing.T, s *sqlite.Store, user domain.User, family string, expiresIn time.Duration) (string, domain.RefreshToken) {
	t.Helper()

	secret, err := cryptox.NewSecret(cryptox.SecretSize256)
	require.NoError(t, err)

	rec, err := domain.NewRefreshToken(user, secret, time.Hour, "1.2.3.4", family, time.Now().UTC())
	require.NoError(t, err)
	rec.ExpiresAt = time.Now().UTC().Add(expiresIn)

	require.NoError(t, s.RefreshTokens().Create(context.Background(), rec))
	return secret, rec
}

func TestUsersRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "alice")

	t.Run("round trips by id and username", func(t *testing.T) {
		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Username, got.Username)
		require.Nil(t, got.LockoutEndsAt)

		got, err = s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("unknown user maps to ErrNotFound", func(t *testing.T) {
		_, err := s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate username maps to ErrAlreadyExists", func(t *testing.T) {
		dup := u
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})
}

func TestRefreshTokensCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	secret, rec := seedToken(t, s, u, "", time.Hour)

	got, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(secret))
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.Family, got.Family)
	require.Equal(t, "1.2.3.4", got.CreatedByIP)
	require.False(t, got.Revoked())

	t.Run("unknown hash maps to ErrNotFound", func(t *testing.T) {
		_, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint("nope"))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("token hash is unique across records", func(t *testing.T) {
		dup := rec
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.RefreshTokens().Create(ctx, dup), store.ErrAlreadyExists)
	})
}

func TestRefreshTokensRevokeIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	secret, _ := seedToken(t, s, u, "", time.Hour)
	hash := cryptox.Fingerprint(secret)
	now := time.Now().UTC()

	require.NoError(t, s.RefreshTokens().Revoke(ctx, hash, now, "9.9.9.9", domain.ReasonManual))

	got, err := s.RefreshTokens().GetByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, got.Revoked())
	require.Equal(t, "9.9.9.9", got.RevokedByIP)
	require.Equal(t, domain.ReasonManual, got.RevokedReason)

	t.Run("second revoke reports ErrAlreadyRevoked and changes nothing", func(t *testing.T) {
		err := s.RefreshTokens().Revoke(ctx, hash, now.Add(time.Minute), "8.8.8.8", domain.ReasonRotated)
		require.ErrorIs(t, err, store.ErrAlreadyRevoked)

		again, err := s.RefreshTokens().GetByHash(ctx, hash)
		require.NoError(t, err)
		require.Equal(t, "9.9.9.9", again.RevokedByIP)
		require.Equal(t, domain.ReasonManual, again.RevokedReason)
	})

	t.Run("unknown hash reports ErrNotFound", func(t *testing.T) {
		err := s.RefreshTokens().Revoke(ctx, cryptox.Fingerprint("nope"), now, "", domain.ReasonManual)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRevokeFamilyRevokesOnlyActiveMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	_, first := seedToken(t, s, u, "", time.Hour)
	family := first.Family
	secondSecret, _ := seedToken(t, s, u, family, time.Hour)
	otherSecret, _ := seedToken(t, s, u, "", time.Hour) // unrelated family

	now := time.Now().UTC()
	n, err := s.RefreshTokens().RevokeFamily(ctx, family, now, "6.6.6.6", domain.ReasonReuseDetected)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(secondSecret))
	require.NoError(t, err)
	require.True(t, got.Revoked())
	require.Equal(t, domain.ReasonReuseDetected, got.RevokedReason)

	other, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(otherSecret))
	require.NoError(t, err)
	require.False(t, other.Revoked())

	t.Run("second pass touches nothing", func(t *testing.T) {
		n, err := s.RefreshTokens().RevokeFamily(ctx, family, now, "", domain.ReasonReuseDetected)
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestRevokeAllForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	other := seedUser(t, s, "bob")

	secretA, _ := seedToken(t, s, u, "", time.Hour)
	keepSecret, _ := seedToken(t, s, u, "", time.Hour)
	seedToken(t, s, u, "", -time.Hour) // expired, not counted
	otherSecret, _ := seedToken(t, s, other, "", time.Hour)

	now := time.Now().UTC()
	n, err := s.RefreshTokens().RevokeAllForUser(ctx, u.ID, now, "1.1.1.1", domain.ReasonManual, cryptox.Fingerprint(keepSecret))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	revoked, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(secretA))
	require.NoError(t, err)
	require.True(t, revoked.Revoked())

	kept, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(keepSecret))
	require.NoError(t, err)
	require.False(t, kept.Revoked())

	bobToken, err := s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(otherSecret))
	require.NoError(t, err)
	require.False(t, bobToken.Revoked())
}

func TestCountActiveForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	now := time.Now().UTC()

	n, err := s.RefreshTokens().CountActiveForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Zero(t, n)

	secret, _ := seedToken(t, s, u, "", time.Hour)
	seedToken(t, s, u, "", time.Hour)
	seedToken(t, s, u, "", -time.Hour) // expired

	n, err = s.RefreshTokens().CountActiveForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, s.RefreshTokens().Revoke(ctx, cryptox.Fingerprint(secret), now, "", domain.ReasonManual))

	n, err = s.RefreshTokens().CountActiveForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDeleteExpiredHonorsRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	now := time.Now().UTC()
	retention := 30 * 24 * time.Hour

	expiredSecret, _ := seedToken(t, s, u, "", -time.Hour)

	// Revoked recently, still inside the retention window.
	recentSecret, _ := seedToken(t, s, u, "", time.Hour)
	require.NoError(t, s.RefreshTokens().Revoke(ctx, cryptox.Fingerprint(recentSecret), now.Add(-time.Hour), "", domain.ReasonManual))

	// Revoked long ago, past the retention window.
	oldSecret, _ := seedToken(t, s, u, "", time.Hour)
	require.NoError(t, s.RefreshTokens().Revoke(ctx, cryptox.Fingerprint(oldSecret), now.Add(-retention-time.Hour), "", domain.ReasonManual))

	activeSecret, _ := seedToken(t, s, u, "", time.Hour)

	n, err := s.RefreshTokens().DeleteExpired(ctx, now, retention)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(expiredSecret))
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(oldSecret))
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(recentSecret))
	require.NoError(t, err)

	_, err = s.RefreshTokens().GetByHash(ctx, cryptox.Fingerprint(activeSecret))
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	secret, _ := seedToken(t, s, u, "", time.Hour)
	hash := cryptox.Fingerprint(secret)

	sentinel := context.Canceled // any error will do
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().Revoke(ctx, hash, time.Now().UTC(), "", domain.ReasonRotated); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := s.RefreshTokens().GetByHash(ctx, hash)
	require.NoError(t, err)
	require.False(t, got.Revoked(), "revocation must roll back with the failed transaction")
}
