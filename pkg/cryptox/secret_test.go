package cryptox_test

import (
	"encoding/base64"
	"testing"

	"github.com/resys/shop-auth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	t.Parallel()

	t.Run("produces URL-safe secrets of the expected length", func(t *testing.T) {
		s, err := cryptox.NewSecret(cryptox.SecretSize256)
		require.NoError(t, err)
		require.Len(t, s, 43) // 32 bytes base64url, no padding

		raw, err := base64.RawURLEncoding.DecodeString(s)
		require.NoError(t, err)
		require.Len(t, raw, cryptox.SecretSize256)
	})

	t.Run("successive secrets differ", func(t *testing.T) {
		a, err := cryptox.NewSecret(cryptox.SecretSize256)
		require.NoError(t, err)
		b, err := cryptox.NewSecret(cryptox.SecretSize256)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := cryptox.NewSecret(0)
		require.Error(t, err)
		_, err = cryptox.NewSecret(-1)
		require.Error(t, err)
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("is deterministic", func(t *testing.T) {
		require.Equal(t, cryptox.Fingerprint("secret"), cryptox.Fingerprint("secret"))
	})

	t.Run("differs per input", func(t *testing.T) {
		require.NotEqual(t, cryptox.Fingerprint("a"), cryptox.Fingerprint("b"))
	})

	t.Run("never echoes the input", func(t *testing.T) {
		fp := cryptox.Fingerprint("super-secret-value")
		require.NotContains(t, fp, "super-secret-value")
		require.Len(t, fp, 43) // SHA-256 base64url, no padding
	})
}
