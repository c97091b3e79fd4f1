package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	t.Parallel()
	h := NewPasswordHasher()

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	require.NotEqual(t, "secret1", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, PasswordCost, cost)

	require.True(t, h.Verify("secret1", hash))
	require.False(t, h.Verify("secret2", hash))
}

func TestPasswordHasher_SaltPerCall(t *testing.T) {
	t.Parallel()
	h := NewPasswordHasher()

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.True(t, h.Verify("same-password", a))
	require.True(t, h.Verify("same-password", b))
}

func TestPasswordHasher_VerifyMalformedHash(t *testing.T) {
	t.Parallel()
	h := NewPasswordHasher()
	require.False(t, h.Verify("anything", "not-a-bcrypt-hash"))
	require.False(t, h.Verify("anything", ""))
}

func TestPasswordHasher_TooLong(t *testing.T) {
	t.Parallel()
	h := NewPasswordHasher()
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}
	_, err := h.Hash(string(long))
	require.ErrorIs(t, err, ErrHashing)
}
