package credentials_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-social-session/credentials"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *credentials.Sealer {
	t.Helper()
	s, err := credentials.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal(credentials.KeyAccessToken, []byte("EAAB-token"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "EAAB-token")

	plain, err := s.Open(credentials.KeyAccessToken, sealed)
	require.NoError(t, err)
	require.Equal(t, "EAAB-token", string(plain))
}

func TestSealer_BoundToKey(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal(credentials.KeyAccessToken, []byte("EAAB-token"))
	require.NoError(t, err)

	_, err = s.Open(credentials.KeyUserData, sealed)
	require.ErrorIs(t, err, credentials.ErrDecrypt)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(credentials.KeyAccessToken, sealed)
	require.ErrorIs(t, err, credentials.ErrDecrypt)

	_, err = s.Open(credentials.KeyAccessToken, []byte("short"))
	require.ErrorIs(t, err, credentials.ErrDecrypt)
}

func TestNewSealer_KeyLength(t *testing.T) {
	_, err := credentials.NewSealer([]byte("too short"))
	require.ErrorIs(t, err, credentials.ErrInvalidKeyLength)
}

func TestDeriveKey(t *testing.T) {
	salt, err := credentials.NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, credentials.SaltLength)

	k1, err := credentials.DeriveKey("correct horse", salt)
	require.NoError(t, err)
	require.Len(t, k1, 32)

	k2, err := credentials.DeriveKey("correct horse", salt)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := credentials.DeriveKey("battery staple", salt)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)

	_, err = credentials.DeriveKey("", salt)
	require.Error(t, err)
	_, err = credentials.DeriveKey("x", []byte("tiny"))
	require.Error(t, err)
}
