package sqlitestore_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jrsteele09/go-social-session/credentials"
	"github.com/jrsteele09/go-social-session/credentials/sqlitestore"
	apperrors "github.com/jrsteele09/go-social-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s, err := sqlitestore.OpenWithKey(ctx, t.TempDir(), bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Read(ctx, credentials.KeyUserData)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Write(ctx, credentials.KeyUserData, `{"id":"1"}`))
	require.NoError(t, s.Write(ctx, credentials.KeyUserData, `{"id":"2"}`))

	v, found, err := s.Read(ctx, credentials.KeyUserData)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"id":"2"}`, v)

	require.NoError(t, s.Delete(ctx, credentials.KeyUserData))
	require.NoError(t, s.Delete(ctx, credentials.KeyUserData))
	_, found, err = s.Read(ctx, credentials.KeyUserData)
	require.NoError(t, err)
	require.False(t, found)
}

func TestOpen_PassphraseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := sqlitestore.Open(ctx, dir, "open sesame")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, credentials.KeyAccessToken, "EAAB"))
	require.NoError(t, s.Close())

	s, err = sqlitestore.Open(ctx, dir, "open sesame")
	require.NoError(t, err)
	v, found, err := s.Read(ctx, credentials.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "EAAB", v)
	require.NoError(t, s.Close())

	s, err = sqlitestore.Open(ctx, dir, "wrong")
	require.NoError(t, err)
	defer s.Close()
	_, _, err = s.Read(ctx, credentials.KeyAccessToken)
	require.ErrorIs(t, err, credentials.ErrDecrypt)
	require.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s, err := sqlitestore.OpenWithKey(ctx, t.TempDir(), bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, credentials.KeyAccessToken, "EAAB"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Write(ctx, credentials.KeyAccessToken, "EAAC"), apperrors.ErrStoreClosed)
	_, _, err = s.Read(ctx, credentials.KeyAccessToken)
	require.ErrorIs(t, err, apperrors.ErrStoreClosed)
	require.ErrorIs(t, s.Delete(ctx, credentials.KeyAccessToken), apperrors.ErrStoreClosed)

	var storeErr *credentials.StoreError
	require.ErrorAs(t, s.Delete(ctx, credentials.KeyAccessToken), &storeErr)
	require.Equal(t, "delete", storeErr.Op)
}

func TestStore_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s, err := sqlitestore.OpenWithKey(ctx, t.TempDir(), bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Read(ctx, "drop table")
	require.ErrorIs(t, err, credentials.ErrInvalidKey)
}
