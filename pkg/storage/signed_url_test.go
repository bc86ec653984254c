package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("images/photo.png")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	key, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "images/photo.png", key)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("images/photo.png")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("images/photo.png")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, _, err = other.Parse(token)
	require.Error(t, err)

	_, _, err = signer.Parse("not-a-token")
	require.Error(t, err)
}

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := store.Save("images/a.png", []byte("png"))
	require.NoError(t, err)

	f, err := store.Open(key)
	require.NoError(t, err)
	stat, err := f.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 3, stat.Size())
	require.NoError(t, f.Close())

	require.NoError(t, store.Delete(key))
	_, err = store.Open(key)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = store.Save("../escape.png", []byte("x"))
	require.Error(t, err)
}
