package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/pkg/storage"
)

type fakePutter struct {
	keys        []string
	contentType string
	err         error
}

func (f *fakePutter) Put(_ context.Context, key, contentType string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	f.contentType = contentType
	return "https://bucket.s3.amazonaws.com/" + key, nil
}

func TestLocalObjectRepositoryUpload(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	repo := NewLocalObjectRepository(files, signer, "http://localhost:8080/files/", 1024)

	url, err := repo.Upload(context.Background(), models.ImageUpload{Filename: "Photo.PNG", Data: []byte("img")})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/files/"))

	key, _, err := signer.Parse(strings.TrimPrefix(url, "http://localhost:8080/files/"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "images/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	f, err := files.Open(key)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestObjectRepositoriesRejectOversizedAndEmpty(t *testing.T) {
	repo := NewS3ObjectRepository(&fakePutter{}, 4)

	_, err := repo.Upload(context.Background(), models.ImageUpload{Filename: "a.jpg", Data: []byte("12345")})
	assert.ErrorIs(t, err, ErrUploadTooLarge)

	_, err = repo.Upload(context.Background(), models.ImageUpload{Filename: "a.jpg"})
	assert.Error(t, err)
}

func TestS3ObjectRepositoryUpload(t *testing.T) {
	putter := &fakePutter{}
	repo := NewS3ObjectRepository(putter, 0)

	url, err := repo.Upload(context.Background(), models.ImageUpload{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("jpg")})
	require.NoError(t, err)
	require.Len(t, putter.keys, 1)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/"+putter.keys[0], url)
	assert.Equal(t, "image/jpeg", putter.contentType)

	putter.err = errors.New("access denied")
	_, err = repo.Upload(context.Background(), models.ImageUpload{Filename: "a.jpg", Data: []byte("jpg")})
	assert.Error(t, err)
}
