package repository

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/educore-sync/internal/models"
)

// ErrUploadTooLarge is returned when an image exceeds the configured size limit.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// objectKey builds a unique key for an uploaded image keeping its extension.
func objectKey(upload models.ImageUpload) string {
	ext := strings.ToLower(path.Ext(upload.Filename))
	if ext == "" && upload.ContentType != "" {
		if exts, err := mime.ExtensionsByType(upload.ContentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("images/%s/%s%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), ext)
}

func checkUpload(upload models.ImageUpload, maxBytes int64) error {
	if len(upload.Data) == 0 {
		return fmt.Errorf("empty upload")
	}
	if maxBytes > 0 && int64(len(upload.Data)) > maxBytes {
		return fmt.Errorf("%d bytes: %w", len(upload.Data), ErrUploadTooLarge)
	}
	return nil
}

type localObjectWriter interface {
	Save(key string, data []byte) (string, error)
}

type urlSigner interface {
	Generate(key string) (string, time.Time, error)
}

// LocalObjectRepository stores images on disk and hands out signed download URLs.
type LocalObjectRepository struct {
	files    localObjectWriter
	signer   urlSigner
	baseURL  string
	maxBytes int64
}

// NewLocalObjectRepository constructs a disk-backed object store. baseURL is the public
// prefix under which signed tokens are served.
func NewLocalObjectRepository(files localObjectWriter, signer urlSigner, baseURL string, maxBytes int64) *LocalObjectRepository {
	return &LocalObjectRepository{files: files, signer: signer, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}
}

// Upload saves the image and returns its signed URL.
func (r *LocalObjectRepository) Upload(ctx context.Context, upload models.ImageUpload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkUpload(upload, r.maxBytes); err != nil {
		return "", err
	}
	key, err := r.files.Save(objectKey(upload), upload.Data)
	if err != nil {
		return "", err
	}
	token, _, err := r.signer.Generate(key)
	if err != nil {
		return "", fmt.Errorf("sign object url: %w", err)
	}
	return r.baseURL + "/" + token, nil
}

type objectPutter interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// S3ObjectRepository stores images in an S3 bucket.
type S3ObjectRepository struct {
	bucket   objectPutter
	maxBytes int64
}

// NewS3ObjectRepository constructs an S3-backed object store.
func NewS3ObjectRepository(bucket objectPutter, maxBytes int64) *S3ObjectRepository {
	return &S3ObjectRepository{bucket: bucket, maxBytes: maxBytes}
}

// Upload puts the image in the bucket and returns its location.
func (r *S3ObjectRepository) Upload(ctx context.Context, upload models.ImageUpload) (string, error) {
	if err := checkUpload(upload, r.maxBytes); err != nil {
		return "", err
	}
	return r.bucket.Put(ctx, objectKey(upload), upload.ContentType, upload.Data)
}
