package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/noah-isme/educore-sync/pkg/config"
)

// S3Storage uploads objects to a bucket through the multipart upload manager.
type S3Storage struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3Storage builds a client from the default AWS chain, overriding credentials
// and endpoint when they are configured (e.g. MinIO).
func NewS3Storage(ctx context.Context, cfg config.S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{bucket: cfg.Bucket, uploader: manager.NewUploader(client)}, nil
}

// Put uploads data under key and returns the object location.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return out.Location, nil
}
