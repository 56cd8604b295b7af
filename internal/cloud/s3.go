package cloud

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Backend struct {
	client     s3API
	bucket     string
	presignURL func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

func newS3Backend(ctx context.Context, bucket string) (*s3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	presigner := s3.NewPresignClient(client)
	return &s3Backend{
		client: client,
		bucket: bucket,
		presignURL: func(ctx context.Context, b, key string, expiry time.Duration) (string, error) {
			req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: &b,
				Key:    &key,
			}, s3.WithPresignExpires(expiry))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
	}, nil
}

func (b *s3Backend) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	contentType := contentTypeFor(key)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &b.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: &size,
		ContentType:   &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}

func (b *s3Backend) ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := b.presignURL(ctx, b.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return url, nil
}
