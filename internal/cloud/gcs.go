package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gstorage "cloud.google.com/go/storage"
)

type gcsBackend struct {
	bucket    string
	newWriter func(ctx context.Context, bucket, key, contentType string) io.WriteCloser
	signURL   func(bucket, key string, expiry time.Duration) (string, error)
}

func newGCSBackend(ctx context.Context, bucket string) (*gcsBackend, error) {
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &gcsBackend{
		bucket: bucket,
		newWriter: func(ctx context.Context, b, key, contentType string) io.WriteCloser {
			w := client.Bucket(b).Object(key).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
		signURL: func(b, key string, expiry time.Duration) (string, error) {
			return client.Bucket(b).SignedURL(key, &gstorage.SignedURLOptions{
				Method:  http.MethodGet,
				Expires: time.Now().Add(expiry),
				Scheme:  gstorage.SigningSchemeV4,
			})
		},
	}, nil
}

func (b *gcsBackend) Upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	w := b.newWriter(ctx, b.bucket, key, contentTypeFor(key))
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s: %w", key, err)
	}
	return nil
}

func (b *gcsBackend) ShareURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	url, err := b.signURL(b.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("gcs sign %s: %w", key, err)
	}
	return url, nil
}
