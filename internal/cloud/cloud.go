// Package cloud uploads exported snapshots to object storage.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// Backend is the object storage surface used by export.
type Backend interface {
	// Upload writes size bytes from r to key.
	Upload(ctx context.Context, key string, r io.Reader, size int64) error

	// ShareURL returns a time-limited download URL for key.
	ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Target is a parsed s3:// or gs:// destination.
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// Key joins the target prefix and an object name.
func (t Target) Key(name string) string {
	if t.Prefix == "" {
		return name
	}
	return path.Join(t.Prefix, name)
}

func (t Target) String() string {
	if t.Prefix == "" {
		return t.Scheme + "://" + t.Bucket
	}
	return t.Scheme + "://" + t.Bucket + "/" + t.Prefix
}

// ParseURL parses an s3://bucket/prefix or gs://bucket/prefix destination.
// A trailing slash on the prefix is dropped.
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("empty URL")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != "s3" && scheme != "gs") {
		return Target{}, fmt.Errorf("unsupported scheme in %q: expected s3:// or gs://", raw)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Target{}, fmt.Errorf("empty bucket in %q", raw)
	}
	return Target{
		Scheme: scheme,
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
	}, nil
}

// NewBackend creates a Backend for the target's scheme and bucket using the
// ambient cloud credentials.
func NewBackend(ctx context.Context, t Target) (Backend, error) {
	switch t.Scheme {
	case "s3":
		return newS3Backend(ctx, t.Bucket)
	case "gs":
		return newGCSBackend(ctx, t.Bucket)
	default:
		return nil, fmt.Errorf("unsupported scheme %q: expected s3 or gs", t.Scheme)
	}
}

// UploadFile uploads the local file at src to key.
func UploadFile(ctx context.Context, b Backend, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	return b.Upload(ctx, key, f, info.Size())
}

func contentTypeFor(key string) string {
	if strings.HasSuffix(key, ".zst") {
		return "application/zstd"
	}
	switch path.Ext(key) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
