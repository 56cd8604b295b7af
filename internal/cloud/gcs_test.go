package cloud

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// mockGCSWriter records what an upload wrote.
type mockGCSWriter struct {
	buf         bytes.Buffer
	key         string
	contentType string
	writeErr    error
	closeErr    error
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	return m.closeErr
}

func newTestGCSBackend(writer *mockGCSWriter, signErr error) *gcsBackend {
	return &gcsBackend{
		bucket: "test-bucket",
		newWriter: func(_ context.Context, _, key, contentType string) io.WriteCloser {
			writer.key = key
			writer.contentType = contentType
			return writer
		},
		signURL: func(bucket, key string, expiry time.Duration) (string, error) {
			if signErr != nil {
				return "", signErr
			}
			return "https://storage.example/" + bucket + "/" + key + "?expires=" + expiry.String(), nil
		},
	}
}

func TestGCSUpload_Success(t *testing.T) {
	w := &mockGCSWriter{}
	b := newTestGCSBackend(w, nil)
	err := b.Upload(context.Background(), "snap.jsonl", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.buf.String() != "hello" {
		t.Errorf("written = %q, want %q", w.buf.String(), "hello")
	}
	if w.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", w.contentType)
	}
}

func TestGCSUpload_CopyError(t *testing.T) {
	w := &mockGCSWriter{writeErr: errors.New("write failed")}
	b := newTestGCSBackend(w, nil)
	err := b.Upload(context.Background(), "key.bin", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gcs upload") {
		t.Errorf("error = %q, want to contain 'gcs upload'", err)
	}
}

func TestGCSUpload_CloseError(t *testing.T) {
	w := &mockGCSWriter{closeErr: errors.New("finalize failed")}
	b := newTestGCSBackend(w, nil)
	err := b.Upload(context.Background(), "key.bin", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gcs finalize") {
		t.Errorf("error = %q, want to contain 'gcs finalize'", err)
	}
}

func TestGCSShareURL(t *testing.T) {
	b := newTestGCSBackend(&mockGCSWriter{}, nil)
	url, err := b.ShareURL(context.Background(), "runs/a.csv", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://storage.example/test-bucket/runs/a.csv?expires=1h0m0s" {
		t.Errorf("url = %q", url)
	}
}

func TestGCSShareURL_Error(t *testing.T) {
	b := newTestGCSBackend(&mockGCSWriter{}, errors.New("no signer"))
	_, err := b.ShareURL(context.Background(), "a.csv", time.Hour)
	if err == nil || !strings.Contains(err.Error(), "gcs sign") {
		t.Errorf("error = %v, want to contain 'gcs sign'", err)
	}
}

func TestNewGCSBackend_BadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/nonexistent/creds.json")
	_, err := newGCSBackend(context.Background(), "test-bucket")
	if err == nil {
		t.Skip("GCS client creation succeeded despite bad credentials path")
	}
	if !strings.Contains(err.Error(), "create GCS client") {
		t.Errorf("error = %q, want to contain 'create GCS client'", err)
	}
}
