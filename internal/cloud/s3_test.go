package cloud

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client captures the last PutObject call.
type mockS3Client struct {
	putErr error
	input  *s3.PutObjectInput
	body   string
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = in
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		m.body = string(b)
	}
	return &s3.PutObjectOutput{}, m.putErr
}

func newTestS3Backend(client s3API) *s3Backend {
	return &s3Backend{
		client: client,
		bucket: "test-bucket",
		presignURL: func(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
			return "https://" + bucket + ".s3.example/" + key + "?X-Amz-Expires=" + expiry.String(), nil
		},
	}
}

func TestS3Upload_Success(t *testing.T) {
	m := &mockS3Client{}
	b := newTestS3Backend(m)
	err := b.Upload(context.Background(), "runs/snap.parquet", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *m.input.Bucket != "test-bucket" || *m.input.Key != "runs/snap.parquet" {
		t.Errorf("bucket/key = %s/%s", *m.input.Bucket, *m.input.Key)
	}
	if *m.input.ContentLength != 5 {
		t.Errorf("content length = %d, want 5", *m.input.ContentLength)
	}
	if *m.input.ContentType != "application/vnd.apache.parquet" {
		t.Errorf("content type = %q", *m.input.ContentType)
	}
	if m.body != "hello" {
		t.Errorf("body = %q", m.body)
	}
}

func TestS3Upload_Error(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{putErr: errors.New("access denied")})
	err := b.Upload(context.Background(), "key.bin", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "s3 upload") {
		t.Errorf("error = %q, want to contain 's3 upload'", err)
	}
}

func TestS3ShareURL(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{})
	url, err := b.ShareURL(context.Background(), "a.csv", 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://test-bucket.s3.example/a.csv?X-Amz-Expires=30m0s" {
		t.Errorf("url = %q", url)
	}
}

func TestS3ShareURL_Error(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{})
	b.presignURL = func(context.Context, string, string, time.Duration) (string, error) {
		return "", errors.New("expired credentials")
	}
	_, err := b.ShareURL(context.Background(), "a.csv", time.Minute)
	if err == nil || !strings.Contains(err.Error(), "s3 presign") {
		t.Errorf("error = %v, want to contain 's3 presign'", err)
	}
}
