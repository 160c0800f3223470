package minio

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenr/internal/objectstore"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in      string
		host    string
		secure  bool
		wantErr bool
	}{
		{in: "localhost:9000", host: "localhost:9000"},
		{in: "http://localhost:9000", host: "localhost:9000"},
		{in: "https://minio.example.com/", host: "minio.example.com", secure: true},
		{in: "ftp://minio.example.com", wantErr: true},
		{in: "http://minio.example.com/bucket", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		host, secure, err := ParseEndpoint(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.host, host, tc.in)
		assert.Equal(t, tc.secure, secure, tc.in)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Options{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestPresignGetIsOffline(t *testing.T) {
	store, err := New(Options{
		Endpoint:  "http://minio.invalid:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "mlops-models",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	raw, err := store.PresignGet(context.Background(), "models/clf/run-1/model.pt", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "minio.invalid:9000", u.Host)
	assert.True(t, strings.HasSuffix(u.Path, "/mlops-models/models/clf/run-1/model.pt"), u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	store, err := New(Options{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "greenr-test",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	require.NoError(t, store.EnsureBucket(ctx))

	dir := t.TempDir()
	src := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"ok":true}`), 0o644))

	prefix := "it-" + time.Now().UTC().Format("20060102150405.000000000") + "/"
	require.NoError(t, store.UploadFile(ctx, src, prefix+"model.json"))

	objects, err := store.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, prefix+"model.json", objects[0].Key)

	dst := filepath.Join(dir, "copy.json")
	require.NoError(t, store.DownloadFile(ctx, prefix+"model.json", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(got))

	err = store.DownloadFile(ctx, prefix+"missing", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}
