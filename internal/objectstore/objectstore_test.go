package objectstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenr/internal/objectstore"
	"greenr/internal/testsupport"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "models/clf/1", objectstore.JoinKey("/models/", "clf", "", "1/"))
	assert.Equal(t, "a/b", objectstore.JoinKey("", "a//b"))
	assert.Equal(t, "", objectstore.JoinKey("", "/"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", objectstore.ContentType("models/x/metadata.json"))
	assert.Equal(t, "application/octet-stream", objectstore.ContentType("models/x/weights.pt"))
}

func TestUploadDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "model.pt"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "nested", "config.json"), 8)

	store := objectstore.NewMemoryStore("models")
	require.NoError(t, store.EnsureBucket(ctx))

	count, err := objectstore.UploadDirectory(ctx, store, dir, "models/clf/run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	objects, err := store.List(ctx, "models/clf/")
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"models/clf/run-1/model.pt", "models/clf/run-1/nested/config.json"}, keys)
	assert.Equal(t, int64(64), objects[0].Size)
}

func TestUploadDirectoryStopsOnError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.bin"), 1)
	testsupport.WriteFile(t, filepath.Join(dir, "b.bin"), 1)

	store := objectstore.NewMemoryStore("models")
	require.NoError(t, store.EnsureBucket(ctx))
	store.UploadErr = errors.New("denied")

	count, err := objectstore.UploadDirectory(ctx, store, dir, "p")
	require.Error(t, err)
	assert.Equal(t, 0, count)
}

func TestUploadDirectoryRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "model.pt")
	testsupport.WriteFile(t, file, 1)

	_, err := objectstore.UploadDirectory(context.Background(), objectstore.NewMemoryStore("b"), file, "p")
	require.Error(t, err)
}

func TestMemoryStoreDownloadAndPresign(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("weights"), 0o644))

	store := objectstore.NewMemoryStore("models")
	require.Error(t, store.UploadFile(ctx, src, "k"), "upload before EnsureBucket must fail")
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.UploadFile(ctx, src, "models/k.bin"))

	dst := filepath.Join(dir, "out", "k.bin")
	require.NoError(t, store.DownloadFile(ctx, "models/k.bin", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(got))

	err = store.DownloadFile(ctx, "missing", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	url, err := store.PresignGet(ctx, "models/k.bin", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "memory://models/models/k.bin?expires=900", url)

	_, err = store.PresignGet(ctx, "missing", time.Minute)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}
