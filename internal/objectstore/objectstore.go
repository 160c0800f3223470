package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// Client is the storage surface artifacts need. All methods operate on the
// client's bucket.
type Client interface {
	Bucket() string
	EnsureBucket(ctx context.Context) error
	UploadFile(ctx context.Context, localPath, key string) error
	DownloadFile(ctx context.Context, key, localPath string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Ping(ctx context.Context) error
}

// UploadDirectory uploads every regular file under localDir to
// prefix/<relative path>. It returns the number of uploaded files and stops
// on the first error.
func UploadDirectory(ctx context.Context, client Client, localDir, prefix string) (int, error) {
	if err := checkDir(localDir); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := JoinKey(prefix, filepath.ToSlash(rel))
		if err := client.UploadFile(ctx, p, key); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		count++
		return nil
	})
	return count, err
}

// JoinKey joins key segments with "/" and drops empty or leading/trailing
// separators.
func JoinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	return path.Clean(strings.Join(cleaned, "/"))
}

// ContentType guesses a MIME type from the key extension.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
