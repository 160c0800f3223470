package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"greenr/internal/fileutil"
)

var _ Client = (*MemoryStore)(nil)

type memoryObject struct {
	data     []byte
	modified time.Time
}

// MemoryStore is an in-process Client for tests.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	exists  bool
	objects map[string]memoryObject
	now     func() time.Time

	// PingErr and UploadErr, when set, are returned by Ping and UploadFile.
	PingErr   error
	UploadErr error
}

// NewMemoryStore returns an empty store for bucket. The bucket is created by
// EnsureBucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string]memoryObject),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Bucket() string { return m.bucket }

// BucketExists reports whether EnsureBucket has run.
func (m *MemoryStore) BucketExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

func (m *MemoryStore) EnsureBucket(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = true
	return nil
}

func (m *MemoryStore) UploadFile(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return m.UploadErr
	}
	if !m.exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	m.objects[key] = memoryObject{data: data, modified: m.now()}
	return nil
}

func (m *MemoryStore) DownloadFile(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	obj, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	_, err := fileutil.WriteAtomic(localPath, bytes.NewReader(obj.data), 0o644)
	return err
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := []ObjectInfo{}
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		sum := md5.Sum(obj.data)
		infos = append(infos, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
			ETag:         hex.EncodeToString(sum[:]),
		})
	}
	slices.SortFunc(infos, func(a, b ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return infos, nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	_, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	u := url.URL{Scheme: "memory", Host: m.bucket, Path: "/" + key}
	u.RawQuery = url.Values{"expires": {fmt.Sprintf("%d", int64(expiry.Seconds()))}}.Encode()
	return u.String(), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return m.PingErr
}

// Object returns the stored bytes for key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(obj.data), true
}
