package featurestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"greenr/internal/config"
)

// Backend persists the whole feature table. Load returns nil, nil when
// nothing has been persisted yet.
type Backend interface {
	Name() string
	Load() ([]Record, error)
	Save(records []Record) error
}

const (
	lockFileName     = ".features.lock"
	lockWaitTimeout  = 10 * time.Second
	lockRetryBackoff = 50 * time.Millisecond
)

// NewBackend builds the backend selected by cfg for dir, creating dir when needed.
func NewBackend(dir string, cfg config.FeatureStore) (Backend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("feature store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feature store directory: %w", err)
	}

	var backend Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.BackendJSON:
		backend = NewJSONBackend(dir, cfg.Compression == config.CompressionZstd)
	case config.BackendSQLite:
		backend = NewSQLiteBackend(dir)
	default:
		return nil, fmt.Errorf("unknown feature store backend %q", cfg.Backend)
	}
	if cfg.FileLock {
		backend = WithFileLock(backend, filepath.Join(dir, lockFileName))
	}
	return backend, nil
}

// lockedBackend holds an exclusive advisory lock around each Load and Save.
type lockedBackend struct {
	inner Backend
	lock  *flock.Flock
	wait  time.Duration
}

// WithFileLock wraps backend so every Load and Save holds an exclusive
// flock on lockPath, waiting up to 10 seconds for it.
func WithFileLock(backend Backend, lockPath string) Backend {
	return &lockedBackend{inner: backend, lock: flock.New(lockPath), wait: lockWaitTimeout}
}

func (b *lockedBackend) Name() string { return b.inner.Name() }

func (b *lockedBackend) Load() ([]Record, error) {
	var records []Record
	err := b.withLock(func() error {
		var loadErr error
		records, loadErr = b.inner.Load()
		return loadErr
	})
	return records, err
}

func (b *lockedBackend) Save(records []Record) error {
	return b.withLock(func() error {
		return b.inner.Save(records)
	})
}

func (b *lockedBackend) Close() error {
	if closer, ok := b.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (b *lockedBackend) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.wait)
	defer cancel()
	locked, err := b.lock.TryLockContext(ctx, lockRetryBackoff)
	if err != nil {
		return fmt.Errorf("%w: acquire feature store lock %s: %w", ErrPersist, b.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: feature store lock %s is held by another process", ErrPersist, b.lock.Path())
	}
	defer func() { _ = b.lock.Unlock() }()
	return fn()
}
