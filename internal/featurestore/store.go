package featurestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"greenr/internal/config"
	"greenr/internal/logging"
)

// Store is the in-memory view of the feature table backed by a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	records []Record       // scan order
	index   map[string]int // key -> position in records
	loadErr error
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates a store over backend and loads any persisted records. A load
// failure is logged and the store starts empty; see LoadError.
func Open(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "featurestore"),
		now:     time.Now,
		index:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := backend.Load()
	if err != nil {
		s.loadErr = err
		logging.WarnWithContext(s.logger, "failed to load feature store", "featurestore_load_failed",
			logging.Error(err),
			logging.String("backend", backend.Name()),
			logging.String(logging.FieldErrorHint, "inspect or remove the persisted feature files"),
			logging.String(logging.FieldImpact, "store starts empty; the next write replaces the unreadable data"),
		)
		return s
	}
	s.records, s.index = dedupe(records)
	s.logger.Debug("loaded feature store",
		logging.Int("record_count", len(s.records)),
		logging.String("backend", backend.Name()))
	return s
}

// OpenDir builds the configured backend for dir and opens a store over it.
func OpenDir(dir string, cfg config.FeatureStore, logger *slog.Logger, opts ...Option) (*Store, error) {
	backend, err := NewBackend(dir, cfg)
	if err != nil {
		return nil, err
	}
	return Open(backend, logger, opts...), nil
}

// LoadError reports why the initial load failed, if it did.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Backend returns the persistence backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close releases backend resources.
func (s *Store) Close() error {
	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Upsert stores a record for sourcePath, replacing any record with the same
// key entirely. The replaced key moves to the end of the scan order. On any
// failure the store is unchanged.
func (s *Store) Upsert(sourcePath, label string, attrs Attributes, metadata any) error {
	if strings.TrimSpace(sourcePath) == "" {
		return ErrEmptySourcePath
	}
	if !utf8.ValidString(sourcePath) {
		return fmt.Errorf("%w: source path %q", ErrInvalidEncoding, sourcePath)
	}
	if !utf8.ValidString(label) {
		return fmt.Errorf("%w: label %q", ErrInvalidEncoding, label)
	}
	normalized, err := normalizeAttributes(attrs)
	if err != nil {
		return err
	}
	rawMetadata, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(sourcePath)
	capturedAt := s.now().UTC()
	staged := make([]Record, 0, len(s.records)+1)
	for _, rec := range s.records {
		if rec.Key == key {
			// Keep CapturedAt monotonic per key even if the wall clock steps back.
			if capturedAt.Before(rec.CapturedAt) {
				capturedAt = rec.CapturedAt
			}
			continue
		}
		staged = append(staged, rec)
	}
	record := Record{
		Key:        key,
		SourcePath: sourcePath,
		Label:      label,
		CapturedAt: capturedAt,
		Attributes: normalized,
		Metadata:   rawMetadata,
	}
	staged = append(staged, record)

	if err := s.persist(staged); err != nil {
		logging.WarnWithContext(s.logger, "feature upsert not persisted", "featurestore_save_failed",
			logging.ImageHash(key),
			logging.String("image_path", sourcePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the feature store directory"),
			logging.String(logging.FieldImpact, "record was not stored"),
		)
		return err
	}
	s.swap(staged)

	s.logger.Debug("feature record upserted",
		logging.EventType("feature_upserted"),
		logging.ImageHash(key),
		logging.Label(label),
		logging.Int("attribute_count", len(normalized)))
	return nil
}

// Query returns deep copies of matching records in scan order.
func (s *Store) Query(filter Filter) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.SourcePath != "" {
		pos, ok := s.index[Key(filter.SourcePath)]
		if !ok {
			return []Record{}
		}
		rec := s.records[pos]
		if filter.Label != "" && rec.Label != filter.Label {
			return []Record{}
		}
		return []Record{rec.Clone()}
	}

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Label != "" && rec.Label != filter.Label {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

// Get returns the record stored for sourcePath.
func (s *Store) Get(sourcePath string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[Key(sourcePath)]
	if !ok {
		return Record{}, false
	}
	return s.records[pos].Clone(), true
}

// Statistics summarizes the current table.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		TotalCount:    len(s.records),
		CountsByLabel: make(map[string]int),
	}
	var latest time.Time
	for _, rec := range s.records {
		stats.CountsByLabel[rec.Label]++
		if rec.CapturedAt.After(latest) {
			latest = rec.CapturedAt
		}
	}
	if len(s.records) > 0 {
		stats.MostRecentCapturedAt = &latest
	}
	return stats
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record and persists the empty table. On failure the
// store is unchanged.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist([]Record{}); err != nil {
		logging.WarnWithContext(s.logger, "feature store clear not persisted", "featurestore_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions of the feature store directory"),
			logging.String(logging.FieldImpact, "records remain stored"),
		)
		return err
	}
	removed := len(s.records)
	s.swap(nil)
	s.logger.Info("feature store cleared",
		logging.EventType("featurestore_cleared"),
		logging.Int("removed", removed))
	return nil
}

func (s *Store) persist(records []Record) error {
	err := s.backend.Save(records)
	if errors.Is(err, errDescriptor) {
		// the table is committed; only the informational sidecar is stale
		logging.WarnWithContext(s.logger, "feature store descriptor not updated", "featurestore_descriptor_failed",
			logging.Error(err),
			logging.String("backend", s.backend.Name()),
			logging.String(logging.FieldErrorHint, "check permissions of "+DescriptorFileName+" in the feature store directory"),
			logging.String(logging.FieldImpact, "features info may report stale totals until the next save"),
		)
		return nil
	}
	if err != nil {
		if errors.Is(err, ErrSerialize) || errors.Is(err, ErrPersist) {
			return fmt.Errorf("save features: %w", err)
		}
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) swap(records []Record) {
	s.records = records
	s.index = make(map[string]int, len(records))
	for i, rec := range records {
		s.index[rec.Key] = i
	}
}

// dedupe keeps the last occurrence of each key, in the position it was last seen.
func dedupe(records []Record) ([]Record, map[string]int) {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		if rec.Key == "" {
			continue
		}
		last[rec.Key] = i
	}
	out := make([]Record, 0, len(last))
	index := make(map[string]int, len(last))
	for i, rec := range records {
		if rec.Key == "" || last[rec.Key] != i {
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = Attributes{}
		}
		index[rec.Key] = len(out)
		out = append(out, rec)
	}
	return out, index
}
