package featurestore

import "sync"

// MemoryBackend keeps saved records in memory. LoadErr and SaveErr let tests
// inject failures.
type MemoryBackend struct {
	mu      sync.Mutex
	records []Record
	saved   bool
	saves   int

	LoadErr error
	SaveErr error
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend(records ...Record) *MemoryBackend {
	b := &MemoryBackend{}
	if len(records) > 0 {
		b.records = cloneRecords(records)
		b.saved = true
	}
	return b
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load() ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	if !b.saved {
		return nil, nil
	}
	return cloneRecords(b.records), nil
}

func (b *MemoryBackend) Save(records []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.records = cloneRecords(records)
	b.saved = true
	b.saves++
	return nil
}

// Saves returns how many saves succeeded.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}
