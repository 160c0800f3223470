package featurestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DescriptorFileName is the sidecar written next to the feature data.
const DescriptorFileName = "metadata.json"

// Descriptor summarizes the last save of a file backend.
type Descriptor struct {
	LastUpdated     time.Time `json:"last_updated"`
	TotalFeatures   int       `json:"total_features"`
	FeaturesColumns []string  `json:"features_columns"`
}

// ReadDescriptor reads the sidecar descriptor from dir. A missing descriptor
// returns fs.ErrNotExist.
func ReadDescriptor(dir string) (Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Descriptor{}, err
		}
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Descriptor{}, fmt.Errorf("%w: parse descriptor: %w", ErrSerialize, err)
	}
	return desc, nil
}

// errDescriptor marks a failed sidecar write after the table itself was
// committed.
var errDescriptor = errors.New("descriptor not written")

func writeDescriptor(dir string, records []Record, now time.Time) error {
	if err := encodeDescriptor(dir, records, now); err != nil {
		return fmt.Errorf("%w: %w", errDescriptor, err)
	}
	return nil
}

func encodeDescriptor(dir string, records []Record, now time.Time) error {
	desc := Descriptor{
		LastUpdated:     now.UTC(),
		TotalFeatures:   len(records),
		FeaturesColumns: columnsFor(records),
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode descriptor: %w", ErrSerialize, err)
	}
	return writeFileAtomic(filepath.Join(dir, DescriptorFileName), func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if err := write(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
