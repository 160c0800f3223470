package testsupport

import (
	"path/filepath"
	"testing"

	"greenr/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		DataDir:         filepath.Join(base, "data"),
		FeatureStoreDir: filepath.Join(base, "feature_store"),
		TrackingDB:      filepath.Join(base, "tracking", "tracking.db"),
		LogDir:          filepath.Join(base, "logs"),
		ArtifactsDir:    filepath.Join(base, "models"),
	}
	cfgVal.Dataset.BaseURL = "https://images.example.test/data"
	cfgVal.Dataset.ImagesPerClass = 2
	cfgVal.Dataset.Concurrency = 2
	cfgVal.Training.FeatureSamplesPerClass = 2
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBackend selects the feature store backend and compression.
func WithBackend(backend, compression string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.FeatureStore.Backend = backend
		b.cfg.FeatureStore.Compression = compression
	}
}

// WithDatasetURL overrides the dataset base URL.
func WithDatasetURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.BaseURL = url
	}
}

// WithClasses overrides the dataset classes.
func WithClasses(classes ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.Classes = append([]string(nil), classes...)
	}
}

// WithObjectStorage enables object storage against bucket.
func WithObjectStorage(bucket string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ObjectStorage.Enabled = true
		b.cfg.ObjectStorage.Bucket = bucket
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
