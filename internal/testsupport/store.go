package testsupport

import (
	"testing"

	"greenr/internal/config"
	"greenr/internal/featurestore"
	"greenr/internal/logging"
	"greenr/internal/tracking"
)

// MustOpenTracker opens a tracking.Tracker for tests and registers cleanup.
func MustOpenTracker(t testing.TB, cfg *config.Config) *tracking.Tracker {
	t.Helper()

	tracker, err := tracking.Open(cfg.Paths.TrackingDB, logging.NewNop())
	if err != nil {
		t.Fatalf("tracking.Open: %v", err)
	}
	t.Cleanup(func() {
		tracker.Close()
	})
	return tracker
}

// MustOpenFeatureStore opens the configured feature store for tests and
// registers cleanup.
func MustOpenFeatureStore(t testing.TB, cfg *config.Config) *featurestore.Store {
	t.Helper()

	store, err := featurestore.OpenDir(cfg.Paths.FeatureStoreDir, cfg.FeatureStore, logging.NewNop())
	if err != nil {
		t.Fatalf("featurestore.OpenDir: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
