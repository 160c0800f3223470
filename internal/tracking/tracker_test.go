package tracking_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"greenr/internal/logging"
	"greenr/internal/testsupport"
	"greenr/internal/tracking"
)

type stepClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

func openTracker(t *testing.T, path string) *tracking.Tracker {
	t.Helper()
	clock := &stepClock{next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tracker, err := tracking.Open(path, logging.NewNop(), tracking.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("tracking.Open: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tracker := openTracker(t, cfg.Paths.TrackingDB)
	ctx := context.Background()

	run, err := tracker.StartRun(ctx, "dandelion_vs_grass")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run id")
	}

	if err := run.LogParams(ctx, map[string]any{
		"classes":                   []string{"dandelion", "grass"},
		"feature_samples_per_class": 10,
		"experiment":                "dandelion_vs_grass",
	}); err != nil {
		t.Fatalf("LogParams: %v", err)
	}
	if err := run.LogParam(ctx, "feature_samples_per_class", 12); err != nil {
		t.Fatalf("LogParam overwrite: %v", err)
	}
	for step, value := range []float64{5, 7} {
		if err := run.LogMetric(ctx, "feature_store_total", value, int64(step)); err != nil {
			t.Fatalf("LogMetric: %v", err)
		}
	}

	info, err := tracker.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if info.Status != tracking.StatusRunning || info.EndedAt != nil {
		t.Fatalf("expected running run, got %+v", info)
	}

	if err := run.End(ctx, tracking.StatusFinished); err != nil {
		t.Fatalf("End: %v", err)
	}

	info, err = tracker.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if info.Status != tracking.StatusFinished || info.EndedAt == nil {
		t.Fatalf("expected finished run, got %+v", info)
	}
	wantParams := map[string]string{
		"classes":                   "dandelion,grass",
		"experiment":                "dandelion_vs_grass",
		"feature_samples_per_class": "12",
	}
	if diff := cmp.Diff(wantParams, info.Params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if len(info.Metrics) != 2 {
		t.Fatalf("expected 2 metric observations, got %d", len(info.Metrics))
	}
	if got := info.LatestMetrics()["feature_store_total"]; got != 7 {
		t.Fatalf("latest feature_store_total = %v, want 7", got)
	}
	if info.Duration(time.Time{}) <= 0 {
		t.Fatalf("expected positive duration, got %v", info.Duration(time.Time{}))
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tracker := openTracker(t, cfg.Paths.TrackingDB)
	ctx := context.Background()

	var ids []string
	for _, experiment := range []string{"alpha", "beta", "alpha"} {
		run, err := tracker.StartRun(ctx, experiment)
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, run.ID)
	}

	all, err := tracker.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var gotIDs []string
	for _, run := range all {
		gotIDs = append(gotIDs, run.ID)
	}
	if diff := cmp.Diff([]string{ids[2], ids[1], ids[0]}, gotIDs); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	alpha, err := tracker.ListRuns(ctx, "alpha")
	if err != nil {
		t.Fatalf("ListRuns alpha: %v", err)
	}
	if len(alpha) != 2 || alpha[0].ID != ids[2] || alpha[1].ID != ids[0] {
		t.Fatalf("unexpected alpha runs: %+v", alpha)
	}

	none, err := tracker.ListRuns(ctx, "gamma")
	if err != nil {
		t.Fatalf("ListRuns gamma: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", none)
	}
}

func TestGetRunNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tracker := testsupport.MustOpenTracker(t, cfg)

	if _, err := tracker.GetRun(context.Background(), "missing"); !errors.Is(err, tracking.ErrRunNotFound) {
		t.Fatalf("GetRun error = %v, want ErrRunNotFound", err)
	}
}

func TestEndRejectsNonTerminalStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tracker := testsupport.MustOpenTracker(t, cfg)
	ctx := context.Background()

	run, err := tracker.StartRun(ctx, "alpha")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := run.End(ctx, tracking.StatusRunning); !errors.Is(err, tracking.ErrInvalidStatus) {
		t.Fatalf("End error = %v, want ErrInvalidStatus", err)
	}
	if err := run.End(ctx, tracking.StatusFailed); err != nil {
		t.Fatalf("End failed: %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tracker := testsupport.MustOpenTracker(t, cfg)
	ctx := context.Background()

	if _, err := tracker.StartRun(ctx, "  "); err == nil {
		t.Fatal("expected error for blank experiment")
	}
	run, err := tracker.StartRun(ctx, "alpha")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := run.LogParam(ctx, "", 1); err == nil {
		t.Fatal("expected error for blank param key")
	}
	if err := run.LogMetric(ctx, "", 1, 0); err == nil {
		t.Fatal("expected error for blank metric key")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.db")
	ctx := context.Background()

	first, err := tracking.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	run, err := first.StartRun(ctx, "alpha")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := run.LogMetric(ctx, "accuracy", 0.875, 0); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTracker(t, path)
	info, err := second.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
	if got := info.LatestMetrics()["accuracy"]; got != 0.875 {
		t.Fatalf("accuracy = %v, want 0.875", got)
	}
}
