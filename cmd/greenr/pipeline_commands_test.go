package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"testing"

	"greenr/internal/artifacts"
	"greenr/internal/dataset"
	"greenr/internal/pipeline"
	"greenr/internal/testsupport"
	"greenr/internal/tracking"
)

func seedDataset(t *testing.T, env *cliTestEnv, perClass int) {
	t.Helper()
	for _, class := range env.cfg.Dataset.Classes {
		for i := range perClass {
			testsupport.WriteImage(t, dataset.ImagePath(env.cfg.Paths.DataDir, class, i), 4, 4,
				color.RGBA{R: uint8(40 * i), G: 180, B: 20, A: 255})
		}
	}
}

func TestDatasetList(t *testing.T) {
	env := setupCLITestEnv(t)
	seedDataset(t, env, 3)

	out, _, err := env.run(t, "dataset", "list")
	if err != nil {
		t.Fatalf("dataset list: %v", err)
	}
	requireContains(t, out, "dandelion")
	requireContains(t, out, "grass")

	out, _, err = env.run(t, "dataset", "list", "grass", "--limit", "2")
	if err != nil {
		t.Fatalf("dataset list grass: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 paths, got %d:\n%s", len(lines), out)
	}
	requireContains(t, lines[0], "00000000.jpg")
}

func TestPipelineRunRecordsRun(t *testing.T) {
	env := setupCLITestEnv(t)
	seedDataset(t, env, 3)

	out, _, err := env.run(t, "--json", "pipeline", "run")
	if err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	var result pipeline.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if result.Status != tracking.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", result.Status)
	}
	// feature_samples_per_class is 2 in the test config.
	if result.Stored != 4 || result.Statistics.TotalCount != 4 {
		t.Fatalf("unexpected counts: stored=%d total=%d", result.Stored, result.Statistics.TotalCount)
	}

	out, _, err = env.run(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, result.RunID)
	requireContains(t, out, "FINISHED")

	out, _, err = env.run(t, "runs", "show", result.RunID)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, "feature_store_total")
	requireContains(t, out, "feature_samples_per_class")

	out, _, err = env.run(t, "runs", "logs", result.RunID)
	if err != nil {
		t.Fatalf("runs logs: %v", err)
	}
	requireContains(t, out, "pipeline run completed")

	out, _, err = env.run(t, "runs", "logs", result.RunID, "--raw", "-n", "1")
	if err != nil {
		t.Fatalf("runs logs --raw: %v", err)
	}
	requireContains(t, out, `"event_type":"pipeline_completed"`)

	out, _, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Features stored")
	requireContains(t, out, result.RunID)
}

func TestRunsShowUnknown(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run(t, "runs", "show", "does-not-exist")
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
	requireContains(t, err.Error(), "not found")
}

func TestRunsListFiltersExperiment(t *testing.T) {
	env := setupCLITestEnv(t)
	tracker := testsupport.MustOpenTracker(t, env.cfg)
	ctx := context.Background()
	for _, experiment := range []string{env.cfg.Training.Experiment, "other"} {
		run, err := tracker.StartRun(ctx, experiment)
		if err != nil {
			t.Fatalf("start run: %v", err)
		}
		if err := run.End(ctx, tracking.StatusFinished); err != nil {
			t.Fatalf("end run: %v", err)
		}
	}

	out, _, err := env.run(t, "--json", "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	var runs []tracking.RunInfo
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Experiment != env.cfg.Training.Experiment {
		t.Fatalf("expected only the configured experiment, got %+v", runs)
	}

	out, _, err = env.run(t, "--json", "runs", "list", "--all")
	if err != nil {
		t.Fatalf("runs list --all: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestArtifactsRequireObjectStorage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run(t, "artifacts", "list")
	if !errors.Is(err, artifacts.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "--json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if report.LatestRun != nil {
		t.Fatalf("expected no runs, got %+v", report.LatestRun)
	}
	for _, check := range report.Checks {
		if !check.Passed {
			t.Fatalf("check %s failed: %s", check.Name, check.Detail)
		}
	}
	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	requireContains(t, fmt.Sprint(names), "Object storage")
}
