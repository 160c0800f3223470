package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"greenr/internal/preflight"
	"greenr/internal/tracking"
)

type statusReport struct {
	Checks    []preflight.Result `json:"checks"`
	Features  int                `json:"features"`
	LatestRun *latestRun         `json:"latest_run,omitempty"`
}

type latestRun struct {
	ID        string          `json:"id"`
	Status    tracking.Status `json:"status"`
	StartedAt time.Time       `json:"started_at"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkDataset bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show directory, store, and storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			report := statusReport{
				Checks: []preflight.Result{
					preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
					preflight.CheckDirectoryAccess("Feature store directory", cfg.Paths.FeatureStoreDir),
					preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
					preflight.CheckFeatureStore(cfg.Paths.FeatureStoreDir),
					preflight.CheckObjectStorageFromConfig(runCtx, cfg),
				},
			}
			if checkDataset && len(cfg.Dataset.Classes) > 0 {
				client := &http.Client{Timeout: cfg.DownloadTimeout()}
				report.Checks = append(report.Checks,
					preflight.CheckDatasetSource(runCtx, client, cfg.Dataset.BaseURL, cfg.Dataset.Classes[0]))
			}

			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			report.Features = store.Count()

			tracker, err := ctx.openTracker()
			if err != nil {
				return err
			}
			runs, err := tracker.ListRuns(runCtx, cfg.Training.Experiment)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				report.LatestRun = &latestRun{
					ID:        runs[0].ID,
					Status:    runs[0].Status,
					StartedAt: runs[0].StartedAt,
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Health", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range report.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Activity", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Features stored", statusInfo, fmt.Sprintf("%d", report.Features), colorize))
			if report.LatestRun == nil {
				fmt.Fprintln(out, renderStatusLine("Latest run", statusInfo, "none", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Latest run", runStatusKind(report.LatestRun.Status),
					fmt.Sprintf("%s %s (%s)", report.LatestRun.ID, report.LatestRun.Status,
						report.LatestRun.StartedAt.Local().Format(time.DateTime)), colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDataset, "check-dataset", false, "Probe the dataset source over the network")
	return cmd
}
