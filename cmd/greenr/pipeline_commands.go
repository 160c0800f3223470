package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"greenr/internal/artifacts"
	"greenr/internal/objectstore"
	"greenr/internal/pipeline"
	"greenr/internal/preflight"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the feature pipeline",
	}
	pipelineCmd.AddCommand(newPipelineRunCommand(ctx))
	return pipelineCmd
}

func newPipelineRunCommand(ctx *commandContext) *cobra.Command {
	var opts pipeline.Options
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract features for each class, track the run, and optionally publish a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := ctx.loggerValue()

			var client objectstore.Client
			if cfg.ObjectStorage.Enabled {
				client, err = ctx.openObjectStore(runCtx)
				if err != nil && opts.ModelDir != "" {
					return fmt.Errorf("object storage: %w", err)
				}
			}

			if !skipPreflight {
				results := preflight.RunAll(runCtx, cfg, client, opts.Download)
				if failed := preflight.Failed(results); len(failed) > 0 {
					out := cmd.ErrOrStderr()
					colorize := shouldColorize(out)
					for _, r := range failed {
						fmt.Fprintln(out, renderStatusLine(r.Name, statusError, r.Detail, colorize))
					}
					return fmt.Errorf("preflight failed (%d checks); rerun with --skip-preflight to ignore", len(failed))
				}
			}

			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			tracker, err := ctx.openTracker()
			if err != nil {
				return err
			}

			runnerOpts := []pipeline.Option{pipeline.WithProgress(cmd.ErrOrStderr())}
			if client != nil {
				runnerOpts = append(runnerOpts, pipeline.WithPublisher(
					artifacts.NewPublisher(client, cfg.ObjectStorage.Prefix, logger)))
			}
			runner, err := pipeline.New(cfg, store, tracker, logger, runnerOpts...)
			if err != nil {
				return err
			}

			result, runErr := runner.Run(runCtx, opts)
			if errors.Is(runErr, pipeline.ErrAlreadyRunning) {
				return fmt.Errorf("%w (lock %s)", runErr, runner.LockPath())
			}
			if result.RunID == "" {
				return runErr
			}
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				return runErr
			}
			printPipelineResult(cmd, result)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&opts.Download, "download", false, "Download missing dataset images first")
	cmd.Flags().StringVar(&opts.ModelDir, "model-dir", "", "Model directory to publish after extraction")
	cmd.Flags().StringVar(&opts.ModelID, "model-id", "", "Published model identifier (default: run ID)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip directory and storage checks")
	return cmd
}

func printPipelineResult(cmd *cobra.Command, result pipeline.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Pipeline run "+result.RunID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(result.Status), string(result.Status), colorize))
	if result.Download != nil {
		fmt.Fprintln(out, renderStatusLine("Downloaded", statusInfo,
			fmt.Sprintf("%d new, %d present, %d failed",
				result.Download.Total.Downloaded, result.Download.Total.Skipped, result.Download.Total.Failed), colorize))
	}
	extractKind := statusOK
	if result.Failed > 0 {
		extractKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Features", extractKind,
		fmt.Sprintf("%d processed, %d stored, %d skipped, %d failed",
			result.Processed, result.Stored, result.Skipped, result.Failed), colorize))
	fmt.Fprintln(out, renderStatusLine("Feature store total", statusInfo,
		fmt.Sprintf("%d", result.Statistics.TotalCount), colorize))
	switch {
	case result.Published != nil:
		fmt.Fprintln(out, renderStatusLine("Model", statusOK,
			fmt.Sprintf("%s (%d files)", result.Published.URI(), result.Published.Files), colorize))
	case result.PublishErr != "":
		fmt.Fprintln(out, renderStatusLine("Model", statusWarn, result.PublishErr, colorize))
	}
	if result.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Run log", statusInfo, result.LogPath, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, result.Duration.Round(time.Millisecond).String(), colorize))
}
