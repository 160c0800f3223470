package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"greenr/internal/logs"
	"greenr/internal/tracking"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect tracked pipeline runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsLogsCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var experiment string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tracker, err := ctx.openTracker()
			if err != nil {
				return err
			}
			filter := experiment
			if filter == "" && !all {
				filter = cfg.Training.Experiment
			}
			runs, err := tracker.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.Experiment,
					string(run.Status),
					run.StartedAt.Local().Format(time.DateTime),
					run.Duration(now).Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Experiment", "Status", "Started", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&experiment, "experiment", "e", "", "Experiment name (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every experiment")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show parameters and metrics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.openTracker()
			if err != nil {
				return err
			}
			run, err := tracker.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, tracking.ErrRunNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, run)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Experiment", statusInfo, run.Experiment, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), string(run.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.StartedAt.Local().Format(time.DateTime), colorize))
			fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, run.Duration(time.Now()).Round(time.Millisecond).String(), colorize))

			if len(run.Params) > 0 {
				fmt.Fprintln(out)
				keys := make([]string, 0, len(run.Params))
				for key := range run.Params {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, []string{key, run.Params[key]})
				}
				fmt.Fprintln(out, renderTable([]string{"Param", "Value"}, rows, nil))
			}

			latest := run.LatestMetrics()
			if len(latest) > 0 {
				fmt.Fprintln(out)
				keys := make([]string, 0, len(latest))
				for key := range latest {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, []string{key, strconv.FormatFloat(latest[key], 'f', -1, 64)})
				}
				fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}

func runStatusKind(status tracking.Status) statusKind {
	switch status {
	case tracking.StatusFinished:
		return statusOK
	case tracking.StatusFailed:
		return statusError
	default:
		return statusWarn
	}
}

func newRunsLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the log of a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.RunLogPath(cfg.Paths.LogDir, args[0])
			if _, err := os.Stat(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no log for run %s (expected %s)", args[0], path)
				}
				return fmt.Errorf("stat run log: %w", err)
			}

			out := cmd.OutOrStdout()
			emit := func(line string) error {
				if raw {
					_, err := fmt.Fprintln(out, line)
					return err
				}
				_, err := fmt.Fprintln(out, logs.ParseEntry(line).Format())
				return err
			}

			offset := int64(-1)
			if lines <= 0 {
				offset = 0
			}
			result, err := logs.Tail(path, logs.TailOptions{Offset: offset, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				if err := emit(line); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}
			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(followCtx, path, result.Offset, 0, emit)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Show only the last N lines (0 = all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines as written")
	return cmd
}
