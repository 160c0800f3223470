package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"greenr/internal/dataset"
)

func newDatasetCommand(ctx *commandContext) *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Download and inspect the training images",
	}

	datasetCmd.AddCommand(newDatasetDownloadCommand(ctx))
	datasetCmd.AddCommand(newDatasetListCommand(ctx))

	return datasetCmd
}

func newDatasetDownloadCommand(ctx *commandContext) *cobra.Command {
	var perClass int
	var concurrency int

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch missing dataset images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if perClass <= 0 {
				perClass = cfg.Dataset.ImagesPerClass
			}
			if concurrency <= 0 {
				concurrency = cfg.Dataset.Concurrency
			}
			downloader := &dataset.Downloader{
				Client:      &http.Client{Timeout: cfg.DownloadTimeout()},
				BaseURL:     cfg.Dataset.BaseURL,
				Classes:     cfg.Dataset.Classes,
				PerClass:    perClass,
				Concurrency: concurrency,
				DataDir:     cfg.Paths.DataDir,
				Progress:    cmd.ErrOrStderr(),
				Logger:      ctx.loggerValue(),
			}
			summary, err := downloader.Download(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(cfg.Dataset.Classes))
			for _, class := range cfg.Dataset.Classes {
				cs := summary.Classes[class]
				rows = append(rows, []string{
					class,
					strconv.Itoa(cs.Requested),
					strconv.Itoa(cs.Downloaded),
					strconv.Itoa(cs.Skipped),
					strconv.Itoa(cs.Failed),
				})
			}
			right := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable([]string{"Class", "Requested", "Downloaded", "Present", "Failed"}, rows, right))
			fmt.Fprintf(out, "Fetched %s into %s\n", humanize.Bytes(uint64(summary.Bytes)), cfg.Paths.DataDir)
			if summary.Total.Failed > 0 {
				return fmt.Errorf("%d images failed to download", summary.Total.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&perClass, "per-class", "n", 0, "Images per class (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel downloads (default from config)")
	return cmd
}

func newDatasetListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list [class]",
		Short: "List downloaded images per class",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			classes := cfg.Dataset.Classes
			if len(args) == 1 {
				classes = []string{args[0]}
			}

			listing := make(map[string][]string, len(classes))
			for _, class := range classes {
				images, err := dataset.ListImages(cfg.Paths.DataDir, class, limit)
				if err != nil {
					return fmt.Errorf("list %s images: %w", class, err)
				}
				listing[class] = images
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, listing)
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				for _, path := range listing[args[0]] {
					fmt.Fprintln(out, path)
				}
				return nil
			}
			rows := make([][]string, 0, len(classes))
			for _, class := range classes {
				rows = append(rows, []string{class, strconv.Itoa(len(listing[class])), filepath.Join(cfg.Paths.DataDir, class)})
			}
			fmt.Fprintln(out, renderTable([]string{"Class", "Images", "Directory"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum images per class (0 = all)")
	return cmd
}
