package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"greenr/internal/features"
	"greenr/internal/featurestore"
)

func newFeaturesCommand(ctx *commandContext) *cobra.Command {
	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Inspect and edit the feature store",
	}

	featuresCmd.AddCommand(newFeaturesAddCommand(ctx))
	featuresCmd.AddCommand(newFeaturesExtractCommand(ctx))
	featuresCmd.AddCommand(newFeaturesListCommand(ctx))
	featuresCmd.AddCommand(newFeaturesGetCommand(ctx))
	featuresCmd.AddCommand(newFeaturesStatsCommand(ctx))
	featuresCmd.AddCommand(newFeaturesClearCommand(ctx))
	featuresCmd.AddCommand(newFeaturesInfoCommand(ctx))

	return featuresCmd
}

func newFeaturesAddCommand(ctx *commandContext) *cobra.Command {
	var label string
	var attrFlags []string
	var metadataFlag string

	cmd := &cobra.Command{
		Use:   "add <image-path>",
		Short: "Store a record with explicit attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseAttributeFlags(attrFlags)
			if err != nil {
				return err
			}
			var metadata any
			if strings.TrimSpace(metadataFlag) != "" {
				if !json.Valid([]byte(metadataFlag)) {
					return fmt.Errorf("--metadata must be valid JSON")
				}
				metadata = json.RawMessage(metadataFlag)
			}
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			if err := store.Upsert(args[0], label, attrs, metadata); err != nil {
				return err
			}
			rec, _ := store.Get(args[0])
			if ctx.jsonOutput() {
				return writeJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s) with %d attributes\n", rec.SourcePath, rec.Key, len(rec.Attributes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Label for the record")
	cmd.Flags().StringArrayVarP(&attrFlags, "attr", "a", nil, "Attribute as name=value (repeatable)")
	cmd.Flags().StringVar(&metadataFlag, "metadata", "", "Opaque JSON metadata stored with the record")
	return cmd
}

func newFeaturesExtractCommand(ctx *commandContext) *cobra.Command {
	var label string
	var save bool

	cmd := &cobra.Command{
		Use:   "extract <image-path>...",
		Short: "Compute image features and optionally store them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if save && strings.TrimSpace(label) == "" {
				return fmt.Errorf("--save requires --label")
			}
			var store *featurestore.Store
			if save {
				s, err := ctx.openFeatureStore()
				if err != nil {
					return err
				}
				store = s
			}
			logger := ctx.loggerValue()

			type extracted struct {
				Path       string                  `json:"image_path"`
				Attributes featurestore.Attributes `json:"attributes"`
				Stored     bool                    `json:"stored"`
			}
			results := make([]extracted, 0, len(args))
			for _, path := range args {
				attrs := features.ExtractWithLogger(path, logger)
				entry := extracted{Path: path, Attributes: attrs}
				if store != nil && len(attrs) > 0 {
					if err := store.Upsert(path, label, attrs, nil); err != nil {
						return err
					}
					entry.Stored = true
				}
				results = append(results, entry)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			for i, res := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, res.Path)
				if len(res.Attributes) == 0 {
					fmt.Fprintln(out, "  no features (unreadable image)")
					continue
				}
				fmt.Fprintln(out, renderKeyValues(attributePairs(res.Attributes)))
				if res.Stored {
					fmt.Fprintln(out, "  stored")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Label used when saving")
	cmd.Flags().BoolVar(&save, "save", false, "Upsert extracted features into the store")
	return cmd
}

func newFeaturesListCommand(ctx *commandContext) *cobra.Command {
	var label string
	var path string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored feature records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			records := store.Query(featurestore.Filter{SourcePath: path, Label: label})
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No feature records")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					shortKey(rec.Key),
					rec.Label,
					rec.SourcePath,
					strconv.Itoa(len(rec.Attributes)),
					rec.CapturedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Key", "Label", "Path", "Attrs", "Captured"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Only records with this label")
	cmd.Flags().StringVar(&path, "path", "", "Only the record for this image path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum records to show (0 = all)")
	return cmd
}

func newFeaturesGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <image-path>",
		Short: "Show one feature record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			rec, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("no feature record for %s", args[0])
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, rec)
			}
			pairs := [][2]string{
				{featurestore.ColumnImageHash, rec.Key},
				{featurestore.ColumnImagePath, rec.SourcePath},
				{featurestore.ColumnLabel, rec.Label},
				{featurestore.ColumnTimestamp, rec.CapturedAt.Format(time.RFC3339Nano)},
			}
			if len(rec.Metadata) > 0 {
				pairs = append(pairs, [2]string{featurestore.ColumnMetadata, string(rec.Metadata)})
			}
			pairs = append(pairs, attributePairs(rec.Attributes)...)
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
			return nil
		},
	}
}

func newFeaturesStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the feature store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			stats := store.Statistics()
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total features: %d\n", stats.TotalCount)
			if stats.MostRecentCapturedAt != nil {
				fmt.Fprintf(out, "Last update: %s (%s)\n",
					stats.MostRecentCapturedAt.Local().Format(time.DateTime),
					humanize.Time(*stats.MostRecentCapturedAt))
			} else {
				fmt.Fprintln(out, "Last update: never")
			}
			if len(stats.CountsByLabel) == 0 {
				return nil
			}
			title := cases.Title(language.English)
			labels := make([]string, 0, len(stats.CountsByLabel))
			for label := range stats.CountsByLabel {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			rows := make([][]string, 0, len(labels))
			for _, label := range labels {
				display := title.String(label)
				if label == "" {
					display = "(unlabeled)"
				}
				rows = append(rows, []string{display, strconv.Itoa(stats.CountsByLabel[label])})
			}
			fmt.Fprintln(out, renderTable([]string{"Label", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newFeaturesClearCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every feature record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the feature store without --yes")
			}
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			removed := store.Count()
			if err := store.Clear(); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]int{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d feature records\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm removal")
	return cmd
}

func newFeaturesInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show feature store backend and descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openFeatureStore()
			if err != nil {
				return err
			}
			type info struct {
				Directory  string                   `json:"directory"`
				Backend    string                   `json:"backend"`
				Records    int                      `json:"records"`
				LoadError  string                   `json:"load_error,omitempty"`
				Descriptor *featurestore.Descriptor `json:"descriptor,omitempty"`
			}
			result := info{
				Directory: cfg.Paths.FeatureStoreDir,
				Backend:   store.Backend().Name(),
				Records:   store.Count(),
			}
			if loadErr := store.LoadError(); loadErr != nil {
				result.LoadError = loadErr.Error()
			}
			desc, err := featurestore.ReadDescriptor(cfg.Paths.FeatureStoreDir)
			switch {
			case err == nil:
				result.Descriptor = &desc
			case errors.Is(err, fs.ErrNotExist):
			default:
				return fmt.Errorf("read descriptor: %w", err)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			pairs := [][2]string{
				{"Directory", result.Directory},
				{"Backend", result.Backend},
				{"Records", strconv.Itoa(result.Records)},
			}
			if result.LoadError != "" {
				pairs = append(pairs, [2]string{"Load error", result.LoadError})
			}
			if result.Descriptor != nil {
				pairs = append(pairs,
					[2]string{"Last updated", result.Descriptor.LastUpdated.Local().Format(time.DateTime)},
					[2]string{"Columns", strings.Join(result.Descriptor.FeaturesColumns, ", ")},
				)
			} else {
				pairs = append(pairs, [2]string{"Descriptor", "none"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
			return nil
		},
	}
}

// parseAttributeFlags turns name=value pairs into attributes. Values parse as
// integers, then floats, then fall back to strings.
func parseAttributeFlags(values []string) (featurestore.Attributes, error) {
	attrs := make(featurestore.Attributes, len(values))
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q (want name=value)", raw)
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			attrs[name] = i
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			attrs[name] = f
			continue
		}
		attrs[name] = value
	}
	return attrs, nil
}

func attributePairs(attrs featurestore.Attributes) [][2]string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]string{name, formatAttribute(attrs[name])})
	}
	return pairs
}

func formatAttribute(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
