package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"greenr/internal/artifacts"
	"greenr/internal/objectstore"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Publish and fetch model artifacts in object storage",
	}

	artifactsCmd.AddCommand(newArtifactsUploadCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsListCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsDownloadCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsURLCommand(ctx))

	return artifactsCmd
}

func (c *commandContext) publisher(cmd *cobra.Command) (*artifacts.Publisher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.openObjectStore(cmd.Context())
	if err != nil {
		if errors.Is(err, artifacts.ErrDisabled) {
			return nil, fmt.Errorf("%w (set [object_storage] enabled = true)", err)
		}
		return nil, err
	}
	return artifacts.NewPublisher(client, cfg.ObjectStorage.Prefix, c.loggerValue()), nil
}

func newArtifactsUploadCommand(ctx *commandContext) *cobra.Command {
	var modelID string
	var modelName string

	cmd := &cobra.Command{
		Use:   "upload <model-dir>",
		Short: "Upload a model directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(modelName) == "" {
				modelName = cfg.Training.ModelName
			}
			if strings.TrimSpace(modelID) == "" {
				modelID = filepath.Base(filepath.Clean(args[0]))
			}
			pub, err := ctx.publisher(cmd)
			if err != nil {
				return err
			}
			published, err := pub.PublishModel(cmd.Context(), args[0], modelName, modelID)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, published)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files to %s\n", published.Files, published.URI())
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model-id", "", "Model identifier (default: directory name)")
	cmd.Flags().StringVar(&modelName, "model-name", "", "Model name (default from config)")
	return cmd
}

func newArtifactsListCommand(ctx *commandContext) *cobra.Command {
	var modelName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published model files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(modelName) == "" {
				modelName = cfg.Training.ModelName
			}
			pub, err := ctx.publisher(cmd)
			if err != nil {
				return err
			}
			objects, err := pub.ListModels(cmd.Context(), modelName)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, objects)
			}
			out := cmd.OutOrStdout()
			if len(objects) == 0 {
				fmt.Fprintf(out, "No artifacts for %s\n", modelName)
				return nil
			}
			fmt.Fprintln(out, renderObjects(objects))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model-name", "", "Model name (default from config)")
	return cmd
}

func newArtifactsDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <key> <local-path>",
		Short: "Download one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.openObjectStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.DownloadFile(cmd.Context(), args[0], args[1]); err != nil {
				if errors.Is(err, objectstore.ErrNotFound) {
					return fmt.Errorf("object %s not found in bucket %s", args[0], client.Bucket())
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newArtifactsURLCommand(ctx *commandContext) *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "url <key>",
		Short: "Print a presigned download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if expiry <= 0 {
				expiry = cfg.PresignExpiry()
			}
			client, err := ctx.openObjectStore(cmd.Context())
			if err != nil {
				return err
			}
			url, err := client.PresignGet(cmd.Context(), args[0], expiry)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{"key": args[0], "url": url, "expires_in": expiry.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().DurationVar(&expiry, "expiry", 0, "URL lifetime (default from config)")
	return cmd
}

func renderObjects(objects []objectstore.ObjectInfo) string {
	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		modified := ""
		if !obj.LastModified.IsZero() {
			modified = obj.LastModified.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			obj.Key,
			humanize.Bytes(uint64(obj.Size)),
			strconv.FormatInt(obj.Size, 10),
			modified,
		})
	}
	return renderTable([]string{"Key", "Size", "Bytes", "Modified"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft})
}
