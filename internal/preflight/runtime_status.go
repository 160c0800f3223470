package preflight

import (
	"context"
	"strings"

	"greenr/internal/artifacts"
	"greenr/internal/config"
)

// CheckObjectStorageFromConfig builds the configured client and checks it.
// Disabled storage passes with a "Disabled" detail.
func CheckObjectStorageFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Object storage"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.ObjectStorage.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.ObjectStorage.Bucket) == "" {
		return Result{Name: name, Detail: "Missing bucket"}
	}
	client, err := artifacts.NewClient(ctx, cfg.ObjectStorage)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return CheckObjectStorage(ctx, client)
}
