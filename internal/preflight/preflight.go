package preflight

import (
	"context"
	"net/http"

	"greenr/internal/config"
	"greenr/internal/objectstore"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll executes all applicable preflight checks for the given config.
// store may be nil when object storage is disabled. checkDataset controls the
// network probe of the dataset source, which only matters before a download.
func RunAll(ctx context.Context, cfg *config.Config, store objectstore.Client, checkDataset bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Feature store directory", cfg.Paths.FeatureStoreDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if checkDataset && len(cfg.Dataset.Classes) > 0 {
		client := &http.Client{Timeout: cfg.DownloadTimeout()}
		results = append(results, CheckDatasetSource(ctx, client, cfg.Dataset.BaseURL, cfg.Dataset.Classes[0]))
	}

	if cfg.ObjectStorage.Enabled {
		results = append(results, CheckObjectStorage(ctx, store))
	}

	return results
}
