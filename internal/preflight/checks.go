package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"greenr/internal/dataset"
	"greenr/internal/featurestore"
	"greenr/internal/objectstore"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatasetSource probes the first image of class. Servers that reject
// HEAD are retried with GET.
func CheckDatasetSource(ctx context.Context, client *http.Client, baseURL, class string) Result {
	const name = "Dataset source"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	target := dataset.ImageURL(base, class, 0)
	status, err := probe(checkCtx, client, http.MethodHead, target)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = probe(checkCtx, client, http.MethodGet, target)
	}
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	switch {
	case status == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case status == http.StatusNotFound:
		return Result{Name: name, Detail: fmt.Sprintf("%s not found (check dataset.base_url and classes)", target)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("probe failed (%d)", status)}
	}
}

func probe(ctx context.Context, client *http.Client, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckObjectStorage verifies object storage connectivity and credentials.
func CheckObjectStorage(ctx context.Context, client objectstore.Client) Result {
	const name = "Object storage"

	if client == nil {
		return Result{Name: name, Detail: "client unavailable"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %s reachable", client.Bucket())}
}

// CheckFeatureStore summarizes the persisted feature table from its
// descriptor. A store that was never written passes as empty.
func CheckFeatureStore(dir string) Result {
	const name = "Feature store"

	desc, err := featurestore.ReadDescriptor(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Name: name, Passed: true, Detail: "empty (no features saved yet)"}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%d features, %d columns, updated %s",
			desc.TotalFeatures, len(desc.FeaturesColumns), desc.LastUpdated.Local().Format("2006-01-02 15:04:05")),
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
