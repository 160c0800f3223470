package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"greenr/internal/fileutil"
	"greenr/internal/logging"
)

const (
	defaultConcurrency = 4
	defaultHTTPTimeout = 30 * time.Second
)

// Downloader fetches PerClass images for each class.
type Downloader struct {
	Client      *http.Client
	BaseURL     string
	Classes     []string
	PerClass    int
	Concurrency int
	DataDir     string
	// Progress receives a progress bar when it is a terminal. Non-terminal
	// writers are ignored and progress is logged instead.
	Progress io.Writer
	Logger   *slog.Logger
}

// ClassSummary counts download outcomes for one class.
type ClassSummary struct {
	Requested  int `json:"requested"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Summary reports the outcome of a download pass.
type Summary struct {
	Classes map[string]ClassSummary `json:"classes"`
	Total   ClassSummary            `json:"total"`
	Bytes   int64                   `json:"bytes"`
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

type job struct {
	class string
	index int
}

// ImageURL returns the remote location of one image.
func ImageURL(baseURL, class string, index int) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, class, imageName(index))
}

// ImagePath returns the local destination of one image.
func ImagePath(dataDir, class string, index int) string {
	return filepath.Join(dataDir, class, imageName(index))
}

func imageName(index int) string {
	return fmt.Sprintf("%08d.jpg", index)
}

// Download fetches every missing image. Individual failures are counted and
// logged; only context cancellation aborts the pass.
func (d *Downloader) Download(ctx context.Context) (Summary, error) {
	logger := logging.NewComponentLogger(d.Logger, "dataset")
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	summary := Summary{Classes: make(map[string]ClassSummary, len(d.Classes))}
	jobs := make([]job, 0, len(d.Classes)*max(d.PerClass, 0))
	for _, class := range d.Classes {
		summary.Classes[class] = ClassSummary{Requested: max(d.PerClass, 0)}
		for i := 0; i < d.PerClass; i++ {
			jobs = append(jobs, job{class: class, index: i})
		}
	}
	summary.Total.Requested = len(jobs)
	if len(jobs) == 0 {
		return summary, nil
	}

	logger.Info("dataset download started",
		logging.EventType("dataset_download_started"),
		logging.Int("classes", len(d.Classes)),
		logging.Int("images_per_class", d.PerClass),
		logging.Int("concurrency", concurrency),
		logging.String("data_dir", d.DataDir),
	)

	progress := newProgressReporter(d.Progress, len(jobs), logger)
	var mu sync.Mutex
	record := func(j job, result outcome, written int64) {
		mu.Lock()
		defer mu.Unlock()
		cs := summary.Classes[j.class]
		switch result {
		case outcomeDownloaded:
			cs.Downloaded++
			summary.Total.Downloaded++
			summary.Bytes += written
		case outcomeSkipped:
			cs.Skipped++
			summary.Total.Skipped++
		case outcomeFailed:
			cs.Failed++
			summary.Total.Failed++
		}
		summary.Classes[j.class] = cs
		progress.step()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, written, err := d.fetch(gctx, client, j)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logging.WarnWithContext(logger, "image download failed", "dataset_download_failed",
					logging.Label(j.class),
					logging.String("url", ImageURL(d.BaseURL, j.class, j.index)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check dataset.base_url and network connectivity"),
					logging.String(logging.FieldImpact, "image is missing from the local dataset"),
				)
			}
			record(j, result, written)
			return nil
		})
	}
	waitErr := g.Wait()
	progress.finish()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		return summary, waitErr
	}

	logger.Info("dataset download completed",
		logging.EventType("dataset_download_completed"),
		logging.Int("downloaded", summary.Total.Downloaded),
		logging.Int("skipped", summary.Total.Skipped),
		logging.Int("failed", summary.Total.Failed),
		logging.Int64("downloaded_bytes", summary.Bytes),
	)
	return summary, nil
}

func (d *Downloader) fetch(ctx context.Context, client *http.Client, j job) (outcome, int64, error) {
	dest := ImagePath(d.DataDir, j.class, j.index)
	exists, err := fileutil.NonEmptyFile(dest)
	if err != nil {
		return outcomeFailed, 0, fmt.Errorf("inspect %s: %w", dest, err)
	}
	if exists {
		return outcomeSkipped, 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ImageURL(d.BaseURL, j.class, j.index), nil)
	if err != nil {
		return outcomeFailed, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return outcomeFailed, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return outcomeFailed, 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	written, err := fileutil.WriteAtomic(dest, resp.Body, 0o644)
	if err != nil {
		return outcomeFailed, 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if written == 0 {
		_ = os.Remove(dest)
		return outcomeFailed, 0, errors.New("empty response body")
	}
	return outcomeDownloaded, written, nil
}

// progressReporter renders a terminal bar or, without a terminal, emits
// sampled progress logs.
type progressReporter struct {
	bar     *progressbar.ProgressBar
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	total   int
	done    int
}

func newProgressReporter(w io.Writer, total int, logger *slog.Logger) *progressReporter {
	r := &progressReporter{logger: logger, total: total}
	if isTerminal(w) {
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("downloading images"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		return r
	}
	r.sampler = logging.NewProgressSampler(25)
	return r
}

// step must be called with the caller's lock held.
func (r *progressReporter) step() {
	r.done++
	if r.bar != nil {
		_ = r.bar.Add(1)
		return
	}
	percent := float64(r.done) / float64(r.total) * 100
	if r.sampler.ShouldLog(percent, "download") {
		r.logger.Info("dataset download progress",
			logging.EventType("dataset_download_progress"),
			logging.Int("completed", r.done),
			logging.Int("total", r.total),
			logging.Float64("percent", percent),
		)
	}
}

func (r *progressReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok || file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
