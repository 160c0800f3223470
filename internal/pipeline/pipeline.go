package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"greenr/internal/artifacts"
	"greenr/internal/config"
	"greenr/internal/dataset"
	"greenr/internal/features"
	"greenr/internal/featurestore"
	"greenr/internal/logging"
	"greenr/internal/logs"
	"greenr/internal/notifications"
	"greenr/internal/tracking"
)

// ErrAlreadyRunning is returned when another process holds the pipeline lock.
var ErrAlreadyRunning = errors.New("another pipeline run is in progress")

// Options selects the optional steps of a run.
type Options struct {
	// Download fetches missing dataset images before extraction.
	Download bool
	// ModelDir, when set and object storage is enabled, is published after
	// extraction.
	ModelDir string
	// ModelID names the published model; defaults to the run ID.
	ModelID string
}

// Result summarizes a completed run.
type Result struct {
	RunID      string                  `json:"run_id"`
	Experiment string                  `json:"experiment"`
	Status     tracking.Status         `json:"status"`
	Download   *dataset.Summary        `json:"download,omitempty"`
	Processed  int                     `json:"processed"`
	Stored     int                     `json:"stored"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Statistics featurestore.Statistics `json:"statistics"`
	Published  *artifacts.Published    `json:"published,omitempty"`
	PublishErr string                  `json:"publish_error,omitempty"`
	LogPath    string                  `json:"log_path,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// Runner wires the store, tracker, and optional publisher together.
type Runner struct {
	cfg        *config.Config
	store      *featurestore.Store
	tracker    *tracking.Tracker
	publisher  *artifacts.Publisher
	notifier   notifications.Service
	httpClient *http.Client
	progress   io.Writer
	logger     *slog.Logger
	lockPath   string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPublisher enables model publishing.
func WithPublisher(p *artifacts.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithNotifier announces run outcomes.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithHTTPClient overrides the dataset download client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) { r.httpClient = client }
}

// WithProgress sets where the download progress bar is drawn.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// New constructs a Runner.
func New(cfg *config.Config, store *featurestore.Store, tracker *tracking.Tracker, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil || store == nil || tracker == nil {
		return nil, errors.New("pipeline requires config, feature store, and tracker")
	}
	r := &Runner{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		lockPath: cfg.PipelineLockPath(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: cfg.DownloadTimeout()}
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r, nil
}

// LockPath returns the single-run lock file.
func (r *Runner) LockPath() string {
	return r.lockPath
}

// Run executes one pipeline pass.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	started := time.Now()
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(r.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !ok {
		return Result{}, ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(r.logger, "failed to release pipeline lock", "pipeline_unlock_failed",
				logging.String("lock", r.lockPath),
				logging.Error(err),
			)
		}
	}()

	result := Result{Experiment: r.cfg.Training.Experiment}

	if opts.Download {
		summary, err := r.download(ctx)
		if err != nil {
			return result, err
		}
		result.Download = &summary
	}

	run, err := r.tracker.StartRun(ctx, r.cfg.Training.Experiment)
	if err != nil {
		return result, fmt.Errorf("start tracking run: %w", err)
	}
	result.RunID = run.ID

	ctx = logging.WithRunID(ctx, run.ID)
	ctx = logging.WithExperiment(ctx, run.Experiment)
	logger, closer := r.runLogger(ctx, run.ID, &result)
	if closer != nil {
		defer closer.Close()
	}

	runErr := r.execute(ctx, logger, run, opts, &result)
	status := tracking.StatusFinished
	if runErr != nil {
		status = tracking.StatusFailed
	}
	// The run must be closed even when ctx was cancelled mid-run.
	endCtx := context.WithoutCancel(ctx)
	if err := run.End(endCtx, status); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("end tracking run: %w", err))
		status = tracking.StatusFailed
	}
	result.Status = status
	result.Duration = time.Since(started)

	if runErr != nil {
		logging.ErrorWithContext(logger, "pipeline run failed", "pipeline_failed",
			logging.Error(runErr),
			logging.Duration("duration", result.Duration),
		)
		r.notify(endCtx, logger, notifications.EventRunFailed, notifications.Payload{
			"runID": result.RunID,
			"error": runErr.Error(),
		})
		return result, runErr
	}
	summary := []logging.Attr{
		logging.EventType("pipeline_completed"),
		logging.Int("stored", result.Stored),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Int("feature_store_total", result.Statistics.TotalCount),
		logging.Duration("duration", result.Duration),
	}
	if result.Failed > 0 {
		summary = append(summary, logging.Alert("extraction_failures"))
	}
	logger.Info("pipeline run completed", logging.Args(summary...)...)
	if result.Published != nil {
		r.notify(ctx, logger, notifications.EventModelPublished, notifications.Payload{
			"uri":   result.Published.URI(),
			"files": result.Published.Files,
		})
	}
	r.notify(ctx, logger, notifications.EventRunCompleted, notifications.Payload{
		"runID":    result.RunID,
		"stored":   result.Stored,
		"failed":   result.Failed,
		"total":    result.Statistics.TotalCount,
		"duration": result.Duration,
	})
	return result, nil
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run outcome was not announced"),
		)
	}
}

func (r *Runner) download(ctx context.Context) (dataset.Summary, error) {
	downloader := &dataset.Downloader{
		Client:      r.httpClient,
		BaseURL:     r.cfg.Dataset.BaseURL,
		Classes:     r.cfg.Dataset.Classes,
		PerClass:    r.cfg.Dataset.ImagesPerClass,
		Concurrency: r.cfg.Dataset.Concurrency,
		DataDir:     r.cfg.Paths.DataDir,
		Progress:    r.progress,
		Logger:      r.logger,
	}
	summary, err := downloader.Download(ctx)
	if err != nil {
		return summary, fmt.Errorf("download dataset: %w", err)
	}
	return summary, nil
}

// runLogger tees the pipeline logger into a per-run JSON file. Failing to
// create the file only costs the extra copy.
func (r *Runner) runLogger(ctx context.Context, runID string, result *Result) (*slog.Logger, io.Closer) {
	base := logging.WithContext(ctx, r.logger)
	path := logs.RunLogPath(r.cfg.Paths.LogDir, runID)
	fileLogger, closer, err := logging.NewFileLogger(path, r.cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(base, "run log unavailable", "run_log_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run details are only in the main log"),
		)
		return base, nil
	}
	result.LogPath = path
	fileLogger = logging.WithContext(ctx, logging.NewComponentLogger(fileLogger, "pipeline"))
	return logging.TeeLogger(base, fileLogger), closer
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, run *tracking.Run, opts Options, result *Result) error {
	classes := r.cfg.Dataset.Classes
	perClass := r.cfg.Training.FeatureSamplesPerClass
	if err := run.LogParams(ctx, map[string]any{
		"experiment":                run.Experiment,
		"classes":                   classes,
		"feature_samples_per_class": perClass,
		"data_dir":                  r.cfg.Paths.DataDir,
		"feature_store_backend":     r.store.Backend().Name(),
	}); err != nil {
		return err
	}
	if result.Download != nil {
		if err := run.LogMetric(ctx, "dataset_downloaded", float64(result.Download.Total.Downloaded), 0); err != nil {
			return err
		}
		if err := run.LogMetric(ctx, "dataset_failed", float64(result.Download.Total.Failed), 0); err != nil {
			return err
		}
	}

	for _, class := range classes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.extractClass(logging.WithLabel(ctx, class), logger, run.ID, class, perClass, result); err != nil {
			return err
		}
	}

	stats := r.store.Statistics()
	result.Statistics = stats
	if err := r.logStatistics(ctx, run, stats, result); err != nil {
		return err
	}

	if strings.TrimSpace(opts.ModelDir) != "" {
		r.publish(ctx, logger, run, opts, result)
	}
	return nil
}

func (r *Runner) extractClass(ctx context.Context, logger *slog.Logger, runID, class string, limit int, result *Result) error {
	classLogger := logging.WithContext(ctx, logger)
	if limit <= 0 {
		return nil
	}
	paths, err := dataset.ListImages(r.cfg.Paths.DataDir, class, limit)
	if err != nil {
		return fmt.Errorf("list %s images: %w", class, err)
	}
	if len(paths) == 0 {
		logging.WarnWithContext(classLogger, "no images found for class", "class_empty",
			logging.String("dir", filepath.Join(r.cfg.Paths.DataDir, class)),
			logging.String(logging.FieldErrorHint, "run with --download or check paths.data_dir"),
			logging.String(logging.FieldImpact, "class has no stored features"),
		)
		return nil
	}

	metadata := map[string]string{"run_id": runID}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Processed++
		attrs := features.ExtractWithLogger(path, classLogger)
		if len(attrs) == 0 {
			result.Skipped++
			continue
		}
		if err := r.store.Upsert(path, class, attrs, metadata); err != nil {
			result.Failed++
			logging.WarnWithContext(classLogger, "feature upsert failed", "feature_upsert_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check feature_store_dir permissions and disk space"),
				logging.String(logging.FieldImpact, "image features were not stored"),
			)
			continue
		}
		result.Stored++
		classLogger.Debug("features stored",
			logging.EventType("feature_upserted"),
			logging.ImageHash(featurestore.Key(path)),
			logging.String("path", path),
		)
	}
	return nil
}

func (r *Runner) logStatistics(ctx context.Context, run *tracking.Run, stats featurestore.Statistics, result *Result) error {
	metrics := map[string]float64{
		"feature_store_total": float64(stats.TotalCount),
		"features_processed":  float64(result.Processed),
		"features_stored":     float64(result.Stored),
		"features_skipped":    float64(result.Skipped),
		"features_failed":     float64(result.Failed),
	}
	for label, count := range stats.CountsByLabel {
		metrics["feature_store_count_"+label] = float64(count)
	}
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := run.LogMetric(ctx, key, metrics[key], 0); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, run *tracking.Run, opts Options, result *Result) {
	if r.publisher == nil {
		logging.WarnWithContext(logger, "model publish skipped", "model_publish_skipped",
			logging.String("model_dir", opts.ModelDir),
			logging.String(logging.FieldErrorHint, "set object_storage.enabled = true to publish models"),
			logging.String(logging.FieldImpact, "model stays local"),
		)
		return
	}
	modelID := strings.TrimSpace(opts.ModelID)
	if modelID == "" {
		modelID = run.ID
	}
	published, err := r.publisher.PublishModel(ctx, opts.ModelDir, r.cfg.Training.ModelName, modelID)
	if err != nil {
		result.PublishErr = err.Error()
		logging.WarnWithContext(logger, "model publish failed", "model_publish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run finished without a published model"),
		)
		return
	}
	result.Published = &published
	if err := run.LogParam(ctx, "s3_model_path", published.Prefix); err != nil {
		logging.WarnWithContext(logger, "failed to record model path", "tracking_param_failed",
			logging.Error(err),
		)
	}
}
