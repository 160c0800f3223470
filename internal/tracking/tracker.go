package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"greenr/internal/logging"
	"greenr/internal/sqliteutil"
)

// Tracker manages run persistence backed by SQLite.
type Tracker struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for run and metric timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Open initializes or connects to the tracking database at path.
func Open(path string, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "tracking"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Close closes the underlying database connection.
func (t *Tracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Path returns the database location.
func (t *Tracker) Path() string {
	return t.path
}

// Run is a handle to an in-progress run.
type Run struct {
	tracker    *Tracker
	ID         string
	Experiment string
	StartedAt  time.Time
}

// StartRun creates a RUNNING run under experiment.
func (t *Tracker) StartRun(ctx context.Context, experiment string) (*Run, error) {
	experiment = strings.TrimSpace(experiment)
	if experiment == "" {
		return nil, errors.New("experiment name is required")
	}
	run := &Run{
		tracker:    t,
		ID:         uuid.NewString(),
		Experiment: experiment,
		StartedAt:  t.now(),
	}
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		_, execErr := t.db.ExecContext(ctx,
			"INSERT INTO runs (id, experiment, status, started_at) VALUES (?, ?, ?, ?)",
			run.ID, run.Experiment, StatusRunning, formatTime(run.StartedAt),
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	t.logger.Info("tracking run started",
		logging.EventType("run_started"),
		logging.RunID(run.ID),
		logging.String(logging.FieldExperiment, run.Experiment),
	)
	return run, nil
}

// LogParam records a parameter. Values are stringified; the last write for a
// key wins.
func (r *Run) LogParam(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("param key is required")
	}
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		_, execErr := r.tracker.db.ExecContext(ctx,
			`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)
             ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
			r.ID, key, stringifyParam(value),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("log param %s: %w", key, err)
	}
	return nil
}

// LogParams records several parameters in key order.
func (r *Run) LogParams(ctx context.Context, params map[string]any) error {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := r.LogParam(ctx, key, params[key]); err != nil {
			return err
		}
	}
	return nil
}

// LogMetric records one metric observation at step.
func (r *Run) LogMetric(ctx context.Context, key string, value float64, step int64) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("metric key is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("metric %s: value must be finite", key)
	}
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		_, execErr := r.tracker.db.ExecContext(ctx,
			"INSERT INTO metrics (run_id, key, value, step, logged_at) VALUES (?, ?, ?, ?, ?)",
			r.ID, key, value, step, formatTime(r.tracker.now()),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("log metric %s: %w", key, err)
	}
	return nil
}

// End marks the run FINISHED or FAILED.
func (r *Run) End(ctx context.Context, status Status) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var affected int64
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		res, execErr := r.tracker.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, ended_at = ? WHERE id = ?",
			status, formatTime(r.tracker.now()), r.ID,
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	r.tracker.logger.Info("tracking run ended",
		logging.EventType("run_ended"),
		logging.RunID(r.ID),
		logging.String(logging.FieldExperiment, r.Experiment),
		logging.String("status", string(status)),
	)
	return nil
}

// ListRuns returns runs newest first. An empty experiment lists every run.
// Params and metrics are not loaded; use GetRun for the details.
func (t *Tracker) ListRuns(ctx context.Context, experiment string) ([]RunInfo, error) {
	query := "SELECT id, experiment, status, started_at, ended_at FROM runs"
	var args []any
	if experiment = strings.TrimSpace(experiment); experiment != "" {
		query += " WHERE experiment = ?"
		args = append(args, experiment)
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its params and metrics.
func (t *Tracker) GetRun(ctx context.Context, id string) (RunInfo, error) {
	row := t.db.QueryRowContext(ctx,
		"SELECT id, experiment, status, started_at, ended_at FROM runs WHERE id = ?", id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunInfo{}, err
	}

	info.Params, err = t.loadParams(ctx, id)
	if err != nil {
		return RunInfo{}, err
	}
	info.Metrics, err = t.loadMetrics(ctx, id)
	if err != nil {
		return RunInfo{}, err
	}
	return info, nil
}

func (t *Tracker) loadParams(ctx context.Context, id string) (map[string]string, error) {
	rows, err := t.db.QueryContext(ctx, "SELECT key, value FROM params WHERE run_id = ? ORDER BY key", id)
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}
	defer rows.Close()

	params := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		params[key] = value
	}
	return params, rows.Err()
}

func (t *Tracker) loadMetrics(ctx context.Context, id string) ([]Metric, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT key, value, step, logged_at FROM metrics WHERE run_id = ? ORDER BY key, step, rowid", id)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()

	metrics := []Metric{}
	for rows.Next() {
		var (
			m        Metric
			loggedAt string
		)
		if err := rows.Scan(&m.Key, &m.Value, &m.Step, &loggedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if m.LoggedAt, err = parseTime(loggedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunInfo, error) {
	var (
		info      RunInfo
		status    string
		startedAt string
		endedAt   sql.NullString
	)
	if err := row.Scan(&info.ID, &info.Experiment, &status, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunInfo{}, err
		}
		return RunInfo{}, fmt.Errorf("scan run: %w", err)
	}
	info.Status = Status(status)
	started, err := parseTime(startedAt)
	if err != nil {
		return RunInfo{}, err
	}
	info.StartedAt = started
	if endedAt.Valid && endedAt.String != "" {
		ended, err := parseTime(endedAt.String)
		if err != nil {
			return RunInfo{}, err
		}
		info.EndedAt = &ended
	}
	return info, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func stringifyParam(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
