package tracking

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// ErrInvalidStatus is returned when a run is ended with a non-terminal status.
var ErrInvalidStatus = errors.New("invalid terminal status")

// IsTerminal reports whether s ends a run.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Metric is one logged metric observation.
type Metric struct {
	Key      string    `json:"key"`
	Value    float64   `json:"value"`
	Step     int64     `json:"step"`
	LoggedAt time.Time `json:"logged_at"`
}

// RunInfo is the persisted view of a run.
type RunInfo struct {
	ID         string            `json:"id"`
	Experiment string            `json:"experiment"`
	Status     Status            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Metrics    []Metric          `json:"metrics,omitempty"`
}

// Duration returns how long the run took, or has been running as of now.
func (r RunInfo) Duration(now time.Time) time.Duration {
	end := now
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	if end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// LatestMetrics returns the highest-step value of each metric key.
func (r RunInfo) LatestMetrics() map[string]float64 {
	latest := make(map[string]float64, len(r.Metrics))
	steps := make(map[string]int64, len(r.Metrics))
	for _, m := range r.Metrics {
		if step, ok := steps[m.Key]; ok && step > m.Step {
			continue
		}
		steps[m.Key] = m.Step
		latest[m.Key] = m.Value
	}
	return latest
}
