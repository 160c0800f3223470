package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RetentionTarget names a directory of log files to prune. Pattern filters by
// base name. The KeepLatest newest matches survive regardless of age.
type RetentionTarget struct {
	Dir        string
	Pattern    string
	Exclude    []string
	KeepLatest int
}

// RetentionReport summarises a pruning pass.
type RetentionReport struct {
	Removed int
	Bytes   int64
	Failed  int
}

type logCandidate struct {
	path    string
	size    int64
	modTime time.Time
}

// CleanupOldLogs removes matching log files older than retentionDays.
// retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) RetentionReport {
	var report RetentionReport
	if retentionDays <= 0 {
		return report
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	skip := excludedPaths(targets)

	for _, target := range targets {
		candidates := collectCandidates(target, skip)
		// newest first so KeepLatest protects the most recent runs
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].modTime.After(candidates[j].modTime)
		})
		for idx, candidate := range candidates {
			if idx < target.KeepLatest || !candidate.modTime.Before(cutoff) {
				continue
			}
			if err := os.Remove(candidate.path); err != nil {
				report.Failed++
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", candidate.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			report.Removed++
			report.Bytes += candidate.size
			if logger != nil {
				logger.Debug("log pruned", String("path", candidate.path), EventType("log_pruned"))
			}
		}
	}

	if logger != nil && report.Removed > 0 {
		logger.Info("old logs pruned",
			EventType("log_retention_complete"),
			Int("removed", report.Removed),
			String("reclaimed", humanize.Bytes(uint64(report.Bytes))),
			Int("retention_days", retentionDays),
		)
	}
	return report
}

func excludedPaths(targets []RetentionTarget) map[string]struct{} {
	out := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			out[absOrSelf(path)] = struct{}{}
		}
	}
	return out
}

func collectCandidates(target RetentionTarget, skip map[string]struct{}) []logCandidate {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []logCandidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := absOrSelf(filepath.Join(dir, entry.Name()))
		if _, excluded := skip[path]; excluded {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, logCandidate{path: path, size: info.Size(), modTime: info.ModTime()})
	}
	return out
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
