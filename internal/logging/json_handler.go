package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// JSON log keys. Run logs written with these keys are parsed back by the
// logs package, so they must stay stable.
const (
	jsonTimeKey  = "ts"
	jsonLevelKey = "level"
)

func newJSONHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: rewriteJSONAttr,
	})
}

func rewriteJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String(jsonTimeKey, attr.Value.Time().UTC().Format(time.RFC3339))
		}
		attr.Key = jsonTimeKey
	case slog.LevelKey:
		return slog.String(jsonLevelKey, strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	default:
		// "1.5s" reads better than nanoseconds when tailing run logs
		if attr.Value.Kind() == slog.KindDuration {
			return slog.String(attr.Key, attr.Value.Duration().String())
		}
	}
	return attr
}
