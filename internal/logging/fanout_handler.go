package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanout delivers each record to every member handler that accepts its level.
type fanout []slog.Handler

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var live fanout
	for _, h := range handlers {
		switch h.(type) {
		case nil, NoopHandler:
			continue
		}
		live = append(live, h)
	}
	if len(live) == 0 {
		return NoopHandler{}
	}
	if len(live) == 1 {
		return live[0]
	}
	return live
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	last := len(f) - 1
	for i, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// handlers may retain attrs; only the final one may share the record
		rec := record
		if i != last {
			rec = record.Clone()
		}
		if err := h.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// TeeLogger duplicates log output from base into the handlers of extra.
// The pipeline uses it to mirror a run's logs into a per-run file.
func TeeLogger(base *slog.Logger, extra ...*slog.Logger) *slog.Logger {
	handlers := make([]slog.Handler, 0, len(extra)+1)
	for _, logger := range append([]*slog.Logger{base}, extra...) {
		if logger != nil {
			handlers = append(handlers, logger.Handler())
		}
	}
	return slog.New(newFanoutHandler(handlers...))
}
