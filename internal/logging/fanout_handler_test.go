package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil, NoopHandler{})
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerSingleHandlerUnwrapped(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerHandleRespectsLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled for debug")
	}

	logger := slog.New(h)
	logger.Debug("debug only")

	if infoBuf.Len() != 0 {
		t.Errorf("info handler should not receive debug records, got %q", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "debug only") {
		t.Errorf("debug handler missing record, got %q", debugBuf.String())
	}
}

func TestFanoutHandlerWithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h).With("run_id", "abc").WithGroup("stats")
	logger.Info("grouped", "count", 2)

	for i, out := range []string{buf1.String(), buf2.String()} {
		if !strings.Contains(out, `"run_id":"abc"`) {
			t.Errorf("handler %d missing attr: %q", i, out)
		}
		if !strings.Contains(out, `"stats":{"count":2}`) {
			t.Errorf("handler %d missing group: %q", i, out)
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))
	extra := slog.New(slog.NewJSONHandler(&teeBuf, nil))

	TeeLogger(base, extra, nil).Info("mirrored")

	if !strings.Contains(baseBuf.String(), "mirrored") {
		t.Errorf("base logger missing record: %q", baseBuf.String())
	}
	if !strings.Contains(teeBuf.String(), "mirrored") {
		t.Errorf("tee logger missing record: %q", teeBuf.String())
	}
}

func TestTeeLoggerNilBase(t *testing.T) {
	var teeBuf bytes.Buffer
	extra := slog.New(slog.NewJSONHandler(&teeBuf, nil))

	TeeLogger(nil, extra).Info("only tee")

	if !strings.Contains(teeBuf.String(), "only tee") {
		t.Errorf("tee logger missing record: %q", teeBuf.String())
	}
}
