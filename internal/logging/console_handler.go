package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders records for humans: one header line followed by an
// indented field list. Debug records list every field; info and above show a
// curated subset.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	entry := h.decode(record)

	var buf bytes.Buffer
	buf.Grow(256 + len(entry.fields)*32)
	entry.writeHeader(&buf, h.addSource)
	if entry.level < slog.LevelInfo {
		entry.writeAllFields(&buf)
	} else {
		entry.writeHighlights(&buf)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// consoleEntry is a record with component and subject lifted out of its fields.
type consoleEntry struct {
	ts        time.Time
	level     slog.Level
	component string
	subject   string
	message   string
	source    *slog.Source
	fields    []kv
}

func (h *prettyHandler) decode(record slog.Record) consoleEntry {
	entry := consoleEntry{
		ts:      record.Time,
		level:   record.Level,
		message: strings.TrimSpace(record.Message),
		source:  record.Source(),
	}
	if entry.ts.IsZero() {
		entry.ts = time.Now()
	}
	if entry.message == "" {
		entry.message = "(no message)"
	}

	collected := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		flattenAttr(&collected, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&collected, h.groups, attr)
		return true
	})

	var runID, label string
	entry.fields = make([]kv, 0, len(collected))
	for _, field := range lastValueWins(collected) {
		switch field.key {
		case FieldComponent:
			entry.component = attrString(field.value)
			continue
		case FieldRunID:
			runID = attrString(field.value)
		case FieldLabel:
			label = attrString(field.value)
		}
		entry.fields = append(entry.fields, field)
	}
	entry.subject = formatSubject(runID, label)
	return entry
}

func (e consoleEntry) writeHeader(buf *bytes.Buffer, addSource bool) {
	buf.WriteString(formatTimestamp(e.ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(e.level))
	if e.component != "" {
		fmt.Fprintf(buf, " [%s]", e.component)
	}
	if e.subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.subject)
	}
	buf.WriteString(" – ")
	buf.WriteString(e.message)
	if addSource && e.source != nil {
		fmt.Fprintf(buf, " [%s:%d]", filepath.Base(e.source.File), e.source.Line)
	}
	buf.WriteByte('\n')
}

func (e consoleEntry) writeAllFields(buf *bytes.Buffer) {
	for _, field := range e.fields {
		fmt.Fprintf(buf, "    %s: %s\n", field.key, formatValue(field.value))
	}
}

func (e consoleEntry) writeHighlights(buf *bytes.Buffer) {
	shown, hidden := selectInfoFields(e.fields, infoAttrLimit)
	for _, field := range shown {
		fmt.Fprintf(buf, "    - %s: %s\n", field.label, field.value)
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		fmt.Fprintf(buf, "    + %d more fields hidden\n", hidden)
	}
}

// formatSubject renders the run/label subject used in console headers,
// e.g. "Run 3f2a9c1b (dandelion)".
func formatSubject(runID, label string) string {
	runID = strings.TrimSpace(runID)
	label = strings.TrimSpace(label)
	if len(runID) > 8 {
		runID = runID[:8]
	}
	parts := make([]string, 0, 2)
	if runID != "" {
		parts = append(parts, "Run "+runID)
	}
	if label != "" {
		parts = append(parts, "("+label+")")
	}
	return strings.Join(parts, " ")
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.derive()
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	next := h.derive()
	next.groups = append(next.groups, name)
	return next
}

func (h *prettyHandler) derive() *prettyHandler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	next.groups = append([]string(nil), h.groups...)
	return &next
}

type kv struct {
	key   string
	value slog.Value
}

// lastValueWins keeps each key at its first position but with the value of
// its final occurrence. Empty keys are dropped.
func lastValueWins(fields []kv) []kv {
	latest := make(map[string]slog.Value, len(fields))
	for _, field := range fields {
		latest[field.key] = field.value
	}
	out := make([]kv, 0, len(latest))
	for _, field := range fields {
		value, pending := latest[field.key]
		if field.key == "" || !pending {
			continue
		}
		out = append(out, kv{key: field.key, value: value})
		delete(latest, field.key)
	}
	return out
}

// flattenAttr expands groups into dotted keys ("store.records").
func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	path := prefix
	if attr.Key != "" {
		path = append(append(make([]string, 0, len(prefix)+1), prefix...), attr.Key)
	}
	if value.Kind() == slog.KindGroup {
		for _, member := range value.Group() {
			flattenAttr(dst, path, member)
		}
		return
	}
	*dst = append(*dst, kv{key: strings.Join(path, "."), value: value})
}

func levelLabel(level slog.Level) string {
	for _, step := range []slog.Level{slog.LevelError, slog.LevelWarn, slog.LevelInfo} {
		if level >= step {
			return step.String()
		}
	}
	return slog.LevelDebug.String()
}
