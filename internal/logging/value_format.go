package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// attrString renders v without quoting, for header fields like component.
func attrString(v slog.Value) string {
	return renderValue(v, false)
}

// formatValue renders v for a console field line.
func formatValue(v slog.Value) string {
	return renderValue(v, true)
}

func renderValue(v slog.Value, quote bool) string {
	v = v.Resolve()
	var text string
	switch v.Kind() {
	case slog.KindString:
		text = v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			text = err.Error()
		} else {
			text = fmt.Sprint(v.Any())
		}
	default:
		// bool, ints and durations have a stable unquoted String form
		return v.String()
	}
	if quote {
		return quoteIfNeeded(text)
	}
	return text
}

// formatBytes renders byte counts in SI units ("2.0 kB").
func formatBytes(n uint64) string {
	return humanize.Bytes(n)
}

const consoleTimeLayout = "2006-01-02 15:04:05"

// formatTimestamp renders ts in local time for console output.
func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// quoteIfNeeded quotes empty strings and anything with control characters or
// double quotes so console field values stay on one line.
func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
