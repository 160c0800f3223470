package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys are shown first, in this order, at info level and above.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"error",
	FieldErrorHint,
	FieldImpact,
	FieldImageHash,
	"image_path",
	"backend",
	"path",
	"class",
	"status",
	"total_count",
	"requested",
	"downloaded",
	"skipped",
	"failed",
	"extracted",
	"bucket",
	"model_path",
	"files",
	"duration",
}

// debugOnlyKeys never appear in info output; they remain in debug and JSON logs.
var debugOnlyKeys = map[string]struct{}{
	FieldExperiment: {},
	"attributes":    {},
	"columns":       {},
	"url":           {},
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if attr.key == FieldRunID || attr.key == FieldLabel {
			return
		}
		if _, debugOnly := debugOnlyKeys[attr.key]; debugOnly {
			hidden++
			return
		}
		if limit > 0 && len(result) >= limit {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: formatValueForKey(attr.key, attr.value)})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if strings.HasSuffix(key, "_bytes") {
		switch v.Kind() {
		case slog.KindInt64:
			if v.Int64() >= 0 {
				return formatBytes(uint64(v.Int64()))
			}
		case slog.KindUint64:
			return formatBytes(v.Uint64())
		}
	}
	return formatValue(v)
}

func displayLabel(key string) string {
	switch key {
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldImageHash:
		return "Image hash"
	}
	words := strings.Split(strings.ReplaceAll(key, ".", "_"), "_")
	for i, word := range words {
		if i == 0 && word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}
