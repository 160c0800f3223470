package featurestore

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Fixed column names shared by every persisted representation.
const (
	ColumnImageHash = "image_hash"
	ColumnImagePath = "image_path"
	ColumnLabel     = "label"
	ColumnTimestamp = "timestamp"
	ColumnMetadata  = "metadata"
)

var reservedColumns = map[string]struct{}{
	ColumnImageHash: {},
	ColumnImagePath: {},
	ColumnLabel:     {},
	ColumnTimestamp: {},
	ColumnMetadata:  {},
}

// Attributes is a sparse bag of scalar features. Values are int64, float64,
// or string once accepted by the store.
type Attributes map[string]any

// Record is one row of the feature table.
type Record struct {
	Key        string          `json:"image_hash"`
	SourcePath string          `json:"image_path"`
	Label      string          `json:"label"`
	CapturedAt time.Time       `json:"timestamp"`
	Attributes Attributes      `json:"attributes"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Filter narrows Query results. Empty fields do not filter.
type Filter struct {
	SourcePath string
	Label      string
}

// Statistics summarizes the table.
type Statistics struct {
	TotalCount           int            `json:"total_count"`
	CountsByLabel        map[string]int `json:"counts_by_label"`
	MostRecentCapturedAt *time.Time     `json:"most_recent_timestamp"`
}

// Key returns the record key for a source path: the hex MD5 digest of the
// path string itself, not of the file contents.
func Key(sourcePath string) string {
	sum := md5.Sum([]byte(sourcePath))
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Attributes = r.Attributes.Clone()
	if r.Metadata != nil {
		out.Metadata = append(json.RawMessage(nil), r.Metadata...)
	}
	return out
}

// Clone returns a copy of the attribute bag. A nil bag clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// normalizeAttributes validates names and coerces values to int64, float64, or string.
func normalizeAttributes(attrs Attributes) (Attributes, error) {
	out := make(Attributes, len(attrs))
	for name, value := range attrs {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty name", ErrReservedAttribute)
		}
		if !utf8.ValidString(name) {
			return nil, fmt.Errorf("%w: name %q is not valid UTF-8", ErrUnsupportedAttribute, name)
		}
		if _, reserved := reservedColumns[name]; reserved {
			return nil, fmt.Errorf("%w: %q", ErrReservedAttribute, name)
		}
		normalized, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = normalized
	}
	return out, nil
}

func normalizeValue(value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedAttribute)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedAttribute, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedAttribute, f)
		}
		return f, nil
	case reflect.String:
		if !utf8.ValidString(rv.String()) {
			return nil, fmt.Errorf("%w: string %q is not valid UTF-8", ErrUnsupportedAttribute, rv.String())
		}
		return rv.String(), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAttribute, value)
	}
}

// encodeMetadata turns caller metadata into stored JSON. Raw JSON is accepted
// as-is after validation.
func encodeMetadata(metadata any) (json.RawMessage, error) {
	switch v := metadata.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if v == nil {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: metadata is not valid JSON", ErrSerialize)
		}
		return compactJSON(v)
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: metadata is not valid JSON", ErrSerialize)
		}
		return compactJSON(v)
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %w", ErrSerialize, err)
	}
	return data, nil
}

func compactJSON(data []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: compact metadata: %w", ErrSerialize, err)
	}
	return buf.Bytes(), nil
}

// columnsFor returns the column union for records: fixed columns first,
// attribute columns in first-seen order, metadata last when any record has it.
func columnsFor(records []Record) []string {
	columns := []string{ColumnImageHash, ColumnImagePath, ColumnLabel, ColumnTimestamp}
	seen := make(map[string]struct{})
	hasMetadata := false
	for _, rec := range records {
		for _, name := range sortedAttributeNames(rec.Attributes) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			columns = append(columns, name)
		}
		if rec.Metadata != nil {
			hasMetadata = true
		}
	}
	if hasMetadata {
		columns = append(columns, ColumnMetadata)
	}
	return columns
}

// AttributeColumns returns the attribute column union across records in
// persisted order.
func AttributeColumns(records []Record) []string {
	columns := columnsFor(records)
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		if _, reserved := reservedColumns[column]; !reserved {
			out = append(out, column)
		}
	}
	return out
}

func sortedAttributeNames(attrs Attributes) []string {
	return slices.Sorted(maps.Keys(attrs))
}
