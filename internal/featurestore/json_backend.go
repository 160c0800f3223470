package featurestore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	jsonFileName     = "features.json"
	jsonZstdFileName = "features.json.zst"
)

// JSONBackend stores the table as a tabular JSON document:
//
//	{"columns": [...], "rows": [{"image_hash": ..., "width": 224, ...}]}
//
// Rows are flat and sparse; absent attributes are simply omitted. Floats are
// always written with a fraction or exponent so they decode back as float64,
// while integers decode as int64.
type JSONBackend struct {
	dir      string
	compress bool
	now      func() time.Time
}

// NewJSONBackend returns a backend writing features.json (or
// features.json.zst when compress is true) under dir.
func NewJSONBackend(dir string, compress bool) *JSONBackend {
	return &JSONBackend{dir: dir, compress: compress, now: time.Now}
}

func (b *JSONBackend) Name() string { return "json" }

// Path returns the feature file location.
func (b *JSONBackend) Path() string {
	if b.compress {
		return filepath.Join(b.dir, jsonZstdFileName)
	}
	return filepath.Join(b.dir, jsonFileName)
}

func (b *JSONBackend) Load() ([]Record, error) {
	file, err := os.Open(b.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open features file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if b.compress {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("%w: open zstd stream: %w", ErrSerialize, err)
		}
		defer dec.Close()
		reader = dec
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read features file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return decodeDocument(data)
}

func (b *JSONBackend) Save(records []Record) error {
	var buf bytes.Buffer
	if err := encodeDocument(&buf, records); err != nil {
		return err
	}
	err := writeFileAtomic(b.Path(), func(f *os.File) error {
		if !b.compress {
			_, err := f.Write(buf.Bytes())
			return err
		}
		enc, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("open zstd writer: %w", err)
		}
		if _, err := enc.Write(buf.Bytes()); err != nil {
			_ = enc.Close()
			return fmt.Errorf("compress features: %w", err)
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(b.Path()), err)
	}
	return writeDescriptor(b.dir, records, b.now())
}

type jsonDocument struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func encodeDocument(w io.Writer, records []Record) error {
	columns, err := json.Marshal(columnsFor(records))
	if err != nil {
		return fmt.Errorf("%w: encode columns: %w", ErrSerialize, err)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(`{"columns":`)
	bw.Write(columns)
	bw.WriteString(`,"rows":[`)
	var row bytes.Buffer
	for i, rec := range records {
		row.Reset()
		if err := encodeRow(&row, rec); err != nil {
			return err
		}
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString("\n")
		bw.Write(row.Bytes())
	}
	if len(records) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]}\n")
	return bw.Flush()
}

func encodeRow(buf *bytes.Buffer, rec Record) error {
	buf.WriteByte('{')
	writeField := func(first bool, name string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	quote := func(s string) []byte {
		out, _ := json.Marshal(s)
		return out
	}

	writeField(true, ColumnImageHash, quote(rec.Key))
	writeField(false, ColumnImagePath, quote(rec.SourcePath))
	writeField(false, ColumnLabel, quote(rec.Label))
	writeField(false, ColumnTimestamp, quote(rec.CapturedAt.UTC().Format(time.RFC3339Nano)))
	for _, name := range sortedAttributeNames(rec.Attributes) {
		value, err := encodeScalar(rec.Attributes[name])
		if err != nil {
			return fmt.Errorf("%w: record %s attribute %q: %w", ErrSerialize, rec.Key, name, err)
		}
		writeField(false, name, value)
	}
	if rec.Metadata != nil {
		writeField(false, ColumnMetadata, quote(string(rec.Metadata)))
	}
	buf.WriteByte('}')
	return nil
}

func encodeScalar(value any) ([]byte, error) {
	switch v := value.(type) {
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite float %v", v)
		}
		return []byte(formatFloat(v)), nil
	case string:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// formatFloat renders f so a reader can tell it apart from an integer.
func formatFloat(f float64) string {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func decodeDocument(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc jsonDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parse features document: %w", ErrSerialize, err)
	}
	records := make([]Record, 0, len(doc.Rows))
	for i, row := range doc.Rows {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrSerialize, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRow(row map[string]any) (Record, error) {
	rec := Record{Attributes: Attributes{}}
	for name, raw := range row {
		if raw == nil {
			continue
		}
		switch name {
		case ColumnImageHash, ColumnImagePath, ColumnLabel, ColumnTimestamp:
			s, ok := raw.(string)
			if !ok {
				return Record{}, fmt.Errorf("column %q: expected string, got %T", name, raw)
			}
			if err := setFixedColumn(&rec, name, s); err != nil {
				return Record{}, err
			}
		case ColumnMetadata:
			meta, err := decodeMetadataCell(raw)
			if err != nil {
				return Record{}, err
			}
			rec.Metadata = meta
		default:
			value, err := decodeScalar(raw)
			if err != nil {
				return Record{}, fmt.Errorf("column %q: %w", name, err)
			}
			rec.Attributes[name] = value
		}
	}
	if rec.Key == "" {
		if rec.SourcePath == "" {
			return Record{}, errors.New("row has neither image_hash nor image_path")
		}
		rec.Key = Key(rec.SourcePath)
	}
	return rec, nil
}

func setFixedColumn(rec *Record, name, value string) error {
	switch name {
	case ColumnImageHash:
		rec.Key = value
	case ColumnImagePath:
		rec.SourcePath = value
	case ColumnLabel:
		rec.Label = value
	case ColumnTimestamp:
		if value == "" {
			return nil
		}
		ts, err := parseTimestamp(value)
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		rec.CapturedAt = ts
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	// Naive ISO timestamps (no zone) are read as UTC.
	ts, err := time.Parse("2006-01-02T15:04:05.999999999", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts.UTC(), nil
}

func decodeMetadataCell(raw any) (json.RawMessage, error) {
	if s, ok := raw.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, errors.New("metadata column is not valid JSON")
		}
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode metadata: %w", err)
	}
	return data, nil
}

func decodeScalar(raw any) (any, error) {
	switch v := raw.(type) {
	case json.Number:
		s := v.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %q: %w", s, err)
		}
		return f, nil
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}
