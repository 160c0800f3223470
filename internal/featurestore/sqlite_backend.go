package featurestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"greenr/internal/sqliteutil"
)

const (
	sqliteFileName  = "features.db"
	sqliteTableName = "features"
)

// SQLiteBackend stores the table in features.db. Attribute columns are
// declared without a type so each cell keeps its own storage class, which
// preserves the int/float distinction per value. The table is rebuilt inside
// one transaction on every save so its columns match the current records.
type SQLiteBackend struct {
	dir  string
	path string
	now  func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend returns a backend writing features.db under dir.
func NewSQLiteBackend(dir string) *SQLiteBackend {
	return &SQLiteBackend{dir: dir, path: filepath.Join(dir, sqliteFileName), now: time.Now}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Path returns the database location.
func (b *SQLiteBackend) Path() string { return b.path }

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *SQLiteBackend) handle() (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return b.db, nil
	}
	db, err := sqliteutil.Open(b.path)
	if err != nil {
		return nil, err
	}
	b.db = db
	return db, nil
}

// recreate closes any open handle and moves the unusable database aside;
// the next handle() creates a fresh one at the same path.
func (b *SQLiteBackend) recreate() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		_ = b.db.Close()
		b.db = nil
	}
	moved, err := sqliteutil.Quarantine(b.path, b.now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return moved, nil
}

// Load reads every row. A database SQLite reports as corrupt is moved aside
// so later saves start from a fresh file; the returned error names where it
// went.
func (b *SQLiteBackend) Load() ([]Record, error) {
	records, err := b.load()
	if err != nil && sqliteutil.IsCorrupt(err) {
		moved, qerr := b.recreate()
		if qerr != nil {
			return nil, fmt.Errorf("%w: %w (%w)", ErrSerialize, err, qerr)
		}
		return nil, fmt.Errorf("%w: unreadable database moved to %s: %w", ErrSerialize, moved, err)
	}
	return records, err
}

func (b *SQLiteBackend) load() ([]Record, error) {
	if _, err := os.Stat(b.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat features db: %w", err)
	}
	db, err := b.handle()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	exists, err := sqliteutil.TableExists(ctx, db, sqliteTableName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+sqliteTableName+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read feature columns: %w", err)
	}
	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		rec, err := recordFromSQLRow(columns, values)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrSerialize, len(records), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return records, nil
}

func recordFromSQLRow(columns []string, values []any) (Record, error) {
	rec := Record{Attributes: Attributes{}}
	for i, name := range columns {
		value := values[i]
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		if value == nil {
			continue
		}
		switch name {
		case ColumnImageHash, ColumnImagePath, ColumnLabel, ColumnTimestamp:
			s, ok := value.(string)
			if !ok {
				return Record{}, fmt.Errorf("column %q: expected text, got %T", name, value)
			}
			if err := setFixedColumn(&rec, name, s); err != nil {
				return Record{}, err
			}
		case ColumnMetadata:
			s, ok := value.(string)
			if !ok || !json.Valid([]byte(s)) {
				return Record{}, errors.New("metadata column is not valid JSON")
			}
			rec.Metadata = json.RawMessage(s)
		default:
			switch v := value.(type) {
			case int64, float64, string:
				rec.Attributes[name] = v
			default:
				return Record{}, fmt.Errorf("column %q: unsupported value type %T", name, value)
			}
		}
	}
	if rec.Key == "" {
		return Record{}, errors.New("row has no image_hash")
	}
	return rec, nil
}

func (b *SQLiteBackend) Save(records []Record) error {
	columns := columnsFor(records)
	if err := checkSQLiteColumns(columns); err != nil {
		return err
	}
	err := b.save(columns, records)
	if err != nil && sqliteutil.IsCorrupt(err) {
		if _, qerr := b.recreate(); qerr != nil {
			return qerr
		}
		err = b.save(columns, records)
	}
	if err != nil {
		return err
	}
	return writeDescriptor(b.dir, records, b.now())
}

func (b *SQLiteBackend) save(columns []string, records []Record) error {
	db, err := b.handle()
	if err != nil {
		return err
	}
	ctx := context.Background()
	return sqliteutil.RetryOnBusy(ctx, func() error {
		return b.rewrite(ctx, db, columns, records)
	})
}

func (b *SQLiteBackend) rewrite(ctx context.Context, db *sql.DB, columns []string, records []Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin features tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqliteTableName); err != nil {
		return fmt.Errorf("drop features table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(columns)); err != nil {
		return fmt.Errorf("create features table: %w", err)
	}

	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = sqliteutil.QuoteIdent(column)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqliteTableName, strings.Join(quoted, ", "), sqliteutil.Placeholders(len(columns))))
	if err != nil {
		return fmt.Errorf("prepare feature insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, rec := range records {
		for i, column := range columns {
			args[i] = sqlValue(rec, column)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert feature %s: %w", rec.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit features: %w", err)
	}
	return nil
}

func createTableSQL(columns []string) string {
	defs := make([]string, 0, len(columns))
	for _, column := range columns {
		switch column {
		case ColumnImageHash:
			defs = append(defs, sqliteutil.QuoteIdent(column)+" TEXT PRIMARY KEY")
		case ColumnImagePath, ColumnLabel, ColumnTimestamp:
			defs = append(defs, sqliteutil.QuoteIdent(column)+" TEXT NOT NULL")
		case ColumnMetadata:
			defs = append(defs, sqliteutil.QuoteIdent(column)+" TEXT")
		default:
			defs = append(defs, sqliteutil.QuoteIdent(column))
		}
	}
	return "CREATE TABLE " + sqliteTableName + " (" + strings.Join(defs, ", ") + ")"
}

func sqlValue(rec Record, column string) any {
	switch column {
	case ColumnImageHash:
		return rec.Key
	case ColumnImagePath:
		return rec.SourcePath
	case ColumnLabel:
		return rec.Label
	case ColumnTimestamp:
		return rec.CapturedAt.UTC().Format(time.RFC3339Nano)
	case ColumnMetadata:
		if rec.Metadata == nil {
			return nil
		}
		return string(rec.Metadata)
	default:
		value, ok := rec.Attributes[column]
		if !ok {
			return nil
		}
		return value
	}
}

// rowidAliases would shadow the implicit rowid that Load orders by.
var rowidAliases = map[string]struct{}{"rowid": {}, "oid": {}, "_rowid_": {}}

// checkSQLiteColumns rejects attribute names SQLite would treat as duplicates
// or as the row identifier.
func checkSQLiteColumns(columns []string) error {
	seen := make(map[string]string, len(columns))
	for _, column := range columns {
		folded := strings.ToLower(column)
		if _, alias := rowidAliases[folded]; alias {
			return fmt.Errorf("%w: %q is a row identifier in the sqlite backend", ErrReservedAttribute, column)
		}
		if prev, ok := seen[folded]; ok {
			return fmt.Errorf("%w: columns %q and %q differ only by case", ErrSerialize, prev, column)
		}
		seen[folded] = column
	}
	return nil
}
