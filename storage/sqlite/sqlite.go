// Package sqlite provides a relational storage backend on modernc.org/sqlite.
// Registers itself under the driver name "sqlite".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/storage"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

func init() {
	storage.Register("sqlite", func(cfg config.DatabaseSettings) (storage.Driver, error) {
		return Open(cfg.Path)
	})
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Driver persists collections as tables in one SQLite file.
type Driver struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Driver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	return &Driver{sqlDB: sqlDB}, nil
}

// Collection returns a Store bound to the named table.
func (d *Driver) Collection(name string) storage.Store {
	return &table{db: d.sqlDB, name: name}
}

// Exec runs a raw statement. SELECT statements return []storage.Record;
// everything else returns the affected row count.
func (d *Driver) Exec(ctx context.Context, statement string, args ...any) (any, error) {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT") {
		rows, err := d.sqlDB.QueryContext(ctx, statement, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRecords(rows)
	}

	res, err := d.sqlDB.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// Close closes the database handle.
func (d *Driver) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// table implements storage.Store over one SQLite table.
type table struct {
	db   *sql.DB
	name string
}

func (t *table) FindFirst(ctx context.Context, criteria storage.Criteria) (storage.Record, error) {
	if err := validIdentifier(t.name); err != nil {
		return nil, err
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", t.name, where)
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", t.name, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (t *table) Write(ctx context.Context, data storage.Record) (storage.Record, error) {
	if err := validIdentifier(t.name); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("sqlite: write requires at least one field")
	}

	columns := sortedKeys(data)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		if err := validIdentifier(col); err != nil {
			return nil, err
		}
		placeholders[i] = "?"
		args[i] = data[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, t.name)
		}
		return nil, fmt.Errorf("sqlite: insert into %s: %w", t.name, err)
	}

	created := data.Clone()
	if _, ok := created["id"]; !ok {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			created["id"] = id
		}
	}
	return created, nil
}

func (t *table) Update(ctx context.Context, data storage.Record, criteria storage.Criteria) (int64, error) {
	if err := validIdentifier(t.name); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("sqlite: update requires at least one field")
	}

	columns := sortedKeys(data)
	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		if err := validIdentifier(col); err != nil {
			return 0, err
		}
		assignments[i] = col + " = ?"
		args = append(args, data[col])
	}

	where, whereArgs, err := whereClause(criteria)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", t.name, strings.Join(assignments, ", "), where)
	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: update %s: %w", t.name, err)
	}
	return res.RowsAffected()
}

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("sqlite: invalid identifier %q", name)
	}
	return nil
}

func sortedKeys(data storage.Record) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func whereClause(criteria storage.Criteria) (string, []any, error) {
	if len(criteria.Where) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(criteria.Where))
	for field := range criteria.Where {
		if err := validIdentifier(field); err != nil {
			return "", nil, err
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, field := range fields {
		clauses[i] = field + " = ?"
		args[i] = criteria.Where[field]
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func scanRecords(rows *sql.Rows) ([]storage.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []storage.Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		rec := make(storage.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func isConstraintViolation(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT,
		sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
