// Package sqliteadapter implements storage.Adapter on top of SQLite,
// generalizing the connection-lifecycle and statement patterns of the
// teacher's internal/database package to an arbitrary, dynamically
// registered set of tables. Each logical table is backed by one
// physical SQLite table holding a primary key column and a JSON blob
// column, since row shapes are schema-on-read rather than fixed SQL
// columns.
package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"

	"github.com/kvquery/kvquery/internal/logging"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

var log = logging.GetLogger("sqliteadapter")

// Adapter is a storage.Adapter backed by a SQLite database file.
type Adapter struct {
	path string

	mu       sync.RWMutex
	db       *sql.DB
	numeric  map[string]bool
	nextID   map[string]int64
	pkColumn map[string]string // table name -> field Write stamps the pk under
}

// New creates an adapter that will open path on Connect. path may be
// ":memory:" for an ephemeral, process-local database.
func New(path string) *Adapter {
	return &Adapter{
		path:     path,
		numeric:  make(map[string]bool),
		nextID:   make(map[string]int64),
		pkColumn: make(map[string]string),
	}
}

var _ storage.Adapter = (*Adapter)(nil)

// Connect opens the database file and applies pragmas for reasonable
// embedded-engine defaults.
func (a *Adapter) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite3", a.path)
	if err != nil {
		return fmt.Errorf("sqliteadapter: open %s: %w", a.path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		log.Warn("failed to set WAL mode", "error", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		log.Warn("failed to enable foreign keys", "error", err)
	}
	a.db = db
	return nil
}

// Disconnect closes the underlying database handle.
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// MakeTable creates the physical table backing a logical table name.
// schema may carry a "numeric" bool indicating whether the primary key
// is numeric (enabling range arithmetic) or a string (UUID-assigned),
// and a "pkColumn" string naming the field Write stamps the pk under,
// defaulting to "id" when absent.
func (a *Adapter) MakeTable(ctx context.Context, name string, schema interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	numeric := true
	pkColumn := "id"
	if cfg, ok := schema.(map[string]interface{}); ok {
		if n, ok := cfg["numeric"].(bool); ok {
			numeric = n
		}
		if c, ok := cfg["pkColumn"].(string); ok && c != "" {
			pkColumn = c
		}
	}
	a.numeric[name] = numeric
	a.pkColumn[name] = pkColumn

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (pk TEXT PRIMARY KEY, pk_num REAL, data TEXT NOT NULL)`,
		quoteIdent(name),
	)
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqliteadapter: create table %s: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (pk_num)`,
		quoteIdent("idx_"+name+"_pk_num"), quoteIdent(name))
	if _, err := a.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("sqliteadapter: create index on %s: %w", name, err)
	}
	return nil
}

func (a *Adapter) isNumeric(name string) bool {
	if n, ok := a.numeric[name]; ok {
		return n
	}
	return true
}

func (a *Adapter) pkCol(name string) string {
	if c, ok := a.pkColumn[name]; ok && c != "" {
		return c
	}
	return "id"
}

// Write upserts row under pk, assigning one if pk is nil.
func (a *Adapter) Write(ctx context.Context, name string, pk interface{}, row value.Row) (value.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureTableLocked(ctx, name); err != nil {
		return nil, err
	}

	row = value.CloneRow(row)
	if row == nil {
		row = value.Row{}
	}

	numeric := a.isNumeric(name)
	if pk == nil {
		if numeric {
			next, err := a.nextNumericPKLocked(ctx, name)
			if err != nil {
				return nil, err
			}
			pk = float64(next)
		} else {
			pk = uuid.NewString()
		}
	}
	row[a.pkCol(name)] = pk

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("sqliteadapter: marshal row: %w", err)
	}

	var pkNum interface{}
	if n, ok := asFloat(pk); ok {
		pkNum = n
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (pk, pk_num, data) VALUES (?, ?, ?)
		 ON CONFLICT(pk) DO UPDATE SET data=excluded.data, pk_num=excluded.pk_num`,
		quoteIdent(name),
	)
	if _, err := a.db.ExecContext(ctx, stmt, value.Stringify(pk), pkNum, string(data)); err != nil {
		return nil, fmt.Errorf("sqliteadapter: write %s: %w", name, err)
	}

	return value.CloneRow(row), nil
}

func (a *Adapter) ensureTableLocked(ctx context.Context, name string) error {
	if _, ok := a.numeric[name]; ok {
		return nil
	}
	a.numeric[name] = true
	a.pkColumn[name] = "id"
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (pk TEXT PRIMARY KEY, pk_num REAL, data TEXT NOT NULL)`,
		quoteIdent(name),
	)
	_, err := a.db.ExecContext(ctx, ddl)
	return err
}

func (a *Adapter) nextNumericPKLocked(ctx context.Context, name string) (int64, error) {
	row := a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(pk_num), 0) FROM %s`, quoteIdent(name)))
	var max float64
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("sqliteadapter: next pk for %s: %w", name, err)
	}
	return int64(max) + 1, nil
}

// Read fetches a single row by primary key.
func (a *Adapter) Read(ctx context.Context, name string, pk interface{}) (value.Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	row := a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE pk = ?`, quoteIdent(name)), value.Stringify(pk))
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		if isNoSuchTable(err) {
			return nil, storage.ErrNoTable
		}
		return nil, fmt.Errorf("sqliteadapter: read %s: %w", name, err)
	}
	return decodeRow(data)
}

// isNoSuchTable reports whether err is SQLite's "no such table" error,
// the condition under which callers expect storage.ErrNoTable rather
// than a wrapped driver error.
func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// BatchRead fetches multiple rows by primary key in one query.
func (a *Adapter) BatchRead(ctx context.Context, name string, pks []interface{}) ([]value.Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(pks) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(pks))
	args := make([]interface{}, len(pks))
	for i, pk := range pks {
		placeholders[i] = "?"
		args[i] = value.Stringify(pk)
	}
	q := fmt.Sprintf(`SELECT data FROM %s WHERE pk IN (%s)`, quoteIdent(name), strings.Join(placeholders, ","))
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqliteadapter: batch read %s: %w", name, err)
	}
	defer rows.Close()

	out := make([]value.Row, 0, len(pks))
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqliteadapter: scan batch read %s: %w", name, err)
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RangeRead scans rows between fromKey and toKey in primary-key order
// when usePK is set, invoking visit for each row.
func (a *Adapter) RangeRead(ctx context.Context, name string, fromKey, toKey interface{}, usePK bool, visit storage.VisitFunc) error {
	a.mu.RLock()
	var (
		rows *sql.Rows
		err  error
	)
	if usePK && a.isNumeric(name) {
		q := fmt.Sprintf(`SELECT data FROM %s WHERE 1=1`, quoteIdent(name))
		var args []interface{}
		if fromN, ok := asFloat(fromKey); ok {
			q += ` AND pk_num >= ?`
			args = append(args, fromN)
		}
		if toN, ok := asFloat(toKey); ok {
			q += ` AND pk_num < ?`
			args = append(args, toN)
		}
		q += ` ORDER BY pk_num ASC`
		rows, err = a.db.QueryContext(ctx, q, args...)
	} else {
		rows, err = a.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s`, quoteIdent(name)))
	}
	a.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("sqliteadapter: range read %s: %w", name, err)
	}
	defer rows.Close()

	idx := 0
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("sqliteadapter: scan range read %s: %w", name, err)
		}
		row, err := decodeRow(data)
		if err != nil {
			return err
		}
		cont, err := visit(row, idx)
		if err != nil {
			return err
		}
		idx++
		if !cont {
			break
		}
	}
	return rows.Err()
}

// Delete removes a row by primary key.
func (a *Adapter) Delete(ctx context.Context, name string, pk interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.numeric[name]; !ok {
		return nil
	}
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE pk = ?`, quoteIdent(name)), value.Stringify(pk))
	if err != nil {
		return fmt.Errorf("sqliteadapter: delete %s: %w", name, err)
	}
	return nil
}

// Drop removes the entire physical table.
func (a *Adapter) Drop(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.numeric, name)
	delete(a.pkColumn, name)
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(name)))
	if err != nil {
		return fmt.Errorf("sqliteadapter: drop %s: %w", name, err)
	}
	return nil
}

// GetIndex returns every primary key in the table, or just the row
// count when lengthOnly is set.
func (a *Adapter) GetIndex(ctx context.Context, name string, lengthOnly bool) ([]interface{}, int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.numeric[name]; !ok {
		return nil, 0, nil
	}

	if lengthOnly {
		row := a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name)))
		var n int
		if err := row.Scan(&n); err != nil {
			return nil, 0, fmt.Errorf("sqliteadapter: count %s: %w", name, err)
		}
		return nil, n, nil
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT pk FROM %s`, quoteIdent(name)))
	if err != nil {
		return nil, 0, fmt.Errorf("sqliteadapter: get index %s: %w", name, err)
	}
	defer rows.Close()

	var out []interface{}
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, 0, fmt.Errorf("sqliteadapter: scan get index %s: %w", name, err)
		}
		if n, ok := parseFloat(pk); ok {
			out = append(out, n)
		} else {
			out = append(out, pk)
		}
	}
	return out, len(out), rows.Err()
}

// Destroy drops every table the adapter has created and forgets its
// bookkeeping; it does not remove the underlying database file.
func (a *Adapter) Destroy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name := range a.numeric {
		if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(name))); err != nil {
			return fmt.Errorf("sqliteadapter: destroy %s: %w", name, err)
		}
	}
	a.numeric = make(map[string]bool)
	a.pkColumn = make(map[string]string)
	return nil
}

func decodeRow(data string) (value.Row, error) {
	var row value.Row
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, fmt.Errorf("sqliteadapter: decode row: %w", err)
	}
	return row, nil
}

func asFloat(x interface{}) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	var f float64
	n, err := fmt.Sscanf(s, "%g", &f)
	if err != nil || n != 1 {
		return 0, false
	}
	return f, true
}
