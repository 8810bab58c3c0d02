// Package storage defines the uniform point/range key-value interface
// every backend adapter implements, and the row visitor contract used
// by range scans.
//
// This is the Go rendering of the spec's asynchronous adapter
// operations with completion callbacks: every operation here is
// synchronous and returns a context.Context-aware error instead. The
// engine suspends at each adapter call the same way the original
// suspends at each callback.
package storage

import (
	"context"
	"errors"

	"github.com/kvquery/kvquery/internal/value"
)

// ErrNotFound is returned by Read when no row exists for the given pk.
var ErrNotFound = errors.New("storage: row not found")

// ErrTableExists reports that a table is already present. The bundled
// adapters never return it: their MakeTable is a no-op for an existing
// table.
var ErrTableExists = errors.New("storage: table already exists")

// ErrNoTable is returned when an operation targets an unknown table.
var ErrNoTable = errors.New("storage: no such table")

// VisitFunc is called once per row during a range read. Returning
// false stops the scan early (the rendering of the spec's `next()`
// continuation / early-stop contract).
type VisitFunc func(row value.Row, idx int) (cont bool, err error)

// Adapter is the uniform interface the query engine consumes. Backends
// (in-memory, SQLite, or any other key-value store) implement it.
// Keys are either numeric (float64) or string; numeric-pk tables
// additionally support range arithmetic via RangeRead.
type Adapter interface {
	// Connect prepares the adapter for use (opening files, pools,
	// connections). Called once per process lifetime.
	Connect(ctx context.Context) error

	// Disconnect releases resources acquired by Connect without
	// destroying persisted data.
	Disconnect(ctx context.Context) error

	// MakeTable creates a table. schema is adapter-specific and may be
	// nil for adapters that do not need static schema information; the
	// bundled adapters accept a map with "numeric" (bool) and
	// "pkColumn" (string, defaulting to "id") keys.
	MakeTable(ctx context.Context, table string, schema interface{}) error

	// Write upserts row under pk. A nil pk means the adapter assigns
	// one (monotonically increasing or a UUID, adapter's choice), and
	// the returned row carries the assigned/given pk under the table's
	// configured pk column.
	Write(ctx context.Context, table string, pk interface{}, row value.Row) (value.Row, error)

	// Read fetches a single row by primary key. Returns ErrNotFound if
	// absent.
	Read(ctx context.Context, table string, pk interface{}) (value.Row, error)

	// BatchRead fetches multiple rows by primary key in one round
	// trip. Missing pks are simply omitted from the result.
	BatchRead(ctx context.Context, table string, pks []interface{}) ([]value.Row, error)

	// RangeRead scans rows between fromKey and toKey (inclusive of
	// fromKey, exclusive of toKey) in primary-key order if usePK is
	// true, or in the adapter's natural row order otherwise, invoking
	// visit for each row until it returns false or the range is
	// exhausted.
	RangeRead(ctx context.Context, table string, fromKey, toKey interface{}, usePK bool, visit VisitFunc) error

	// Delete removes a row by primary key. Deleting a missing row is
	// not an error.
	Delete(ctx context.Context, table string, pk interface{}) error

	// Drop removes an entire table and all of its rows.
	Drop(ctx context.Context, table string) error

	// GetIndex returns every primary key currently stored in table, or
	// just the count when lengthOnly is true (avoiding the cost of
	// materializing every key when only a count is needed, e.g. for
	// negative-limit range queries).
	GetIndex(ctx context.Context, table string, lengthOnly bool) ([]interface{}, int, error)

	// Destroy tears down the adapter, discarding all persisted data.
	Destroy(ctx context.Context) error
}
