// Package memadapter implements storage.Adapter entirely in memory. It
// is the reference adapter used by the engine's own test suite and a
// reasonable default for embedding in short-lived processes.
package memadapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

type table struct {
	rows     map[string]value.Row // keyed by stringified pk
	order    []string             // insertion order of keys, for stable scans
	numeric  bool
	nextID   float64
	pkColumn string // field name Write stamps the assigned/given pk under
}

// Adapter is an in-memory, map-backed storage.Adapter.
type Adapter struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{tables: make(map[string]*table)}
}

var _ storage.Adapter = (*Adapter)(nil)

func (a *Adapter) Connect(ctx context.Context) error    { return nil }
func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

// MakeTable creates the named table. schema may carry a "numeric" bool
// (pk arithmetic vs UUID assignment) and a "pkColumn" string naming the
// field Write stamps the pk under, defaulting to "id" when absent.
func (a *Adapter) MakeTable(ctx context.Context, name string, schema interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tables[name]; ok {
		return nil
	}
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
	a.tables[name] = &table{rows: make(map[string]value.Row), numeric: numeric, pkColumn: pkColumn}
	return nil
}

func (a *Adapter) ensureTable(name string) *table {
	t, ok := a.tables[name]
	if !ok {
		t = &table{rows: make(map[string]value.Row), numeric: true, pkColumn: "id"}
		a.tables[name] = t
	}
	return t
}

func (a *Adapter) Write(ctx context.Context, name string, pk interface{}, row value.Row) (value.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.ensureTable(name)
	row = value.CloneRow(row)

	if pk == nil {
		if t.numeric {
			t.nextID++
			pk = t.nextID
		} else {
			pk = uuid.NewString()
		}
	} else if n, ok := asFloat(pk); ok && n >= t.nextID {
		t.nextID = n
	}

	key := value.Stringify(pk)
	if row == nil {
		row = value.Row{}
	}
	row[t.pkColumn] = pk

	if _, exists := t.rows[key]; !exists {
		t.order = append(t.order, key)
	}
	t.rows[key] = row
	return value.CloneRow(row), nil
}

func (a *Adapter) Read(ctx context.Context, name string, pk interface{}) (value.Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.tables[name]
	if !ok {
		return nil, storage.ErrNoTable
	}
	row, ok := t.rows[value.Stringify(pk)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value.CloneRow(row), nil
}

func (a *Adapter) BatchRead(ctx context.Context, name string, pks []interface{}) ([]value.Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.tables[name]
	if !ok {
		return nil, storage.ErrNoTable
	}
	out := make([]value.Row, 0, len(pks))
	for _, pk := range pks {
		if row, ok := t.rows[value.Stringify(pk)]; ok {
			out = append(out, value.CloneRow(row))
		}
	}
	return out, nil
}

func (a *Adapter) RangeRead(ctx context.Context, name string, fromKey, toKey interface{}, usePK bool, visit storage.VisitFunc) error {
	a.mu.RLock()
	t, ok := a.tables[name]
	if !ok {
		a.mu.RUnlock()
		return storage.ErrNoTable
	}
	keys := make([]string, len(t.order))
	copy(keys, t.order)
	rows := make(map[string]value.Row, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	numeric := t.numeric
	a.mu.RUnlock()

	if usePK && numeric {
		sort.Slice(keys, func(i, j int) bool {
			return numericLess(keys[i], keys[j])
		})
	}

	fromN, fromOK := asFloat(fromKey)
	toN, toOK := asFloat(toKey)

	idx := 0
	for _, key := range keys {
		if usePK && numeric && fromOK {
			if kn, ok := asFloat(key); ok && kn < fromN {
				continue
			}
		}
		if usePK && numeric && toOK {
			if kn, ok := asFloat(key); ok && kn >= toN {
				continue
			}
		}
		row, ok := rows[key]
		if !ok {
			continue
		}
		cont, err := visit(value.CloneRow(row), idx)
		if err != nil {
			return err
		}
		idx++
		if !cont {
			return nil
		}
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, name string, pk interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tables[name]
	if !ok {
		return nil
	}
	key := value.Stringify(pk)
	if _, ok := t.rows[key]; !ok {
		return nil
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (a *Adapter) Drop(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tables, name)
	return nil
}

func (a *Adapter) GetIndex(ctx context.Context, name string, lengthOnly bool) ([]interface{}, int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.tables[name]
	if !ok {
		return nil, 0, nil
	}
	if lengthOnly {
		return nil, len(t.order), nil
	}
	out := make([]interface{}, 0, len(t.order))
	for _, key := range t.order {
		row := t.rows[key]
		out = append(out, row[t.pkColumn])
	}
	return out, len(out), nil
}

func (a *Adapter) Destroy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = make(map[string]*table)
	return nil
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

func numericLess(a, b string) bool {
	af, aok := parseFloatFast(a)
	bf, bok := parseFloatFast(b)
	if aok && bok {
		return af < bf
	}
	return a < b
}

func parseFloatFast(s string) (float64, bool) {
	var f float64
	n, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f)
	if err != nil || n != 1 {
		return 0, false
	}
	return f, true
}
