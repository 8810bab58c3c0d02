package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/kvquery/kvquery/internal/fanout"
	"github.com/kvquery/kvquery/internal/mutator"
	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// Execute validates q and routes it to the select, upsert, delete,
// drop, describe, or show-tables path, or to the in-memory instance
// table path when q.Table is a literal row array.
func (e *Engine) Execute(ctx context.Context, q *Query) (*Result, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	if q.isInstanceTable() {
		return e.executeInstanceTable(q)
	}

	table, _ := q.tableName()

	switch q.Action {
	case ActionSelect:
		return e.executeSelect(ctx, table, q)
	case ActionUpsert:
		return e.executeUpsert(ctx, table, q)
	case ActionDelete:
		return e.executeDelete(ctx, table, q)
	case ActionDrop:
		return e.executeDrop(ctx, table)
	case ActionShowTables:
		return e.executeShowTables(), nil
	case ActionDescribe:
		return e.executeDescribe(table)
	default:
		return nil, &SchemaError{Op: string(q.Action), Reason: fmt.Sprintf("unknown action %q", q.Action)}
	}
}

// validate enforces the fatal schema-misuse rules: at most one of
// {where, range, trie}; join and orm are mutually exclusive; an
// instance table never carries join, orm, or trie.
func validate(q *Query) error {
	exclusive := 0
	if q.Where != nil {
		exclusive++
	}
	if q.Range != nil {
		exclusive++
	}
	if q.Trie != nil {
		exclusive++
	}
	if exclusive > 1 {
		return &SchemaError{Op: string(q.Action), Reason: "more than one of {where, range, trie} set"}
	}
	if q.Join != nil && len(q.ORM) > 0 {
		return &SchemaError{Op: string(q.Action), Reason: "join and orm cannot both be set"}
	}
	if q.isInstanceTable() && (q.Join != nil || len(q.ORM) > 0 || q.Trie != nil) {
		return &SchemaError{Op: string(q.Action), Reason: "join/orm/trie are not supported on an instance table"}
	}
	return nil
}

func (e *Engine) executeSelect(ctx context.Context, table string, q *Query) (*Result, error) {
	td, ok := e.Registry.Table(table)
	if !ok {
		return nil, &SchemaError{Op: "select", Reason: fmt.Sprintf("unknown table %q", table)}
	}

	cacheable := q.cacheable()
	var fp string
	if cacheable {
		var err error
		if fp, err = fingerprint(q); err != nil {
			cacheable = false
		} else if rows, hit := e.Cache.get(table, fp); hit {
			return &Result{Rows: rows}, nil
		}
	}

	rows, err := e.Selector.Select(ctx, td, selector.Options{
		Where:   q.Where,
		Range:   q.Range,
		Trie:    q.Trie,
		HasJoin: q.Join != nil,
	})
	if err != nil {
		return nil, &AdapterError{Table: table, Op: "select", Err: err}
	}

	actionArgs, _ := q.ActionArgs.([]string)
	rows, err = e.Mutator.Apply(ctx, td, rows, e.mutatorSpec(q, actionArgs))
	if err != nil {
		return nil, err
	}

	if cacheable {
		e.Cache.put(table, fp, rows)
	}
	return &Result{Rows: rows}, nil
}

func (e *Engine) mutatorSpec(q *Query, actionArgs []string) mutator.Spec {
	return mutator.Spec{
		Join:       q.Join,
		GroupBy:    q.GroupBy,
		ORM:        q.ORM,
		ActionArgs: actionArgs,
		Having:     q.Having,
		OrderBy:    q.OrderBy,
		Offset:     q.Offset,
		Limit:      q.Limit,
	}
}

func (e *Engine) executeUpsert(ctx context.Context, table string, q *Query) (*Result, error) {
	td, ok := e.Registry.Table(table)
	if !ok {
		return nil, &SchemaError{Op: "upsert", Reason: fmt.Sprintf("unknown table %q", table)}
	}
	patch, ok := q.ActionArgs.(value.Row)
	if !ok {
		return nil, &SchemaError{Op: "upsert", Reason: "actionArgs must be a row"}
	}

	var targets []value.Row
	if q.Where != nil {
		rows, err := e.Selector.Select(ctx, td, selector.Options{Where: q.Where})
		if err != nil {
			return nil, &AdapterError{Table: table, Op: "upsert-select", Err: err}
		}
		targets = rows
	} else {
		targets = []value.Row{value.CloneRow(patch)}
	}

	// Each target row runs its own {view local, write, index, orm sync,
	// view remote} sequence as a fanout.Chain, matching spec.md §5's
	// per-row ordering: every step must see the previous step's effect
	// on that row. Rows run one at a time, not fanned out with
	// fanout.All — two rows sharing a secondary-index bucket or a
	// remote back-reference array both read-modify-write the same
	// derived row, and the adapter's mutex only guards one call at a
	// time, not that whole sequence, so concurrent rows could lose an
	// update to each other.
	var affectedPKs []interface{}
	var affectedRows []value.Row

	for _, target := range targets {
		old, pk := e.existingRow(ctx, td, target)

		newRow := value.CloneRow(target)
		if q.Where != nil {
			for k, v := range patch {
				newRow[k] = v
			}
		}

		var written value.Row
		var assignedPK interface{}
		err := fanout.Chain(ctx,
			func(ctx context.Context) error {
				if err := e.ViewProj.ApplyLocal(ctx, td, old, newRow); err != nil {
					return &AdapterError{Table: table, Op: "upsert-view-local", Err: err}
				}
				return nil
			},
			func(ctx context.Context) error {
				w, err := e.Adapter.Write(ctx, table, pk, newRow)
				if err != nil {
					return &AdapterError{Table: table, Op: "upsert-write", Err: err}
				}
				written = w
				assignedPK = w[td.PKColumn]
				return nil
			},
			func(ctx context.Context) error {
				return e.IndexWriter.OnWrite(ctx, td, assignedPK, old, written)
			},
			func(ctx context.Context) error {
				if err := e.ORMSync.Sync(ctx, td, assignedPK, old, written); err != nil {
					return &AdapterError{Table: table, Op: "upsert-orm-sync", Err: err}
				}
				return nil
			},
			func(ctx context.Context) error {
				if err := e.ViewProj.PropagateRemote(ctx, td, assignedPK, written, false); err != nil {
					return &AdapterError{Table: table, Op: "upsert-view-remote", Err: err}
				}
				return nil
			},
		)
		if err != nil {
			return nil, err
		}

		affectedPKs = append(affectedPKs, assignedPK)
		affectedRows = append(affectedRows, written)
	}

	e.Cache.invalidate(table)
	return &Result{
		Message:        fmt.Sprintf("upserted %d row(s)", len(affectedRows)),
		AffectedRowPKs: affectedPKs,
		AffectedRows:   affectedRows,
	}, nil
}

func (e *Engine) existingRow(ctx context.Context, td *schema.TableDescriptor, target value.Row) (value.Row, interface{}) {
	pk, hasPK := target[td.PKColumn]
	if !hasPK || pk == nil {
		return nil, nil
	}
	old, err := e.Adapter.Read(ctx, td.Name, pk)
	if err != nil {
		return nil, pk
	}
	return old, pk
}

func (e *Engine) executeDelete(ctx context.Context, table string, q *Query) (*Result, error) {
	td, ok := e.Registry.Table(table)
	if !ok {
		return nil, &SchemaError{Op: "delete", Reason: fmt.Sprintf("unknown table %q", table)}
	}

	var targets []value.Row
	if q.Where != nil {
		rows, err := e.Selector.Select(ctx, td, selector.Options{Where: q.Where, Range: q.Range})
		if err != nil {
			return nil, &AdapterError{Table: table, Op: "delete-select", Err: err}
		}
		targets = rows
	} else if patch, ok := q.ActionArgs.(value.Row); ok {
		targets = []value.Row{patch}
	}

	var affectedPKs []interface{}
	var affectedRows []value.Row

	for _, target := range targets {
		pk, hasPK := target[td.PKColumn]
		if !hasPK || pk == nil {
			continue
		}
		old, err := e.Adapter.Read(ctx, table, pk)
		if err != nil {
			if err == storage.ErrNotFound || err == storage.ErrNoTable {
				continue
			}
			return nil, &AdapterError{Table: table, Op: "delete-read", Err: err}
		}

		err = fanout.Chain(ctx,
			func(ctx context.Context) error {
				return e.IndexWriter.OnDelete(ctx, td, pk, old)
			},
			func(ctx context.Context) error {
				if err := e.Adapter.Delete(ctx, table, pk); err != nil {
					return &AdapterError{Table: table, Op: "delete", Err: err}
				}
				return nil
			},
			func(ctx context.Context) error {
				if err := e.ORMSync.Sync(ctx, td, pk, old, nil); err != nil {
					return &AdapterError{Table: table, Op: "delete-orm-sync", Err: err}
				}
				return nil
			},
			func(ctx context.Context) error {
				if err := e.ViewProj.PropagateRemote(ctx, td, pk, nil, true); err != nil {
					return &AdapterError{Table: table, Op: "delete-view-remote", Err: err}
				}
				return nil
			},
		)
		if err != nil {
			return nil, err
		}

		affectedPKs = append(affectedPKs, pk)
		affectedRows = append(affectedRows, old)
	}

	e.Cache.invalidate(table)
	return &Result{
		Message:        fmt.Sprintf("deleted %d row(s)", len(affectedRows)),
		AffectedRowPKs: affectedPKs,
		AffectedRows:   affectedRows,
	}, nil
}

func (e *Engine) executeDrop(ctx context.Context, table string) (*Result, error) {
	if err := e.Adapter.Drop(ctx, table); err != nil {
		return nil, &AdapterError{Table: table, Op: "drop", Err: err}
	}
	e.Cache.invalidate(table)
	return &Result{Message: fmt.Sprintf("dropped table %q", table)}, nil
}

func (e *Engine) executeShowTables() *Result {
	tables := e.Registry.Tables()
	names := make([]string, 0, len(tables))
	for _, td := range tables {
		names = append(names, td.Name)
	}
	sort.Strings(names)
	rows := make([]value.Row, len(names))
	for i, name := range names {
		rows[i] = value.Row{"table": name}
	}
	return &Result{Rows: rows}
}

func (e *Engine) executeDescribe(table string) (*Result, error) {
	td, ok := e.Registry.Table(table)
	if !ok {
		return nil, &SchemaError{Op: "describe", Reason: fmt.Sprintf("unknown table %q", table)}
	}
	cols := make([]interface{}, len(td.Columns))
	for i, c := range td.Columns {
		cols[i] = map[string]interface{}{"name": c.Name, "type": c.Type, "default": c.Default}
	}
	row := value.Row{
		"table":     td.Name,
		"pkColumn":  td.PKColumn,
		"pkNumeric": td.PKNumeric,
		"columns":   cols,
	}
	return &Result{Rows: []value.Row{row}}, nil
}

// executeInstanceTable implements the in-memory path for a query
// whose "table" is a literal row array: select applies where/range
// only, upsert shallow-merges actionArgs into matching rows, delete
// filters them out, and drop is a no-op that returns nothing.
func (e *Engine) executeInstanceTable(q *Query) (*Result, error) {
	rows, _ := q.Table.([]value.Row)

	switch q.Action {
	case ActionSelect:
		matched, err := filterInstanceRows(rows, q.Where, q.Range)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: matched}, nil

	case ActionUpsert:
		patch, _ := q.ActionArgs.(value.Row)
		matched, err := filterInstanceRows(rows, q.Where, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range matched {
			for k, v := range patch {
				row[k] = v
			}
		}
		return &Result{Message: fmt.Sprintf("upserted %d row(s)", len(matched)), AffectedRows: matched}, nil

	case ActionDelete:
		var remaining, removed []value.Row
		for i, row := range rows {
			ok := true
			var err error
			if q.Where != nil {
				ok, err = predicate.Evaluate(predicate.Context{}, q.Where, row, i)
				if err != nil {
					return nil, err
				}
			}
			if ok {
				removed = append(removed, row)
			} else {
				remaining = append(remaining, row)
			}
		}
		return &Result{Rows: remaining, Message: fmt.Sprintf("deleted %d row(s)", len(removed)), AffectedRows: removed}, nil

	case ActionDrop:
		return &Result{}, nil

	default:
		return nil, &SchemaError{Op: string(q.Action), Reason: "unsupported action on an instance table"}
	}
}

func filterInstanceRows(rows []value.Row, where interface{}, rng []int) ([]value.Row, error) {
	matched := rows
	if where != nil {
		matched = nil
		for i, row := range rows {
			ok, err := predicate.Evaluate(predicate.Context{}, where, row, i)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, row)
			}
		}
	}
	if len(rng) == 2 {
		matched = applyInstanceRange(matched, rng[0], rng[1])
	}
	return matched, nil
}

func applyInstanceRange(rows []value.Row, limit, offset int) []value.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit < 0 {
		n := -limit
		if n > len(rows) {
			n = len(rows)
		}
		return rows[len(rows)-n:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
