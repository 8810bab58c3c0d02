// Package mutator implements the row mutator (C5): the fixed
// post-selection pipeline join -> groupBy -> orm -> actionArgs
// (projection+functions) -> having -> orderBy -> offset -> limit.
package mutator

import (
	"context"
	"fmt"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// OrderColumn is one column of a groupBy/orderBy clause.
type OrderColumn struct {
	Column string
	Desc   bool
}

// JoinCondition is the `[leftPath, op, rightPath]` triple a join
// predicate evaluates between the two tables' columns.
type JoinCondition struct {
	LeftPath  string
	Op        string
	RightPath string
}

// JoinSpec describes a join clause.
type JoinSpec struct {
	Type  string // left, inner, right, outer, cross
	Table string
	Where JoinCondition
}

// ORMSpec describes one ORM expansion clause.
type ORMSpec struct {
	Key     string
	Select  []string
	Where   interface{}
	Limit   int // 0 means the spec default of 5
	Offset  int
	OrderBy []OrderColumn
}

// Spec carries every post-selection clause of a query, in the fixed
// application order.
type Spec struct {
	Join       *JoinSpec
	GroupBy    []OrderColumn
	ORM        []ORMSpec
	ActionArgs []string
	Having     interface{} // *predicate.Leaf, predicate.List, or predicate.RowFunc
	OrderBy    []OrderColumn
	Offset     int
	Limit      int
}

// Mutator applies a Spec to a selected row set.
type Mutator struct {
	Adapter   storage.Adapter
	Registry  *schema.Registry
	Selector  *selector.Selector
	Functions *FunctionRegistry
}

// New builds a Mutator with the default function registry.
func New(adapter storage.Adapter, registry *schema.Registry, sel *selector.Selector) *Mutator {
	return &Mutator{Adapter: adapter, Registry: registry, Selector: sel, Functions: DefaultFunctions()}
}

// Apply runs rows (already produced by the row selector, or nil for a
// join query) through the fixed mutator pipeline for td.
func (m *Mutator) Apply(ctx context.Context, td *schema.TableDescriptor, rows []value.Row, spec Spec) ([]value.Row, error) {
	hasJoin := spec.Join != nil
	var err error

	if hasJoin {
		rows, err = m.join(ctx, td, spec.Join)
		if err != nil {
			return nil, fmt.Errorf("mutator: join: %w", err)
		}
	}

	var buckets []bucket
	hasGroupBy := len(spec.GroupBy) > 0
	if hasGroupBy {
		buckets = groupRows(rows, spec.GroupBy)
	}

	if len(spec.ORM) > 0 {
		if err := m.ormExpand(ctx, td, rows, spec.ORM); err != nil {
			return nil, fmt.Errorf("mutator: orm expansion: %w", err)
		}
	}

	rows, err = m.project(rows, buckets, spec.ActionArgs, hasGroupBy, hasJoin)
	if err != nil {
		return nil, fmt.Errorf("mutator: projection: %w", err)
	}

	if spec.Having != nil {
		rows, err = filterHaving(rows, spec.Having, hasJoin)
		if err != nil {
			return nil, fmt.Errorf("mutator: having: %w", err)
		}
	}

	if len(spec.OrderBy) > 0 {
		orderRows(rows, spec.OrderBy, hasJoin)
	}

	rows = applyOffsetLimit(rows, spec.Offset, spec.Limit)

	return rows, nil
}

func filterHaving(rows []value.Row, having interface{}, hasJoin bool) ([]value.Row, error) {
	ctx := predicate.Context{IgnoreFirstSegment: hasJoin}
	var out []value.Row
	for i, row := range rows {
		ok, err := predicate.Evaluate(ctx, having, row, i)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func applyOffsetLimit(rows []value.Row, offset, limit int) []value.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
