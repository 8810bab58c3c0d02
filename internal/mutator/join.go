package mutator

import (
	"context"
	"fmt"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/value"
)

// join implements 4.5's join stage: nested loop over td (left) and
// spec.Table (right), types left/inner/right/outer/cross. A join query
// bypasses the row selector entirely (precedence rule 1 emits an empty
// seed), so both sides are read here via a full table scan.
func (m *Mutator) join(ctx context.Context, td *schema.TableDescriptor, spec *JoinSpec) ([]value.Row, error) {
	leftRows, err := m.fullScan(ctx, td.Name)
	if err != nil {
		return nil, fmt.Errorf("scan left table %s: %w", td.Name, err)
	}
	rightRows, err := m.fullScan(ctx, spec.Table)
	if err != nil {
		return nil, fmt.Errorf("scan right table %s: %w", spec.Table, err)
	}

	rightTD, _ := m.Registry.Table(spec.Table)

	if spec.Type == "cross" {
		var out []value.Row
		for _, l := range leftRows {
			for _, r := range rightRows {
				out = append(out, buildJoinedRow(td.Name, l, spec.Table, r))
			}
		}
		return out, nil
	}

	matchesCondition := func(l, r value.Row) (bool, error) {
		rightVal := value.Path(r, spec.Where.RightPath, false)
		leaf := &predicate.Leaf{Path: spec.Where.LeftPath, Op: spec.Where.Op, Value: rightVal}
		return predicate.Evaluate(predicate.Context{}, leaf, l, 0)
	}

	var out []value.Row
	rightMatched := make([]bool, len(rightRows))

	for _, l := range leftRows {
		matchedAny := false
		for ri, r := range rightRows {
			ok, err := matchesCondition(l, r)
			if err != nil {
				return nil, err
			}
			if ok {
				matchedAny = true
				rightMatched[ri] = true
				out = append(out, buildJoinedRow(td.Name, l, spec.Table, r))
			}
		}
		if !matchedAny && (spec.Type == "left" || spec.Type == "outer") {
			out = append(out, buildJoinedRowWithNulls(td.Name, l, spec.Table, rightTD))
		}
	}

	if spec.Type == "right" || spec.Type == "outer" {
		for ri, r := range rightRows {
			if !rightMatched[ri] {
				out = append(out, buildJoinedRowWithNullsLeft(td.Name, td, spec.Table, r))
			}
		}
	}

	return out, nil
}

func (m *Mutator) fullScan(ctx context.Context, table string) ([]value.Row, error) {
	var out []value.Row
	err := m.Adapter.RangeRead(ctx, table, nil, nil, true, func(row value.Row, _ int) (bool, error) {
		out = append(out, row)
		return true, nil
	})
	return out, err
}

// buildJoinedRow merges two rows for output and downstream evaluation:
// every column is available both bare (right side wins on collision,
// used with predicate.Context.IgnoreFirstSegment for WHERE/HAVING/
// orderBy/groupBy) and qualified as "table.column" (used by the
// default "*" projection, which per spec.md S6 must preserve those
// keys in the result).
func buildJoinedRow(leftName string, left value.Row, rightName string, right value.Row) value.Row {
	out := value.Row{}
	for k, v := range left {
		out[k] = v
		out[leftName+"."+k] = v
	}
	for k, v := range right {
		out[k] = v
		out[rightName+"."+k] = v
	}
	return out
}

func buildJoinedRowWithNulls(leftName string, left value.Row, rightName string, rightTD *schema.TableDescriptor) value.Row {
	out := value.Row{}
	for k, v := range left {
		out[k] = v
		out[leftName+"."+k] = v
	}
	nullRightColumns(out, rightName, rightTD)
	return out
}

func buildJoinedRowWithNullsLeft(leftName string, leftTD *schema.TableDescriptor, rightName string, right value.Row) value.Row {
	out := value.Row{}
	for k, v := range right {
		out[k] = v
		out[rightName+"."+k] = v
	}
	if leftTD != nil {
		out[leftTD.PKColumn] = nil
		out[leftName+"."+leftTD.PKColumn] = nil
		for _, c := range leftTD.Columns {
			out[c.Name] = nil
			out[leftName+"."+c.Name] = nil
		}
	}
	return out
}

func nullRightColumns(out value.Row, rightName string, rightTD *schema.TableDescriptor) {
	if rightTD == nil {
		return
	}
	out[rightTD.PKColumn] = nil
	out[rightName+"."+rightTD.PKColumn] = nil
	for _, c := range rightTD.Columns {
		out[c.Name] = nil
		out[rightName+"."+c.Name] = nil
	}
}
