package mutator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kvquery/kvquery/internal/value"
)

var funcExprRE = regexp.MustCompile(`^(\w+)\((.*)\)(?:\s+AS\s+(\w+))?$`)

// selectExpr is one parsed actionArgs entry.
type selectExpr struct {
	isFunc bool
	fn     string
	args   []string
	column string // plain-column form
	alias  string
}

func parseSelectExpr(raw string) selectExpr {
	raw = strings.TrimSpace(raw)
	if m := funcExprRE.FindStringSubmatch(raw); m != nil {
		var args []string
		for _, a := range strings.Split(m[2], ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				args = append(args, a)
			}
		}
		alias := m[3]
		if alias == "" {
			alias = m[1]
		}
		return selectExpr{isFunc: true, fn: m[1], args: args, alias: alias}
	}
	return selectExpr{column: raw, alias: outputKey(raw)}
}

// outputKey derives the output column name for a plain-column
// projection. A qualified "table.column" join key (spec.md S6) or a
// bare column name is both used verbatim as the output key.
func outputKey(path string) string {
	return path
}

// project implements the actionArgs projection+functions stage. With
// no actionArgs, rows pass through unchanged (select *).
func (m *Mutator) project(rows []value.Row, buckets []bucket, actionArgs []string, hasGroupBy, hasJoin bool) ([]value.Row, error) {
	if len(actionArgs) == 0 {
		return rows, nil
	}

	exprs := make([]selectExpr, len(actionArgs))
	for i, raw := range actionArgs {
		exprs[i] = parseSelectExpr(raw)
	}

	if hasGroupBy {
		out := make([]value.Row, 0, len(buckets))
		for _, b := range buckets {
			row, err := m.projectOne(exprs, b.rows, representative(b.rows), hasJoin)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, nil
	}

	hasAggregate := false
	for _, e := range exprs {
		if e.isFunc {
			if kind, _, _, err := m.Functions.Lookup(e.fn); err == nil && kind == FuncAggregate {
				hasAggregate = true
				break
			}
		}
	}

	if hasAggregate {
		row, err := m.projectOne(exprs, rows, representative(rows), hasJoin)
		if err != nil {
			return nil, err
		}
		return []value.Row{row}, nil
	}

	out := make([]value.Row, 0, len(rows))
	for _, r := range rows {
		row, err := m.projectOne(exprs, rows, r, hasJoin)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func representative(rows []value.Row) value.Row {
	if len(rows) == 0 {
		return value.Row{}
	}
	return rows[0]
}

func (m *Mutator) projectOne(exprs []selectExpr, bucketRows []value.Row, row value.Row, hasJoin bool) (value.Row, error) {
	out := value.Row{}
	for _, e := range exprs {
		if e.column == "*" || strings.HasSuffix(e.column, ".*") {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		if !e.isFunc {
			out[e.alias] = value.Path(row, e.column, hasJoin)
			continue
		}
		kind, aggFn, scalarFn, err := m.Functions.Lookup(e.fn)
		if err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		switch kind {
		case FuncAggregate:
			out[e.alias] = aggFn(bucketRows, e.args)
		case FuncScalar:
			out[e.alias] = scalarFn(row, e.args)
		}
	}
	return out, nil
}
