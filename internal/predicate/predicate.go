// Package predicate evaluates WHERE/HAVING trees against rows. A tree
// is either a single Leaf or a flat List alternating Leaf values and
// logical connectives ("AND"/"OR").
package predicate

import (
	"fmt"

	"github.com/kvquery/kvquery/internal/value"
)

// Leaf is one predicate comparison: path OP value.
type Leaf struct {
	Path  string
	Op    string
	Value interface{}
}

// List is a flat sequence alternating Leaf and the strings "AND"/"OR",
// e.g. []interface{}{leaf1, "AND", leaf2, "OR", leaf3}.
type List []interface{}

// RowFunc is a user-supplied predicate function, used when WHERE or
// HAVING is a plain function instead of a leaf/list tree.
type RowFunc func(row value.Row, idx int) bool

// SearchResolver resolves a `search(col1,col2,...) op value` leaf to
// the set of primary keys that satisfy it. The row selector computes
// this once per such leaf (4.4.1) and hands the evaluator a resolver
// backed by that precomputed set so repeated evaluation (e.g. across a
// full scan) does not re-run tokenization per row.
type SearchResolver interface {
	Resolve(columns []string, op string, queryValue interface{}) (matchingPKs map[string]bool, err error)
}

// Context carries the collaborators the evaluator needs beyond the row
// itself.
type Context struct {
	Search             SearchResolver
	IgnoreFirstSegment bool // true when evaluating joined rows keyed "table.column"
	// PKColumn is the table's configured primary key field name, used
	// to read a row's pk for a search-leaf match lookup. Defaults to
	// "id" when unset, for callers with no table in scope.
	PKColumn string
}

// IsSearchPath reports whether path is a `search(...)` pseudo-path.
func IsSearchPath(path string) bool {
	return len(path) > len("search(") && path[:len("search(")] == "search(" && path[len(path)-1] == ')'
}

// SearchColumns parses the column list out of a `search(col1,col2)`
// pseudo-path.
func SearchColumns(path string) []string {
	inner := path[len("search(") : len(path)-1]
	if inner == "" {
		return nil
	}
	var cols []string
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			cols = append(cols, inner[start:i])
			start = i + 1
		}
	}
	return cols
}

// Evaluate evaluates expr (a *Leaf, a List, or a RowFunc) against row.
//
// A List evaluates left-to-right with AND short-circuit. If the list
// contains any "OR" connective, the evaluator instead runs a full pass
// evaluating every leaf and combines results per position — this is
// the resolved form of the spec's flagged "AND short-circuits even
// under an accumulated OR" ambiguity (see DESIGN.md Open Questions):
// whenever OR is present anywhere in the list, no leaf is
// short-circuited, so an early false under AND does not suppress a
// later true under OR.
func Evaluate(ctx Context, expr interface{}, row value.Row, idx int) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil
	case RowFunc:
		return e(row, idx), nil
	case *Leaf:
		return evalLeaf(ctx, e, row)
	case List:
		return evalList(ctx, e, row, idx)
	case []interface{}:
		return evalList(ctx, List(e), row, idx)
	default:
		return false, fmt.Errorf("predicate: unsupported expression type %T", expr)
	}
}

func evalList(ctx Context, list List, row value.Row, idx int) (bool, error) {
	if len(list) == 0 {
		return true, nil
	}

	hasOR := false
	for _, item := range list {
		if s, ok := item.(string); ok && s == "OR" {
			hasOR = true
			break
		}
	}

	if !hasOR {
		// Pure AND chain: short-circuit on first false.
		result := true
		for _, item := range list {
			if s, ok := item.(string); ok {
				if s != "AND" {
					return false, fmt.Errorf("predicate: unknown connective %q", s)
				}
				continue
			}
			ok, err := Evaluate(ctx, item, row, idx)
			if err != nil {
				return false, err
			}
			result = result && ok
			if !result {
				return false, nil
			}
		}
		return result, nil
	}

	// OR present: evaluate every leaf fully, then fold strictly left to
	// right, applying each connective as written (AND does not bind
	// tighter than OR).
	type evaluated struct {
		val  bool
		conn string // connective preceding this leaf ("" for the first)
	}
	var seq []evaluated
	conn := ""
	for _, item := range list {
		if s, ok := item.(string); ok {
			conn = s
			continue
		}
		ok, err := Evaluate(ctx, item, row, idx)
		if err != nil {
			return false, err
		}
		seq = append(seq, evaluated{val: ok, conn: conn})
		conn = ""
	}
	if len(seq) == 0 {
		return true, nil
	}
	result := seq[0].val
	for _, e := range seq[1:] {
		switch e.conn {
		case "OR":
			result = result || e.val
		default:
			result = result && e.val
		}
	}
	return result, nil
}

func evalLeaf(ctx Context, leaf *Leaf, row value.Row) (bool, error) {
	if IsSearchPath(leaf.Path) {
		return evalSearchLeaf(ctx, leaf, row)
	}

	left := value.Path(row, leaf.Path, ctx.IgnoreFirstSegment)
	return applyOp(left, leaf.Op, leaf.Value)
}

func evalSearchLeaf(ctx Context, leaf *Leaf, row value.Row) (bool, error) {
	if ctx.Search == nil {
		return false, fmt.Errorf("predicate: search leaf %q with no resolver in context", leaf.Path)
	}
	cols := SearchColumns(leaf.Path)
	matches, err := ctx.Search.Resolve(cols, leaf.Op, leaf.Value)
	if err != nil {
		return false, err
	}
	pkCol := ctx.PKColumn
	if pkCol == "" {
		pkCol = "id"
	}
	pk := row[pkCol]
	return matches[value.Stringify(pk)], nil
}
