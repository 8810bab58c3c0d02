package mutator

import (
	"sort"
	"strings"

	"github.com/kvquery/kvquery/internal/value"
)

// bucket is one groupBy bucket: its rows in sort order, and the stable
// key used to compute it.
type bucket struct {
	key  string
	rows []value.Row
}

// groupKeySep joins group-by column values before hashing them into a
// bucket key. Spec.md §9 open question #3 flags the original's plain
// "." concatenation as collision-prone (keys containing "." collide);
// the ASCII unit separator cannot occur in ordinary JSON-sourced
// column values, so it removes the collision risk while keeping the
// "simple concatenation" approach.
const groupKeySep = "\x1f"

// groupRows sorts rows by the groupBy column list (ascending, or
// descending for a column with Desc set), then buckets them by
// concatenated stringified keys, preserving first-seen bucket order.
func groupRows(rows []value.Row, cols []OrderColumn) []bucket {
	sorted := make([]value.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessByColumns(sorted[i], sorted[j], cols)
	})

	order := make([]string, 0)
	byKey := make(map[string]*bucket)
	for _, row := range sorted {
		key := groupKey(row, cols)
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key}
			byKey[key] = b
			order = append(order, key)
		}
		b.rows = append(b.rows, row)
	}

	out := make([]bucket, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func groupKey(row value.Row, cols []OrderColumn) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = value.Stringify(value.Path(row, c.Column, false))
	}
	return strings.Join(parts, groupKeySep)
}

func lessByColumns(a, b value.Row, cols []OrderColumn) bool {
	for _, c := range cols {
		av := value.Path(a, c.Column, false)
		bv := value.Path(b, c.Column, false)
		cmp := compareValues(av, bv)
		if cmp == 0 {
			continue
		}
		if c.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}
