package mutator

import (
	"sort"

	"github.com/kvquery/kvquery/internal/value"
)

// orderRows sorts rows in place, stable, by the orderBy column list in
// spec order, direction-aware. hasJoin selects bare-key resolution
// (matching the join stage's merged-row representation) — orderBy
// paths on a joined query are written "table.column" and the leading
// table segment is dropped since the row already carries the bare
// column.
func orderRows(rows []value.Row, cols []OrderColumn, hasJoin bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, c := range cols {
			av := value.Path(rows[i], c.Column, hasJoin)
			bv := value.Path(rows[j], c.Column, hasJoin)
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
	})
}
