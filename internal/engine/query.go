package engine

import (
	"github.com/kvquery/kvquery/internal/mutator"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/value"
)

// Action is the operation a Query requests.
type Action string

const (
	ActionSelect     Action = "select"
	ActionUpsert     Action = "upsert"
	ActionDelete     Action = "delete"
	ActionDrop       Action = "drop"
	ActionShowTables Action = "show tables"
	ActionDescribe   Action = "describe"
)

// TrieSpec, JoinSpec, JoinCondition, ORMSpec, and OrderColumn are the
// same clause shapes the selector and mutator already define; the
// engine's Query descriptor reuses them directly rather than
// redeclaring equivalent types.
type (
	TrieSpec      = selector.TrieSpec
	JoinSpec      = mutator.JoinSpec
	JoinCondition = mutator.JoinCondition
	ORMSpec       = mutator.ORMSpec
	OrderColumn   = mutator.OrderColumn
)

// Query is the one external request shape this engine accepts, per
// the query descriptor's fields: action, table, actionArgs, where,
// range, trie, join, groupBy, orderBy, having, offset, limit, orm,
// comments, queryID.
type Query struct {
	Action Action
	// Table is a table name, or a literal []value.Row for an instance
	// table routed to the in-memory path.
	Table interface{}
	// ActionArgs is a value.Row for upsert, or a []string column
	// projection for select.
	ActionArgs interface{}
	// Where is a *predicate.Leaf, predicate.List, predicate.RowFunc,
	// or nil.
	Where   interface{}
	Range   []int
	Trie    *TrieSpec
	Join    *JoinSpec
	GroupBy []OrderColumn
	OrderBy []OrderColumn
	Having  interface{}
	Offset  int
	Limit   int
	ORM     []ORMSpec
	// Comments carries caller-supplied markers such as
	// "_rebuild_search_index"; this engine has no recursive-write path
	// that needs a "_orm_skip" marker (see DESIGN.md), so Comments is
	// otherwise advisory only.
	Comments []string
	QueryID  string
}

// Result is what a query produces: rows for select/describe/show
// tables, or a write envelope for upsert/delete/drop.
type Result struct {
	Rows           []value.Row
	Message        string
	AffectedRowPKs []interface{}
	AffectedRows   []value.Row
}

func (q *Query) isInstanceTable() bool {
	_, ok := q.Table.([]value.Row)
	return ok
}

func (q *Query) tableName() (string, bool) {
	name, ok := q.Table.(string)
	return name, ok
}
