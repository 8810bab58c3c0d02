package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kvquery/kvquery/internal/value"
)

// resultCache is a per-table cache from query fingerprint to rows,
// wiped wholesale on any write, delete, or drop against that table.
type resultCache struct {
	mu      sync.Mutex
	byTable map[string]map[string][]value.Row
	enabled bool
}

func newResultCache(enabled bool) *resultCache {
	return &resultCache{byTable: make(map[string]map[string][]value.Row), enabled: enabled}
}

func (c *resultCache) get(table, fingerprint string) ([]value.Row, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.byTable[table]
	if !ok {
		return nil, false
	}
	rows, ok := entries[fingerprint]
	if !ok {
		return nil, false
	}
	return cloneRows(rows), true
}

func (c *resultCache) put(table, fingerprint string, rows []value.Row) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.byTable[table]
	if !ok {
		entries = make(map[string][]value.Row)
		c.byTable[table] = entries
	}
	entries[fingerprint] = cloneRows(rows)
}

// invalidate wipes the entire cache for table.
func (c *resultCache) invalidate(table string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byTable, table)
}

func cloneRows(rows []value.Row) []value.Row {
	out := make([]value.Row, len(rows))
	for i, r := range rows {
		out[i] = value.CloneRow(r)
	}
	return out
}

// cacheable reports whether q is eligible for caching at all: no
// join, no orm, no instance-table input.
func (q *Query) cacheable() bool {
	return q.Join == nil && len(q.ORM) == 0 && !q.isInstanceTable()
}

// normalizedQuery is the subset of Query's fields that participate in
// the cache fingerprint: queryID and any prior result are transient
// and deliberately excluded.
type normalizedQuery struct {
	Action  Action
	Table   interface{}
	Args    interface{}
	Where   interface{}
	Range   []int
	Trie    *TrieSpec
	GroupBy []OrderColumn
	OrderBy []OrderColumn
	Having  interface{}
	Offset  int
	Limit   int
}

// fingerprint computes a stable hash of q's normalized, cacheable
// fields. Returns an error when q.Where/Having carries a
// predicate.RowFunc or other non-JSON-able value — such a query is
// simply not cacheable, not a hard failure.
func fingerprint(q *Query) (string, error) {
	data, err := json.Marshal(normalizedQuery{
		Action:  q.Action,
		Table:   q.Table,
		Args:    q.ActionArgs,
		Where:   q.Where,
		Range:   q.Range,
		Trie:    q.Trie,
		GroupBy: q.GroupBy,
		OrderBy: q.OrderBy,
		Having:  q.Having,
		Offset:  q.Offset,
		Limit:   q.Limit,
	})
	if err != nil {
		return "", fmt.Errorf("engine: fingerprint query: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}
