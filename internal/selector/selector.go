// Package selector implements the row selector (C4): given a query, it
// chooses and executes the cheapest row-fetch strategy, following the
// precedence order described in the component design.
package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// TrieSpec requests a prefix lookup on column, matching values that
// start with Search.
type TrieSpec struct {
	Column string
	Search string
}

// Options carries the subset of a query the selector needs to pick and
// execute a strategy.
type Options struct {
	// Where is a *predicate.Leaf, predicate.List, predicate.RowFunc, or
	// nil.
	Where interface{}
	// Range is [limit, offset], or nil if absent. A negative limit
	// means "last |limit| keys".
	Range []int
	Trie  *TrieSpec
	// HasJoin indicates the query also carries a join clause; when
	// true the selector emits an empty seed per precedence rule 1 and
	// leaves row production entirely to the mutator's join stage.
	HasJoin bool
}

// Selector chooses and executes row-fetch strategies against a single
// storage adapter and schema registry.
type Selector struct {
	Adapter storage.Adapter
	Search  *SearchExecutor
}

// New builds a Selector.
func New(adapter storage.Adapter, search *SearchExecutor) *Selector {
	return &Selector{Adapter: adapter, Search: search}
}

// Select executes the query against td and returns the matching rows,
// without applying any post-selection mutation (that is the mutator's
// job).
func (s *Selector) Select(ctx context.Context, td *schema.TableDescriptor, opts Options) ([]value.Row, error) {
	switch {
	case opts.HasJoin:
		// Rule 1: join does its own cartesian; selector contributes
		// nothing.
		return nil, nil

	case opts.Trie != nil:
		return s.triePrefixLookup(ctx, td, opts.Trie)

	case opts.Range != nil:
		return s.rangeStrategy(ctx, td, opts.Range)

	case opts.Where == nil:
		return s.fullScan(ctx, td, nil)
	}

	if _, isFn := opts.Where.(predicate.RowFunc); isFn {
		return s.fullScan(ctx, td, opts.Where)
	}

	if leaf, ok := opts.Where.(*predicate.Leaf); ok {
		if s.fastLeafEligible(td, leaf) {
			return s.executeFastLeaf(ctx, td, leaf)
		}
		return s.fullScan(ctx, td, opts.Where)
	}

	list, ok := asList(opts.Where)
	if !ok {
		return s.fullScan(ctx, td, opts.Where)
	}

	if allFastEligible(td, list, s) {
		return s.combineFastLeaves(ctx, td, list)
	}

	if prefixLen := fastPrefixLength(td, list, s); prefixLen > 0 {
		return s.fastPrefixThenSlow(ctx, td, list, prefixLen)
	}

	return s.fullScan(ctx, td, opts.Where)
}

func asList(where interface{}) (predicate.List, bool) {
	switch w := where.(type) {
	case predicate.List:
		return w, true
	case []interface{}:
		return predicate.List(w), true
	}
	return nil, false
}

// fastLeafEligible reports whether leaf's path is the primary key, a
// secondary-indexed column, or a search(...) expression with an
// operator this selector can serve from an index, per precedence
// rule 5.
func (s *Selector) fastLeafEligible(td *schema.TableDescriptor, leaf *predicate.Leaf) bool {
	if predicate.IsSearchPath(leaf.Path) {
		switch leaf.Op {
		case "=", ">", "<", "BETWEEN":
			return s.Search != nil
		}
		return false
	}
	if leaf.Path == td.PKColumn {
		switch leaf.Op {
		case "=", "IN", "BETWEEN":
			return true
		}
		return false
	}
	if td.SecondaryIndex[leaf.Path] {
		switch leaf.Op {
		case "=", "IN", "BETWEEN":
			return true
		}
		return false
	}
	return false
}

func allFastEligible(td *schema.TableDescriptor, list predicate.List, s *Selector) bool {
	for _, item := range list {
		leaf, ok := item.(*predicate.Leaf)
		if !ok {
			continue
		}
		if !s.fastLeafEligible(td, leaf) {
			return false
		}
	}
	return true
}

// fastPrefixLength returns the number of leading leaf/connective pairs
// that are fast-path-eligible, followed by "AND", before the first
// slow leaf — precedence rule 7. Returns 0 if the list does not start
// with at least one fast-eligible leaf followed by AND.
func fastPrefixLength(td *schema.TableDescriptor, list predicate.List, s *Selector) int {
	if len(list) == 0 {
		return 0
	}
	leaf, ok := list[0].(*predicate.Leaf)
	if !ok || !s.fastLeafEligible(td, leaf) {
		return 0
	}
	i := 1
	for i+1 < len(list) {
		conn, ok := list[i].(string)
		if !ok || conn != "AND" {
			break
		}
		nextLeaf, ok := list[i+1].(*predicate.Leaf)
		if !ok || !s.fastLeafEligible(td, nextLeaf) {
			break
		}
		i += 2
	}
	if i >= len(list) {
		return 0
	}
	if conn, ok := list[i].(string); !ok || conn != "AND" {
		return 0
	}
	return i
}

func (s *Selector) fastPrefixThenSlow(ctx context.Context, td *schema.TableDescriptor, list predicate.List, prefixLen int) ([]value.Row, error) {
	prefix := list[:prefixLen]
	rest := list[prefixLen:]

	rows, err := s.combineFastLeaves(ctx, td, prefix)
	if err != nil {
		return nil, err
	}

	// Drop a leading connective on the remainder (it bound the prefix
	// to the slow tail, e.g. "... AND <slow>").
	if len(rest) > 0 {
		if conn, ok := rest[0].(string); ok && (conn == "AND" || conn == "OR") {
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return rows, nil
	}

	var evalCtx predicate.Context
	if s.Search != nil {
		evalCtx = predicate.Context{Search: s.Search.BindTable(ctx, td), PKColumn: td.PKColumn}
	}
	var out []value.Row
	for i, row := range rows {
		ok, err := predicate.Evaluate(evalCtx, predicate.List(rest), row, i)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Selector) combineFastLeaves(ctx context.Context, td *schema.TableDescriptor, list predicate.List) ([]value.Row, error) {
	type leafResult struct {
		rows []value.Row
		conn string // connective preceding this leaf's result
	}
	var results []leafResult
	conn := ""
	for _, item := range list {
		if c, ok := item.(string); ok {
			conn = c
			continue
		}
		leaf, ok := item.(*predicate.Leaf)
		if !ok {
			continue
		}
		rows, err := s.executeFastLeaf(ctx, td, leaf)
		if err != nil {
			return nil, err
		}
		results = append(results, leafResult{rows: rows, conn: conn})
		conn = ""
	}
	if len(results) == 0 {
		return nil, nil
	}

	byPK := func(rows []value.Row) map[string]value.Row {
		m := make(map[string]value.Row, len(rows))
		for _, r := range rows {
			m[value.Stringify(r[td.PKColumn])] = r
		}
		return m
	}

	acc := byPK(results[0].rows)
	order := make([]string, 0, len(acc))
	for _, r := range results[0].rows {
		order = append(order, value.Stringify(r[td.PKColumn]))
	}

	for _, res := range results[1:] {
		next := byPK(res.rows)
		switch res.conn {
		case "OR":
			for k, v := range next {
				if _, exists := acc[k]; !exists {
					acc[k] = v
					order = append(order, k)
				}
			}
		default: // AND / intersect
			merged := make(map[string]value.Row, len(acc))
			var newOrder []string
			for _, k := range order {
				if v, ok := next[k]; ok {
					merged[k] = acc[k]
					_ = v
					newOrder = append(newOrder, k)
				}
			}
			acc = merged
			order = newOrder
		}
	}

	out := make([]value.Row, 0, len(order))
	for _, k := range order {
		if row, ok := acc[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Selector) fullScan(ctx context.Context, td *schema.TableDescriptor, where interface{}) ([]value.Row, error) {
	// Pre-execute any search(...) leaves so the evaluator can consult a
	// side cache instead of re-tokenizing per row (precedence rule 8).
	var evalCtx predicate.Context
	if s.Search != nil {
		evalCtx = predicate.Context{Search: s.Search.BindTable(ctx, td), PKColumn: td.PKColumn}
	}

	var out []value.Row
	idx := 0
	err := s.Adapter.RangeRead(ctx, td.Name, nil, nil, true, func(row value.Row, _ int) (bool, error) {
		ok, err := predicate.Evaluate(evalCtx, where, row, idx)
		if err != nil {
			return false, err
		}
		idx++
		if ok {
			out = append(out, row)
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("selector: full scan of %s: %w", td.Name, err)
	}
	return out, nil
}

func (s *Selector) rangeStrategy(ctx context.Context, td *schema.TableDescriptor, r []int) ([]value.Row, error) {
	if len(r) != 2 {
		return nil, fmt.Errorf("selector: range requires [limit, offset], got %v", r)
	}
	limit, offset := r[0], r[1]

	if limit >= 0 {
		var out []value.Row
		skipped := 0
		err := s.Adapter.RangeRead(ctx, td.Name, nil, nil, true, func(row value.Row, _ int) (bool, error) {
			if skipped < offset {
				skipped++
				return true, nil
			}
			if limit > 0 && len(out) >= limit {
				return false, nil
			}
			out = append(out, row)
			return limit == 0 || len(out) < limit, nil
		})
		if err != nil {
			return nil, fmt.Errorf("selector: range read of %s: %w", td.Name, err)
		}
		return out, nil
	}

	// Negative limit: fetch count, then read the last |limit| keys
	// skipping offset from the end.
	_, count, err := s.Adapter.GetIndex(ctx, td.Name, true)
	if err != nil {
		return nil, fmt.Errorf("selector: counting %s: %w", td.Name, err)
	}
	want := -limit
	end := count - offset
	start := end - want
	if start < 0 {
		start = 0
	}
	if end <= 0 {
		return nil, nil
	}

	var out []value.Row
	idx := 0
	err = s.Adapter.RangeRead(ctx, td.Name, nil, nil, true, func(row value.Row, _ int) (bool, error) {
		if idx >= start && idx < end {
			out = append(out, row)
		}
		idx++
		return idx < end, nil
	})
	if err != nil {
		return nil, fmt.Errorf("selector: tail range read of %s: %w", td.Name, err)
	}
	return out, nil
}

func (s *Selector) triePrefixLookup(ctx context.Context, td *schema.TableDescriptor, spec *TrieSpec) ([]value.Row, error) {
	trieTable := schema.TrieIndexTable(td.Name, spec.Column)
	var pks []interface{}
	err := s.Adapter.RangeRead(ctx, trieTable, nil, nil, false, func(row value.Row, _ int) (bool, error) {
		key, _ := row["key"].(string)
		if len(key) >= len(spec.Search) && key[:len(spec.Search)] == spec.Search {
			pks = append(pks, row["pk"])
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("selector: trie lookup on %s.%s: %w", td.Name, spec.Column, err)
	}
	return s.readByPKs(ctx, td, pks)
}

func (s *Selector) readByPKs(ctx context.Context, td *schema.TableDescriptor, pks []interface{}) ([]value.Row, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	rows, err := s.Adapter.BatchRead(ctx, td.Name, dedupePKs(pks))
	if err != nil {
		return nil, fmt.Errorf("selector: batch read %s: %w", td.Name, err)
	}
	return rows, nil
}

func dedupePKs(pks []interface{}) []interface{} {
	seen := make(map[string]bool, len(pks))
	out := make([]interface{}, 0, len(pks))
	for _, pk := range pks {
		k := value.Stringify(pk)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, pk)
	}
	return out
}

// sortPKs gives deterministic ordering to pk sets built from map
// iteration before a batch read, so results are stable across calls.
func sortPKs(pks []interface{}) {
	sort.Slice(pks, func(i, j int) bool {
		return value.Stringify(pks[i]) < value.Stringify(pks[j])
	})
}
