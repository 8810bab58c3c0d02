package selector

import (
	"context"
	"fmt"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/value"
)

// executeFastLeaf implements 4.4.1 fast leaf execution for a single
// leaf already known to be fast-path-eligible.
func (s *Selector) executeFastLeaf(ctx context.Context, td *schema.TableDescriptor, leaf *predicate.Leaf) ([]value.Row, error) {
	if predicate.IsSearchPath(leaf.Path) {
		return s.executeSearchLeaf(ctx, td, leaf)
	}

	isPK := leaf.Path == td.PKColumn

	switch leaf.Op {
	case "=":
		if isPK {
			row, err := s.Adapter.Read(ctx, td.Name, leaf.Value)
			if err != nil {
				return nil, nil //nolint:nilerr // not-found is an empty result, not a query error
			}
			return []value.Row{row}, nil
		}
		pks, err := s.secondaryIndexRead(ctx, td, leaf.Path, leaf.Value)
		if err != nil {
			return nil, err
		}
		return s.readByPKs(ctx, td, pks)

	case "IN":
		values, ok := leaf.Value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("selector: IN requires an array value")
		}
		if isPK {
			return s.readByPKs(ctx, td, values)
		}
		var pks []interface{}
		for _, v := range values {
			found, err := s.secondaryIndexRead(ctx, td, leaf.Path, v)
			if err != nil {
				return nil, err
			}
			pks = append(pks, found...)
		}
		return s.readByPKs(ctx, td, pks)

	case "BETWEEN":
		bounds, ok := leaf.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("selector: BETWEEN requires a two-element value")
		}
		if isPK {
			var out []value.Row
			err := s.Adapter.RangeRead(ctx, td.Name, bounds[0], nextAfter(bounds[1]), true, func(row value.Row, _ int) (bool, error) {
				out = append(out, row)
				return true, nil
			})
			if err != nil {
				return nil, fmt.Errorf("selector: range read %s: %w", td.Name, err)
			}
			return out, nil
		}
		idxTable := schema.SecondaryIndexTable(td.Name, leaf.Path)
		var pks []interface{}
		err := s.Adapter.RangeRead(ctx, idxTable, bounds[0], nextAfter(bounds[1]), false, func(row value.Row, _ int) (bool, error) {
			if rowPKs, ok := row["pks"].([]interface{}); ok {
				pks = append(pks, rowPKs...)
			}
			return true, nil
		})
		if err != nil {
			return nil, fmt.Errorf("selector: range read %s: %w", idxTable, err)
		}
		return s.readByPKs(ctx, td, pks)
	}

	return nil, fmt.Errorf("selector: unsupported fast-path operator %q", leaf.Op)
}

// nextAfter nudges a BETWEEN upper bound so an inclusive [lo, hi] range
// can be served by the adapter's exclusive-toKey RangeRead contract.
func nextAfter(hi interface{}) interface{} {
	if n, ok := hi.(float64); ok {
		return n + 1
	}
	return hi
}

// secondaryIndexRead returns the pk list stored for one (column, value)
// pair in the reserved secondary index table.
func (s *Selector) secondaryIndexRead(ctx context.Context, td *schema.TableDescriptor, column string, val interface{}) ([]interface{}, error) {
	idxTable := schema.SecondaryIndexTable(td.Name, column)
	row, err := s.Adapter.Read(ctx, idxTable, val)
	if err != nil {
		return nil, nil //nolint:nilerr // no index record means no matching rows
	}
	pks, _ := row["pks"].([]interface{})
	return pks, nil
}

// executeSearchLeaf runs the search(...) pseudo-path against the
// search executor, attaches `_weight`/`_locations`, and reads full
// rows for every pk that passed the relevance threshold.
func (s *Selector) executeSearchLeaf(ctx context.Context, td *schema.TableDescriptor, leaf *predicate.Leaf) ([]value.Row, error) {
	if s.Search == nil {
		return nil, fmt.Errorf("selector: search leaf %q requires a search executor", leaf.Path)
	}
	cols := predicate.SearchColumns(leaf.Path)
	queryText, threshold := parseSearchValue(leaf.Op, leaf.Value)

	result, err := s.Search.Execute(ctx, td, cols, leaf.Op, queryText, threshold)
	if err != nil {
		return nil, err
	}

	pks := make([]interface{}, 0, len(result.Order))
	for _, pk := range result.Order {
		pks = append(pks, pk)
	}
	rows, err := s.readByPKs(ctx, td, pks)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		key := value.Stringify(row[td.PKColumn])
		if adornment, ok := result.Weights[key]; ok {
			row["_weight"] = adornment
		}
		if locs, ok := result.Locations[key]; ok {
			row["_locations"] = locs
		}
		rows[i] = row
	}
	return rows, nil
}
