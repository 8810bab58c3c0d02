// Package ormsync implements the ORM synchronizer (C8): on every
// mutation to a table carrying ORM relationships, it diffs the
// relationship column's old and new value and updates the related
// table's back-reference column so the edge stays symmetric.
package ormsync

import (
	"context"
	"sort"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// Synchronizer maintains ORM back-references against Adapter, reading
// relationship definitions from Registry.
type Synchronizer struct {
	Adapter  storage.Adapter
	Registry *schema.Registry
}

// New builds a Synchronizer.
func New(adapter storage.Adapter, registry *schema.Registry) *Synchronizer {
	return &Synchronizer{Adapter: adapter, Registry: registry}
}

// Sync runs after td's row pk has been written or deleted (newRow nil
// means deleted) and pushes the resulting add/remove deltas of every
// ORM relationship's column out to the related table.
func (s *Synchronizer) Sync(ctx context.Context, td *schema.TableDescriptor, pk interface{}, old, newRow value.Row) error {
	for _, rel := range td.ORMRelations {
		if err := s.syncRelation(ctx, rel, pk, old, newRow); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) syncRelation(ctx context.Context, rel schema.ORMRelation, pk interface{}, old, newRow value.Row) error {
	var oldVal, newVal interface{}
	if old != nil {
		oldVal = old[rel.ThisColumn]
	}
	if newRow != nil {
		newVal = newRow[rel.ThisColumn]
	}

	oldIDs := idsOf(oldVal)
	newIDs := idsOf(newVal)
	added, removed := diffIDs(oldIDs, newIDs)

	for _, id := range removed {
		if err := s.removeBackref(ctx, rel, id, pk); err != nil {
			return err
		}
	}
	for _, id := range added {
		if err := s.addBackref(ctx, rel, id, pk); err != nil {
			return err
		}
	}
	return nil
}

// idsOf normalizes a relationship column's raw value (nil, a scalar,
// or an array) into a flat id list.
func idsOf(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return []interface{}{v}
}

// diffIDs splits newIDs/oldIDs into the add-set (present in new, not
// in old) and remove-set (present in old, not in new), by value.Equal
// identity.
func diffIDs(oldIDs, newIDs []interface{}) (added, removed []interface{}) {
	for _, n := range newIDs {
		if !containsID(oldIDs, n) {
			added = append(added, n)
		}
	}
	for _, o := range oldIDs {
		if !containsID(newIDs, o) {
			removed = append(removed, o)
		}
	}
	return added, removed
}

func containsID(ids []interface{}, target interface{}) bool {
	for _, id := range ids {
		if value.Equal(id, target) {
			return true
		}
	}
	return false
}

// removeBackref drops p from the remote row's fromColumn (array) or
// nulls it (single), when it is currently present.
func (s *Synchronizer) removeBackref(ctx context.Context, rel schema.ORMRelation, remoteID, p interface{}) error {
	row, err := s.Adapter.Read(ctx, rel.FromTable, remoteID)
	if err != nil {
		if err == storage.ErrNotFound || err == storage.ErrNoTable {
			return nil
		}
		return err
	}

	if rel.FromArity == schema.ArityArray {
		arr, _ := row[rel.FromColumn].([]interface{})
		out := arr[:0]
		changed := false
		for _, v := range arr {
			if value.Equal(v, p) {
				changed = true
				continue
			}
			out = append(out, v)
		}
		if !changed {
			return nil
		}
		row[rel.FromColumn] = out
	} else {
		if cur, ok := row[rel.FromColumn]; !ok || !value.Equal(cur, p) {
			return nil
		}
		row[rel.FromColumn] = nil
	}

	_, err = s.Adapter.Write(ctx, rel.FromTable, remoteID, row)
	return err
}

// addBackref inserts p into the remote row's fromColumn (array, kept
// sorted and deduped) or overwrites it (single).
func (s *Synchronizer) addBackref(ctx context.Context, rel schema.ORMRelation, remoteID, p interface{}) error {
	row, err := s.Adapter.Read(ctx, rel.FromTable, remoteID)
	if err != nil {
		if err == storage.ErrNotFound || err == storage.ErrNoTable {
			row = value.Row{}
		} else {
			return err
		}
	}

	if rel.FromArity == schema.ArityArray {
		arr, _ := row[rel.FromColumn].([]interface{})
		for _, v := range arr {
			if value.Equal(v, p) {
				return nil
			}
		}
		arr = append(arr, p)
		sortIDs(arr)
		row[rel.FromColumn] = arr
	} else {
		row[rel.FromColumn] = p
	}

	_, err = s.Adapter.Write(ctx, rel.FromTable, remoteID, row)
	return err
}

// sortIDs orders a pk slice ascending, numerically when every element
// is numeric, lexically on its stringified form otherwise.
func sortIDs(ids []interface{}) {
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := asNumber(ids[i])
		nj, jok := asNumber(ids[j])
		if iok && jok {
			return ni < nj
		}
		return value.Stringify(ids[i]) < value.Stringify(ids[j])
	})
}

func asNumber(x interface{}) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
