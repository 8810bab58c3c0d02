package mutator

import (
	"context"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/value"
)

// ormExpand implements 4.5's ORM expansion stage: for each spec and
// each row, resolve row[key] against the related table via the
// recorded relationship, run a sub-select, and assign back an array
// or single value depending on relationship arity.
func (m *Mutator) ormExpand(ctx context.Context, td *schema.TableDescriptor, rows []value.Row, specs []ORMSpec) error {
	for _, spec := range specs {
		rel, ok := findRelation(td, spec.Key)
		if !ok {
			continue
		}
		targetTD, ok := m.Registry.Table(rel.FromTable)
		if !ok {
			continue
		}
		for _, row := range rows {
			if err := m.expandOne(ctx, row, spec, rel, targetTD); err != nil {
				return err
			}
		}
	}
	return nil
}

func findRelation(td *schema.TableDescriptor, key string) (schema.ORMRelation, bool) {
	for _, rel := range td.ORMRelations {
		if rel.ThisColumn == key {
			return rel, true
		}
	}
	return schema.ORMRelation{}, false
}

func (m *Mutator) expandOne(ctx context.Context, row value.Row, spec ORMSpec, rel schema.ORMRelation, targetTD *schema.TableDescriptor) error {
	ids := idsFromKeyValue(row[spec.Key], rel.ThisArity)
	if len(ids) == 0 {
		if rel.ThisArity == schema.ArityArray {
			row[spec.Key] = []interface{}{}
		} else {
			delete(row, spec.Key)
		}
		return nil
	}

	subRows, err := m.Selector.Select(ctx, targetTD, selector.Options{
		Where: &predicate.Leaf{Path: targetTD.PKColumn, Op: "IN", Value: ids},
	})
	if err != nil {
		return err
	}

	if spec.Where != nil {
		filtered := make([]value.Row, 0, len(subRows))
		for i, r := range subRows {
			ok, err := predicate.Evaluate(predicate.Context{}, spec.Where, r, i)
			if err != nil {
				return err
			}
			if ok {
				filtered = append(filtered, r)
			}
		}
		subRows = filtered
	}

	if len(spec.OrderBy) > 0 {
		orderRows(subRows, spec.OrderBy, false)
	}

	limit := spec.Limit
	if limit == 0 {
		limit = 5
	}
	subRows = applyOffsetLimit(subRows, spec.Offset, limit)

	if len(spec.Select) > 0 {
		projected := make([]value.Row, 0, len(subRows))
		for _, r := range subRows {
			pr := value.Row{}
			for _, col := range spec.Select {
				pr[col] = value.Path(r, col, false)
			}
			projected = append(projected, pr)
		}
		subRows = projected
	}

	if rel.ThisArity == schema.ArityArray {
		out := make([]interface{}, len(subRows))
		for i, r := range subRows {
			out[i] = r
		}
		row[spec.Key] = out
		return nil
	}

	if len(subRows) == 0 {
		delete(row, spec.Key)
		return nil
	}
	row[spec.Key] = subRows[0]
	return nil
}

// idsFromKeyValue normalizes row[key] into a list of ids to look up,
// honoring the relationship's declared arity on this side.
func idsFromKeyValue(v interface{}, arity schema.Arity) []interface{} {
	if v == nil {
		return nil
	}
	if arity == schema.ArityArray {
		arr, _ := v.([]interface{})
		return arr
	}
	return []interface{}{v}
}
