// Package viewproj implements the view projector (C7): it keeps
// denormalized view columns consistent with the tables they are
// projected from, in both directions — locally, before a row is
// written, and remotely, after a write or delete, by pushing the
// change out to every table that views from the one just written.
package viewproj

import (
	"context"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// Projector applies view-column maintenance against Adapter, looking
// up view definitions and remote-view links through Registry.
type Projector struct {
	Adapter  storage.Adapter
	Registry *schema.Registry
}

// New builds a Projector.
func New(adapter storage.Adapter, registry *schema.Registry) *Projector {
	return &Projector{Adapter: adapter, Registry: registry}
}

// ApplyLocal runs before a row is persisted. For every view defined on
// td keyed by a local foreign-key column: if the incoming row doesn't
// set that column, or it is unchanged from the existing row, the view
// is left alone; if the new value is null, the projected columns are
// nulled; otherwise the referenced row is read from the source table
// and its mapped columns copied in, except in LIVE mode when the
// reference is missing, in which case they are nulled instead.
func (p *Projector) ApplyLocal(ctx context.Context, td *schema.TableDescriptor, old, newRow value.Row) error {
	for localPK, view := range td.Views {
		newRef, hasNew := newRow[localPK]
		if !hasNew {
			continue
		}
		if old != nil {
			if oldRef, ok := old[localPK]; ok && value.Equal(oldRef, newRef) {
				continue
			}
		}
		if newRef == nil {
			nullViewColumns(newRow, view)
			continue
		}
		srcRow, err := p.Adapter.Read(ctx, view.SourceTable, newRef)
		if err != nil {
			if err == storage.ErrNotFound || err == storage.ErrNoTable {
				if view.Mode == schema.ViewLive {
					nullViewColumns(newRow, view)
				}
				continue
			}
			return err
		}
		for _, cm := range view.Columns {
			newRow[cm.LocalColumn] = srcRow[cm.SourceColumn]
		}
	}
	return nil
}

func nullViewColumns(row value.Row, view schema.ViewDefinition) {
	for _, cm := range view.Columns {
		row[cm.LocalColumn] = nil
	}
}

// PropagateRemote runs after td's row pk has been written (newRow
// holds the persisted row) or deleted (deleted is true, newRow is
// nil). For every table that projects a view from td, it finds the
// referencing rows via the viewing table's secondary index on the
// view's pk column
// and recopies (or, on delete in LIVE mode, nulls) the mapped columns.
func (p *Projector) PropagateRemote(ctx context.Context, td *schema.TableDescriptor, pk interface{}, newRow value.Row, deleted bool) error {
	for _, rv := range td.RemoteViews {
		targetTD, ok := p.Registry.Table(rv.Table)
		if !ok {
			continue
		}
		view, ok := targetTD.Views[rv.PKColumn]
		if !ok {
			continue
		}

		idxTable := schema.SecondaryIndexTable(rv.Table, rv.PKColumn)
		idxRow, err := p.Adapter.Read(ctx, idxTable, pk)
		if err != nil {
			if err == storage.ErrNotFound || err == storage.ErrNoTable {
				continue
			}
			return err
		}
		childPKs, _ := idxRow["pks"].([]interface{})

		for _, childPK := range childPKs {
			childRow, err := p.Adapter.Read(ctx, rv.Table, childPK)
			if err != nil {
				if err == storage.ErrNotFound || err == storage.ErrNoTable {
					continue
				}
				return err
			}

			changed := false
			if deleted {
				if view.Mode == schema.ViewGhost {
					continue // stale snapshot retained by design
				}
				for _, cm := range view.Columns {
					if childRow[cm.LocalColumn] != nil {
						childRow[cm.LocalColumn] = nil
						changed = true
					}
				}
			} else {
				for _, cm := range view.Columns {
					next := newRow[cm.SourceColumn]
					if !value.Equal(childRow[cm.LocalColumn], next) {
						childRow[cm.LocalColumn] = next
						changed = true
					}
				}
			}

			if changed {
				if _, err := p.Adapter.Write(ctx, rv.Table, childPK, childRow); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
