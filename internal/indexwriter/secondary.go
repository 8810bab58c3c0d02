package indexwriter

import (
	"context"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/value"
)

// updateSecondaryIndexes implements 4.6 step 1: for each secondary
// indexed column whose value changed, move pk from the old key's
// index record to the new key's.
func (w *Writer) updateSecondaryIndexes(ctx context.Context, td *schema.TableDescriptor, pk interface{}, old, newRow value.Row) error {
	for col := range td.SecondaryIndex {
		var oldVal, newVal interface{}
		if old != nil {
			oldVal = old[col]
		}
		if newRow != nil {
			newVal = newRow[col]
		}
		if value.Equal(oldVal, newVal) {
			continue
		}
		idxTable := schema.SecondaryIndexTable(td.Name, col)
		if old != nil && oldVal != nil {
			if err := w.removePKFromIndex(ctx, idxTable, oldVal, pk); err != nil {
				return err
			}
		}
		if newRow != nil && newVal != nil {
			if err := w.addPKToIndex(ctx, idxTable, newVal, pk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) addPKToIndex(ctx context.Context, table string, key, pk interface{}) error {
	if err := w.Adapter.MakeTable(ctx, table, nil); err != nil {
		return err
	}
	row, err := w.Adapter.Read(ctx, table, key)
	if err != nil {
		if err != storage.ErrNotFound {
			return err
		}
		row = value.Row{"pks": []interface{}{}}
	}
	pks, _ := row["pks"].([]interface{})
	for _, existing := range pks {
		if value.Equal(existing, pk) {
			return nil
		}
	}
	row["pks"] = append(pks, pk)
	_, err = w.Adapter.Write(ctx, table, key, row)
	return err
}

func (w *Writer) removePKFromIndex(ctx context.Context, table string, key, pk interface{}) error {
	row, err := w.Adapter.Read(ctx, table, key)
	if err != nil {
		if err == storage.ErrNotFound || err == storage.ErrNoTable {
			return nil
		}
		return err
	}
	pks, _ := row["pks"].([]interface{})
	out := pks[:0]
	for _, existing := range pks {
		if !value.Equal(existing, pk) {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		return w.Adapter.Delete(ctx, table, key)
	}
	row["pks"] = out
	_, err = w.Adapter.Write(ctx, table, key, row)
	return err
}
