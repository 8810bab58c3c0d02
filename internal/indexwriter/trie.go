package indexwriter

import (
	"context"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/value"
)

// updateTrieIndexes implements 4.6 step 3: one trie row per (table,
// column, pk), keyed by pk itself so a changed value simply overwrites
// the prior entry rather than requiring an explicit remove-then-add.
func (w *Writer) updateTrieIndexes(ctx context.Context, td *schema.TableDescriptor, pk interface{}, newRow value.Row) error {
	for col, on := range td.TrieColumns {
		if !on {
			continue
		}
		key, _ := newRow[col].(string)
		trieTable := schema.TrieIndexTable(td.Name, col)
		if err := w.Adapter.MakeTable(ctx, trieTable, nil); err != nil {
			return err
		}
		if _, err := w.Adapter.Write(ctx, trieTable, pk, value.Row{"key": key, "pk": pk}); err != nil {
			return err
		}
	}
	return nil
}
