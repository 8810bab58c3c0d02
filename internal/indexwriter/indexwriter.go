// Package indexwriter implements the index writer (C6): on every
// write or delete it keeps secondary indexes, full-text search
// indexes (exact and fuzzy), and trie/prefix indexes consistent with
// the base table, including inverse cleanup on delete.
package indexwriter

import (
	"context"
	"fmt"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/tokenize"
	"github.com/kvquery/kvquery/internal/value"
	"github.com/kvquery/kvquery/pkg/config"
)

// Writer maintains every derived index for tables in Registry,
// against Adapter.
type Writer struct {
	Adapter  storage.Adapter
	Registry *schema.Registry

	// defaultMode is the SearchConfig.DefaultMode fallback applied when
	// a column's schema.SearchColumn.Mode is unset.
	defaultMode tokenize.Mode
}

// New builds a Writer, falling back to search.DefaultMode for any
// table column whose schema.SearchColumn doesn't set its own Mode.
func New(adapter storage.Adapter, registry *schema.Registry, search config.SearchConfig) *Writer {
	return &Writer{Adapter: adapter, Registry: registry, defaultMode: defaultModeFromConfig(search.DefaultMode)}
}

// OnWrite runs after a row has been persisted to the base table. old
// is nil for a newly-inserted row. It maintains secondary indexes,
// search indexes, and trie indexes for td's configured columns.
func (w *Writer) OnWrite(ctx context.Context, td *schema.TableDescriptor, pk interface{}, old, newRow value.Row) error {
	if err := w.updateSecondaryIndexes(ctx, td, pk, old, newRow); err != nil {
		return fmt.Errorf("indexwriter: secondary index update on %s: %w", td.Name, err)
	}
	if err := w.updateSearchIndexes(ctx, td, pk, newRow); err != nil {
		return fmt.Errorf("indexwriter: search index update on %s: %w", td.Name, err)
	}
	if err := w.updateTrieIndexes(ctx, td, pk, newRow); err != nil {
		return fmt.Errorf("indexwriter: trie index update on %s: %w", td.Name, err)
	}
	return nil
}

// OnDelete runs before (or instead of) a row being removed from the
// base table, retracting every derived index entry it contributed.
func (w *Writer) OnDelete(ctx context.Context, td *schema.TableDescriptor, pk interface{}, old value.Row) error {
	if err := w.updateSecondaryIndexes(ctx, td, pk, old, nil); err != nil {
		return fmt.Errorf("indexwriter: secondary index retraction on %s: %w", td.Name, err)
	}
	if err := w.retractSearchIndexes(ctx, td, pk); err != nil {
		return fmt.Errorf("indexwriter: search index retraction on %s: %w", td.Name, err)
	}
	for _, col := range triesOf(td) {
		if err := w.Adapter.Delete(ctx, schema.TrieIndexTable(td.Name, col), pk); err != nil {
			return fmt.Errorf("indexwriter: trie index retraction on %s.%s: %w", td.Name, col, err)
		}
	}
	return nil
}

func triesOf(td *schema.TableDescriptor) []string {
	cols := make([]string, 0, len(td.TrieColumns))
	for c, on := range td.TrieColumns {
		if on {
			cols = append(cols, c)
		}
	}
	return cols
}
