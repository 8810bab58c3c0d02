// Package engine implements the dispatcher and cache (C9): it is the
// single context object tying the schema registry, storage adapter,
// row selector, row mutator, index writer, view projector, and ORM
// synchronizer together, and the one entry point (Execute) external
// callers use to run a query.
package engine

import (
	"context"

	"github.com/kvquery/kvquery/internal/indexwriter"
	"github.com/kvquery/kvquery/internal/logging"
	"github.com/kvquery/kvquery/internal/mutator"
	"github.com/kvquery/kvquery/internal/ormsync"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/viewproj"
	"github.com/kvquery/kvquery/pkg/config"
)

var log = logging.GetLogger("engine")

// Engine is the "single context object" named in the design notes:
// construct-on-connect, teardown-on-destroy, passed around explicitly
// rather than hidden behind a package-level singleton.
type Engine struct {
	Adapter     storage.Adapter
	Registry    *schema.Registry
	Selector    *selector.Selector
	Mutator     *mutator.Mutator
	IndexWriter *indexwriter.Writer
	ViewProj    *viewproj.Projector
	ORMSync     *ormsync.Synchronizer
	Cache       *resultCache
}

// Options configures a new Engine.
type Options struct {
	// CacheEnabled turns on the per-table query-result cache. Off by
	// default, since a cache with no eviction beyond whole-table
	// invalidation is only a net win for read-heavy workloads.
	CacheEnabled bool

	// Search holds the tokenizer/fuzziness defaults the index writer
	// falls back to for columns whose schema.SearchColumn doesn't set
	// its own Mode. Zero value falls back to raw tokenization.
	Search config.SearchConfig
}

// New wires every collaborator against adapter and registry. search
// may be nil for deployments that never issue search(...) leaves.
func New(adapter storage.Adapter, registry *schema.Registry, search *selector.SearchExecutor, opts Options) *Engine {
	sel := selector.New(adapter, search)
	return &Engine{
		Adapter:     adapter,
		Registry:    registry,
		Selector:    sel,
		Mutator:     mutator.New(adapter, registry, sel),
		IndexWriter: indexwriter.New(adapter, registry, opts.Search),
		ViewProj:    viewproj.New(adapter, registry),
		ORMSync:     ormsync.New(adapter, registry),
		Cache:       newResultCache(opts.CacheEnabled),
	}
}

// Connect opens the underlying storage adapter.
func (e *Engine) Connect(ctx context.Context) error {
	return e.Adapter.Connect(ctx)
}

// Disconnect releases the underlying storage adapter without
// destroying persisted data.
func (e *Engine) Disconnect(ctx context.Context) error {
	return e.Adapter.Disconnect(ctx)
}

// RegisterTable registers td in the schema registry and creates its
// backing storage table.
func (e *Engine) RegisterTable(ctx context.Context, td *schema.TableDescriptor) error {
	if err := e.Registry.Register(td); err != nil {
		return err
	}
	if err := e.Adapter.MakeTable(ctx, td.Name, map[string]interface{}{"numeric": td.PKNumeric, "pkColumn": td.PKColumn}); err != nil {
		return err
	}
	log.Info("registered table", "table", td.Name, "pkColumn", td.PKColumn)
	return nil
}
