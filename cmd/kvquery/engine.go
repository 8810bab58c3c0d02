package main

import (
	"context"
	"fmt"

	"github.com/kvquery/kvquery/internal/engine"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/selector"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/internal/storage/sqliteadapter"
	"github.com/kvquery/kvquery/pkg/config"
)

// newAdapter builds the storage.Adapter named by cfg.Storage.Kind.
func newAdapter(cfg *config.Config) (storage.Adapter, error) {
	switch cfg.Storage.Kind {
	case "memory":
		return memadapter.New(), nil
	case "sqlite", "":
		return sqliteadapter.New(cfg.Storage.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// openEngine connects a storage adapter and wires it into a fresh
// engine.Engine, ready to register tables and run queries against.
func openEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, error) {
	adapter, err := newAdapter(cfg)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting storage adapter: %w", err)
	}

	registry := schema.NewRegistry()
	eng := engine.New(adapter, registry, selector.NewSearchExecutor(adapter, registry, cfg.Search), engine.Options{
		CacheEnabled: cfg.Cache.Enabled,
		Search:       cfg.Search,
	})
	return eng, nil
}
