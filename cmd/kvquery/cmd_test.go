package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Kind = "memory"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "kvquery.db")
	return cfg
}

func TestSchemaDirDerivesFromStoragePath(t *testing.T) {
	cfg := testConfig(t)
	want := filepath.Join(filepath.Dir(cfg.Storage.Path), "schemas")
	if got := schemaDir(cfg); got != want {
		t.Errorf("schemaDir = %q, want %q", got, want)
	}
}

func TestSchemaDirDefaultsToCurrentDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = ""
	if got := schemaDir(cfg); got != "schemas" {
		t.Errorf("schemaDir = %q, want %q", got, "schemas")
	}
}

func TestLoadRegisteredSchemasTolerantOfMissingDir(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	defer eng.Disconnect(ctx)

	if err := loadRegisteredSchemas(ctx, eng, cfg); err != nil {
		t.Fatalf("loadRegisteredSchemas on missing dir: %v", err)
	}
}

func TestLoadRegisteredSchemasRegistersPersistedDescriptors(t *testing.T) {
	cfg := testConfig(t)
	dir := schemaDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	td := schema.NewTableDescriptor("users", "id", true)
	td.SecondaryIndex["city"] = true
	data, err := json.Marshal(td)
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "users.json"), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx := context.Background()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	defer eng.Disconnect(ctx)

	if err := loadRegisteredSchemas(ctx, eng, cfg); err != nil {
		t.Fatalf("loadRegisteredSchemas: %v", err)
	}
	got, ok := eng.Registry.Table("users")
	if !ok {
		t.Fatal("expected users table to be registered")
	}
	if got.PKColumn != "id" {
		t.Errorf("PKColumn = %q, want %q", got.PKColumn, "id")
	}
}

func TestDecodeCLIExprSingleLeaf(t *testing.T) {
	raw := json.RawMessage(`{"path":"city","op":"EQ","value":"London"}`)
	expr, err := decodeCLIExpr(raw)
	if err != nil {
		t.Fatalf("decodeCLIExpr: %v", err)
	}
	leaf, ok := expr.(*predicate.Leaf)
	if !ok {
		t.Fatalf("expected *predicate.Leaf, got %T", expr)
	}
	if leaf.Path != "city" || leaf.Op != "EQ" || leaf.Value != "London" {
		t.Errorf("unexpected leaf: %+v", leaf)
	}
}

func TestDecodeCLIExprList(t *testing.T) {
	raw := json.RawMessage(`[{"path":"city","op":"EQ","value":"London"},"AND",{"path":"age","op":"GT","value":21}]`)
	expr, err := decodeCLIExpr(raw)
	if err != nil {
		t.Fatalf("decodeCLIExpr: %v", err)
	}
	list, ok := expr.(predicate.List)
	if !ok {
		t.Fatalf("expected predicate.List, got %T", expr)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(list))
	}
	if list[1] != "AND" {
		t.Errorf("expected connective AND, got %v", list[1])
	}
}

func TestDecodeCLIExprEmpty(t *testing.T) {
	expr, err := decodeCLIExpr(nil)
	if err != nil {
		t.Fatalf("decodeCLIExpr(nil): %v", err)
	}
	if expr != nil {
		t.Errorf("expected nil expr for empty input, got %v", expr)
	}
}

func TestNewAdapterRejectsUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Kind = "bogus"
	if _, err := newAdapter(cfg); err == nil {
		t.Error("expected error for unknown storage kind")
	}
}

func TestOpenEngineMemory(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	defer eng.Disconnect(ctx)
	if eng == nil {
		t.Fatal("expected non-nil engine")
	}
}
