package engine

import (
	"context"
	"testing"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/internal/value"
)

func newTestEngine(t *testing.T, cacheEnabled bool) *Engine {
	t.Helper()
	adapter := memadapter.New()
	registry := schema.NewRegistry()
	e := New(adapter, registry, nil, Options{CacheEnabled: cacheEnabled})

	td := schema.NewTableDescriptor("users", "id", true)
	td.SecondaryIndex["city"] = true
	if err := e.RegisterTable(context.Background(), td); err != nil {
		t.Fatalf("RegisterTable: %v", err)
	}
	return e
}

func TestUpsertThenSelectByPK(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	res, err := e.Execute(ctx, &Query{
		Action:     ActionUpsert,
		Table:      "users",
		ActionArgs: value.Row{"name": "Ada", "city": "London"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(res.AffectedRows) != 1 {
		t.Fatalf("expected 1 affected row, got %d", len(res.AffectedRows))
	}
	pk := res.AffectedRowPKs[0]

	sel, err := e.Execute(ctx, &Query{
		Action: ActionSelect,
		Table:  "users",
		Where:  &predicate.Leaf{Path: "id", Op: "=", Value: pk},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.Rows) != 1 || sel.Rows[0]["name"] != "Ada" {
		t.Fatalf("expected selected row with name Ada, got %v", sel.Rows)
	}
}

func TestSelectBySecondaryIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	for _, name := range []string{"Ada", "Bob"} {
		if _, err := e.Execute(ctx, &Query{
			Action:     ActionUpsert,
			Table:      "users",
			ActionArgs: value.Row{"name": name, "city": "London"},
		}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	res, err := e.Execute(ctx, &Query{
		Action: ActionSelect,
		Table:  "users",
		Where:  &predicate.Leaf{Path: "city", Op: "=", Value: "London"},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows in London, got %d", len(res.Rows))
	}
}

func TestDeleteRemovesRowAndIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	res, err := e.Execute(ctx, &Query{
		Action:     ActionUpsert,
		Table:      "users",
		ActionArgs: value.Row{"name": "Ada", "city": "London"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	pk := res.AffectedRowPKs[0]

	if _, err := e.Execute(ctx, &Query{
		Action: ActionDelete,
		Table:  "users",
		Where:  &predicate.Leaf{Path: "id", Op: "=", Value: pk},
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sel, err := e.Execute(ctx, &Query{
		Action: ActionSelect,
		Table:  "users",
		Where:  &predicate.Leaf{Path: "city", Op: "=", Value: "London"},
	})
	if err != nil {
		t.Fatalf("select after delete: %v", err)
	}
	if len(sel.Rows) != 0 {
		t.Fatalf("expected no rows after delete, got %v", sel.Rows)
	}
}

func TestCacheHitAvoidsReselect(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, true)

	if _, err := e.Execute(ctx, &Query{
		Action:     ActionUpsert,
		Table:      "users",
		ActionArgs: value.Row{"name": "Ada", "city": "London"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	q := &Query{Action: ActionSelect, Table: "users", Where: &predicate.Leaf{Path: "city", Op: "=", Value: "London"}}
	first, err := e.Execute(ctx, q)
	if err != nil {
		t.Fatalf("select 1: %v", err)
	}
	if len(first.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(first.Rows))
	}

	// mutate the underlying adapter row directly, bypassing the
	// engine, so a cache hit would keep returning the stale name while
	// a fresh read would not.
	row, _ := e.Adapter.Read(ctx, "users", first.Rows[0]["id"])
	row["name"] = "Mutated"
	if _, err := e.Adapter.Write(ctx, "users", first.Rows[0]["id"], row); err != nil {
		t.Fatalf("direct write: %v", err)
	}

	second, err := e.Execute(ctx, q)
	if err != nil {
		t.Fatalf("select 2: %v", err)
	}
	if second.Rows[0]["name"] != "Ada" {
		t.Fatalf("expected cache hit to return the stale cached name, got %v", second.Rows[0]["name"])
	}
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, true)

	if _, err := e.Execute(ctx, &Query{
		Action:     ActionUpsert,
		Table:      "users",
		ActionArgs: value.Row{"name": "Ada", "city": "London"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	q := &Query{Action: ActionSelect, Table: "users", Where: &predicate.Leaf{Path: "city", Op: "=", Value: "London"}}
	if _, err := e.Execute(ctx, q); err != nil {
		t.Fatalf("select 1: %v", err)
	}

	if _, err := e.Execute(ctx, &Query{
		Action:     ActionUpsert,
		Table:      "users",
		ActionArgs: value.Row{"name": "Bob", "city": "London"},
	}); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	res, err := e.Execute(ctx, q)
	if err != nil {
		t.Fatalf("select 2: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected cache to be invalidated and return 2 rows, got %d", len(res.Rows))
	}
}

func TestSchemaMisuseMoreThanOneOfWhereRangeTrie(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	_, err := e.Execute(ctx, &Query{
		Action: ActionSelect,
		Table:  "users",
		Where:  &predicate.Leaf{Path: "city", Op: "=", Value: "London"},
		Range:  []int{10, 0},
	})
	if err == nil {
		t.Fatal("expected a schema error for where+range together")
	}
	if _, ok := err.(*SchemaError); !ok {
		t.Fatalf("expected *SchemaError, got %T: %v", err, err)
	}
}

func TestInstanceTableSelectAndDelete(t *testing.T) {
	rows := []value.Row{
		{"id": float64(1), "name": "Ada"},
		{"id": float64(2), "name": "Bob"},
	}
	e := newTestEngine(t, false)

	sel, err := e.Execute(context.Background(), &Query{
		Action: ActionSelect,
		Table:  rows,
		Where:  &predicate.Leaf{Path: "name", Op: "=", Value: "Ada"},
	})
	if err != nil {
		t.Fatalf("instance select: %v", err)
	}
	if len(sel.Rows) != 1 || sel.Rows[0]["name"] != "Ada" {
		t.Fatalf("expected 1 matching instance row, got %v", sel.Rows)
	}

	del, err := e.Execute(context.Background(), &Query{
		Action: ActionDelete,
		Table:  rows,
		Where:  &predicate.Leaf{Path: "name", Op: "=", Value: "Ada"},
	})
	if err != nil {
		t.Fatalf("instance delete: %v", err)
	}
	if len(del.Rows) != 1 || del.Rows[0]["name"] != "Bob" {
		t.Fatalf("expected remaining row Bob, got %v", del.Rows)
	}
	if len(del.AffectedRows) != 1 || del.AffectedRows[0]["name"] != "Ada" {
		t.Fatalf("expected removed row Ada, got %v", del.AffectedRows)
	}
}

func TestShowTablesAndDescribe(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	tables, err := e.Execute(ctx, &Query{Action: ActionShowTables})
	if err != nil {
		t.Fatalf("show tables: %v", err)
	}
	if len(tables.Rows) != 1 || tables.Rows[0]["table"] != "users" {
		t.Fatalf("expected [users], got %v", tables.Rows)
	}

	desc, err := e.Execute(ctx, &Query{Action: ActionDescribe, Table: "users"})
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc.Rows[0]["pkColumn"] != "id" {
		t.Fatalf("expected pkColumn=id, got %v", desc.Rows[0]["pkColumn"])
	}
}
