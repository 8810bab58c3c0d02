package selector

import (
	"context"
	"testing"

	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/internal/value"
)

func seedUsers(t *testing.T, adapter *memadapter.Adapter) *schema.TableDescriptor {
	t.Helper()
	ctx := context.Background()
	if err := adapter.MakeTable(ctx, "users", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	rows := []value.Row{
		{"name": "Ada", "city": "London", "age": float64(30)},
		{"name": "Bob", "city": "Paris", "age": float64(40)},
		{"name": "Cid", "city": "London", "age": float64(50)},
	}
	for _, r := range rows {
		if _, err := adapter.Write(ctx, "users", nil, r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	td := schema.NewTableDescriptor("users", "id", true)
	td.SecondaryIndex["city"] = true
	return td
}

func TestSelectFullScanNoWhere(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	sel := New(adapter, nil)

	rows, err := sel.Select(context.Background(), td, Options{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestSelectFullScanWithSlowLeaf(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	sel := New(adapter, nil)

	rows, err := sel.Select(context.Background(), td, Options{
		Where: &predicate.Leaf{Path: "age", Op: ">=", Value: float64(40)},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows with age>=40, got %d", len(rows))
	}
}

func TestSelectJoinReturnsEmptySeed(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	sel := New(adapter, nil)

	rows, err := sel.Select(context.Background(), td, Options{HasJoin: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil seed for a join query, got %v", rows)
	}
}

func TestSelectRangePositiveLimit(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	sel := New(adapter, nil)

	rows, err := sel.Select(context.Background(), td, Options{Range: []int{2, 0}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestSelectRangeNegativeLimitTail(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	sel := New(adapter, nil)

	rows, err := sel.Select(context.Background(), td, Options{Range: []int{-1, 0}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for tail window, got %d", len(rows))
	}
	if rows[0]["name"] != "Cid" {
		t.Errorf("expected the last-inserted row, got %v", rows[0]["name"])
	}
}

func TestSelectFastLeafSecondaryIndex(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	ctx := context.Background()

	// manually build the reserved secondary index the index writer
	// would normally maintain, since this test exercises the selector
	// alone.
	if err := adapter.MakeTable(ctx, schema.SecondaryIndexTable("users", "city"), nil); err != nil {
		t.Fatalf("MakeTable idx: %v", err)
	}
	rows, _ := sel0(adapter).fullScan(ctx, td, nil)
	var londonPKs []interface{}
	for _, r := range rows {
		if r["city"] == "London" {
			londonPKs = append(londonPKs, r["id"])
		}
	}
	if _, err := adapter.Write(ctx, schema.SecondaryIndexTable("users", "city"), "London", value.Row{"pks": londonPKs}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	sel := New(adapter, nil)
	out, err := sel.Select(ctx, td, Options{
		Where: &predicate.Leaf{Path: "city", Op: "=", Value: "London"},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 London rows via fast leaf, got %d", len(out))
	}
}

func sel0(adapter *memadapter.Adapter) *Selector {
	return New(adapter, nil)
}

func TestSelectTriePrefixLookup(t *testing.T) {
	adapter := memadapter.New()
	td := seedUsers(t, adapter)
	ctx := context.Background()

	trieTable := schema.TrieIndexTable("users", "name")
	if err := adapter.MakeTable(ctx, trieTable, nil); err != nil {
		t.Fatalf("MakeTable trie: %v", err)
	}
	rows, _ := sel0(adapter).fullScan(ctx, td, nil)
	for _, r := range rows {
		if r["name"] == "Ada" {
			if _, err := adapter.Write(ctx, trieTable, nil, value.Row{"key": "Ad", "pk": r["id"]}); err != nil {
				t.Fatalf("seed trie: %v", err)
			}
		}
	}

	sel := New(adapter, nil)
	out, err := sel.Select(ctx, td, Options{Trie: &TrieSpec{Column: "name", Search: "Ad"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out) != 1 || out[0]["name"] != "Ada" {
		t.Fatalf("expected Ada via trie lookup, got %v", out)
	}
}

func TestDedupePKs(t *testing.T) {
	out := dedupePKs([]interface{}{"a", "b", "a", "c"})
	if len(out) != 3 {
		t.Fatalf("expected 3 deduped pks, got %d", len(out))
	}
}
