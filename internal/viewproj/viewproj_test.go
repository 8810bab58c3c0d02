package viewproj

import (
	"context"
	"testing"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/internal/value"
)

func setupUsersOrders(t *testing.T, mode schema.ViewMode) (*memadapter.Adapter, *schema.Registry, *schema.TableDescriptor, *schema.TableDescriptor) {
	t.Helper()
	adapter := memadapter.New()
	registry := schema.NewRegistry()

	usersTD := schema.NewTableDescriptor("users", "id", true)
	ordersTD := schema.NewTableDescriptor("orders", "id", true)
	ordersTD.SecondaryIndex["userId"] = true
	ordersTD.Views["userId"] = schema.ViewDefinition{
		SourceTable: "users",
		PKColumn:    "userId",
		Columns:     []schema.ColumnMapping{{SourceColumn: "name", LocalColumn: "userName"}},
		Mode:        mode,
	}
	if err := registry.Register(usersTD); err != nil {
		t.Fatalf("register users: %v", err)
	}
	if err := registry.Register(ordersTD); err != nil {
		t.Fatalf("register orders: %v", err)
	}
	return adapter, registry, usersTD, ordersTD
}

func TestApplyLocalCopiesViewColumnOnInsert(t *testing.T) {
	ctx := context.Background()
	adapter, registry, _, ordersTD := setupUsersOrders(t, schema.ViewLive)
	if err := adapter.MakeTable(ctx, "users", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	if _, err := adapter.Write(ctx, "users", float64(5), value.Row{"id": float64(5), "name": "Ada"}); err != nil {
		t.Fatalf("write user: %v", err)
	}

	p := New(adapter, registry)
	order := value.Row{"id": float64(1), "userId": float64(5)}
	if err := p.ApplyLocal(ctx, ordersTD, nil, order); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	if order["userName"] != "Ada" {
		t.Fatalf("expected userName=Ada, got %v", order["userName"])
	}
}

func TestApplyLocalLiveNullsOnMissingReference(t *testing.T) {
	ctx := context.Background()
	adapter, registry, _, ordersTD := setupUsersOrders(t, schema.ViewLive)
	if err := adapter.MakeTable(ctx, "users", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}

	p := New(adapter, registry)
	order := value.Row{"id": float64(1), "userId": float64(999)}
	if err := p.ApplyLocal(ctx, ordersTD, nil, order); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	if order["userName"] != nil {
		t.Fatalf("expected userName nulled for missing reference, got %v", order["userName"])
	}
}

func TestApplyLocalSkipsWhenReferenceUnchanged(t *testing.T) {
	ctx := context.Background()
	adapter, registry, _, ordersTD := setupUsersOrders(t, schema.ViewLive)
	p := New(adapter, registry)

	old := value.Row{"id": float64(1), "userId": float64(5), "userName": "Ada"}
	newRow := value.Row{"id": float64(1), "userId": float64(5), "userName": "Ada"}
	if err := p.ApplyLocal(ctx, ordersTD, old, newRow); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	// unchanged userId means no read should have been attempted; since
	// "users" table was never created, a read attempt would have found no
	// table and, in LIVE mode, nulled userName.
	if newRow["userName"] != "Ada" {
		t.Fatalf("expected userName left untouched, got %v", newRow["userName"])
	}
}

func TestPropagateRemoteUpdatesReferencingRows(t *testing.T) {
	ctx := context.Background()
	adapter, registry, usersTD, _ := setupUsersOrders(t, schema.ViewLive)
	if err := adapter.MakeTable(ctx, "orders", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	if _, err := adapter.Write(ctx, "orders", float64(1), value.Row{"id": float64(1), "userId": float64(5), "userName": "Ada"}); err != nil {
		t.Fatalf("write order: %v", err)
	}
	idxTable := schema.SecondaryIndexTable("orders", "userId")
	if err := adapter.MakeTable(ctx, idxTable, nil); err != nil {
		t.Fatalf("MakeTable idx: %v", err)
	}
	if _, err := adapter.Write(ctx, idxTable, float64(5), value.Row{"pks": []interface{}{float64(1)}}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	p := New(adapter, registry)
	newUser := value.Row{"id": float64(5), "name": "Grace"}
	if err := p.PropagateRemote(ctx, usersTD, float64(5), newUser, false); err != nil {
		t.Fatalf("PropagateRemote: %v", err)
	}

	order, err := adapter.Read(ctx, "orders", float64(1))
	if err != nil {
		t.Fatalf("Read order: %v", err)
	}
	if order["userName"] != "Grace" {
		t.Fatalf("expected userName updated to Grace, got %v", order["userName"])
	}
}

func TestPropagateRemoteLiveNullsOnDelete(t *testing.T) {
	ctx := context.Background()
	adapter, registry, usersTD, _ := setupUsersOrders(t, schema.ViewLive)
	if err := adapter.MakeTable(ctx, "orders", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	if _, err := adapter.Write(ctx, "orders", float64(1), value.Row{"id": float64(1), "userId": float64(5), "userName": "Ada"}); err != nil {
		t.Fatalf("write order: %v", err)
	}
	idxTable := schema.SecondaryIndexTable("orders", "userId")
	if err := adapter.MakeTable(ctx, idxTable, nil); err != nil {
		t.Fatalf("MakeTable idx: %v", err)
	}
	if _, err := adapter.Write(ctx, idxTable, float64(5), value.Row{"pks": []interface{}{float64(1)}}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	p := New(adapter, registry)
	if err := p.PropagateRemote(ctx, usersTD, float64(5), nil, true); err != nil {
		t.Fatalf("PropagateRemote delete: %v", err)
	}

	order, err := adapter.Read(ctx, "orders", float64(1))
	if err != nil {
		t.Fatalf("Read order: %v", err)
	}
	if order["userName"] != nil {
		t.Fatalf("expected userName nulled after LIVE delete, got %v", order["userName"])
	}
}

func TestPropagateRemoteGhostKeepsStaleValue(t *testing.T) {
	ctx := context.Background()
	adapter, registry, usersTD, _ := setupUsersOrders(t, schema.ViewGhost)
	if err := adapter.MakeTable(ctx, "orders", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	if _, err := adapter.Write(ctx, "orders", float64(1), value.Row{"id": float64(1), "userId": float64(5), "userName": "Ada"}); err != nil {
		t.Fatalf("write order: %v", err)
	}
	idxTable := schema.SecondaryIndexTable("orders", "userId")
	if err := adapter.MakeTable(ctx, idxTable, nil); err != nil {
		t.Fatalf("MakeTable idx: %v", err)
	}
	if _, err := adapter.Write(ctx, idxTable, float64(5), value.Row{"pks": []interface{}{float64(1)}}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	p := New(adapter, registry)
	if err := p.PropagateRemote(ctx, usersTD, float64(5), nil, true); err != nil {
		t.Fatalf("PropagateRemote delete: %v", err)
	}

	order, err := adapter.Read(ctx, "orders", float64(1))
	if err != nil {
		t.Fatalf("Read order: %v", err)
	}
	if order["userName"] != "Ada" {
		t.Fatalf("expected GHOST mode to retain stale userName=Ada, got %v", order["userName"])
	}
}
