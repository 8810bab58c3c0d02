package memadapter

import (
	"context"
	"testing"

	"github.com/kvquery/kvquery/internal/value"
)

func TestWriteAssignsPK(t *testing.T) {
	ctx := context.Background()
	a := New()
	if err := a.MakeTable(ctx, "users", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}

	row, err := a.Write(ctx, "users", nil, value.Row{"name": "Ada"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if row["id"] == nil {
		t.Fatal("expected an assigned pk")
	}

	got, err := a.Read(ctx, "users", row["id"])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("expected name=Ada, got %v", got["name"])
	}
}

func TestWriteIsCopyOnWrite(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.MakeTable(ctx, "users", nil)

	row, _ := a.Write(ctx, "users", float64(1), value.Row{"tags": []interface{}{"a"}})
	row["tags"].([]interface{})[0] = "mutated"

	stored, _ := a.Read(ctx, "users", float64(1))
	if stored["tags"].([]interface{})[0] != "a" {
		t.Error("mutating the returned row mutated stored state")
	}
}

func TestRangeReadOrdersByPK(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.MakeTable(ctx, "users", nil)

	_, _ = a.Write(ctx, "users", float64(3), value.Row{"name": "c"})
	_, _ = a.Write(ctx, "users", float64(1), value.Row{"name": "a"})
	_, _ = a.Write(ctx, "users", float64(2), value.Row{"name": "b"})

	var got []string
	err := a.RangeRead(ctx, "users", nil, nil, true, func(row value.Row, idx int) (bool, error) {
		got = append(got, row["name"].(string))
		return true, nil
	})
	if err != nil {
		t.Fatalf("RangeRead: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.MakeTable(ctx, "users", nil)
	_, _ = a.Write(ctx, "users", float64(1), value.Row{"name": "a"})

	if err := a.Delete(ctx, "users", float64(1)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := a.Read(ctx, "users", float64(1)); err == nil {
		t.Error("expected ErrNotFound after delete")
	}
}

func TestWriteStampsConfiguredPKColumn(t *testing.T) {
	ctx := context.Background()
	a := New()
	if err := a.MakeTable(ctx, "users", map[string]interface{}{"pkColumn": "userID"}); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}

	row, err := a.Write(ctx, "users", nil, value.Row{"name": "Ada"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if row["userID"] == nil {
		t.Fatal("expected pk stamped under configured pkColumn \"userID\"")
	}
	if row["id"] != nil {
		t.Errorf("did not expect a stray \"id\" field, got %v", row["id"])
	}

	got, err := a.Read(ctx, "users", row["userID"])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("expected name=Ada, got %v", got["name"])
	}

	index, _, err := a.GetIndex(ctx, "users", false)
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if len(index) != 1 || index[0] != row["userID"] {
		t.Errorf("expected GetIndex to return the configured pk, got %v", index)
	}
}

func TestGetIndexLengthOnly(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.MakeTable(ctx, "users", nil)
	_, _ = a.Write(ctx, "users", float64(1), value.Row{})
	_, _ = a.Write(ctx, "users", float64(2), value.Row{})

	_, n, err := a.GetIndex(ctx, "users", true)
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count=2, got %d", n)
	}
}
