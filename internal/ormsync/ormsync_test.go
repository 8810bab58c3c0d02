package ormsync

import (
	"context"
	"testing"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/internal/value"
)

func arrayArityRelation() schema.ORMRelation {
	return schema.ORMRelation{
		ThisColumn: "tags", ThisArity: schema.ArityArray,
		FromTable: "tags", FromColumn: "posts", FromArity: schema.ArityArray,
	}
}

func TestSyncArrayArityAddsAndRemovesBackrefs(t *testing.T) {
	ctx := context.Background()
	adapter := memadapter.New()
	if err := adapter.MakeTable(ctx, "tags", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	for _, id := range []float64{1, 2, 3} {
		if _, err := adapter.Write(ctx, "tags", id, value.Row{"id": id}); err != nil {
			t.Fatalf("write tag: %v", err)
		}
	}

	td := schema.NewTableDescriptor("posts", "id", true)
	td.ORMRelations = append(td.ORMRelations, arrayArityRelation())
	s := New(adapter, schema.NewRegistry())

	newPost := value.Row{"id": float64(9), "tags": []interface{}{float64(1), float64(2)}}
	if err := s.Sync(ctx, td, float64(9), nil, newPost); err != nil {
		t.Fatalf("Sync insert: %v", err)
	}

	for _, id := range []float64{1, 2} {
		row, err := adapter.Read(ctx, "tags", id)
		if err != nil {
			t.Fatalf("Read tag %v: %v", id, err)
		}
		posts, _ := row["posts"].([]interface{})
		if len(posts) != 1 || posts[0] != float64(9) {
			t.Fatalf("expected tag %v to reference post 9, got %v", id, posts)
		}
	}

	// move from {1,2} to {2,3}: tag 1 loses the backref, tag 3 gains it.
	updatedPost := value.Row{"id": float64(9), "tags": []interface{}{float64(2), float64(3)}}
	if err := s.Sync(ctx, td, float64(9), newPost, updatedPost); err != nil {
		t.Fatalf("Sync update: %v", err)
	}

	tag1, err := adapter.Read(ctx, "tags", float64(1))
	if err != nil {
		t.Fatalf("Read tag1: %v", err)
	}
	if posts, _ := tag1["posts"].([]interface{}); len(posts) != 0 {
		t.Fatalf("expected tag 1 to no longer reference post 9, got %v", posts)
	}

	tag3, err := adapter.Read(ctx, "tags", float64(3))
	if err != nil {
		t.Fatalf("Read tag3: %v", err)
	}
	posts3, _ := tag3["posts"].([]interface{})
	if len(posts3) != 1 || posts3[0] != float64(9) {
		t.Fatalf("expected tag 3 to reference post 9, got %v", posts3)
	}
}

func TestSyncSingleArityOverwritesAndNulls(t *testing.T) {
	ctx := context.Background()
	adapter := memadapter.New()
	if err := adapter.MakeTable(ctx, "profiles", nil); err != nil {
		t.Fatalf("MakeTable: %v", err)
	}
	if _, err := adapter.Write(ctx, "profiles", float64(1), value.Row{"id": float64(1)}); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	rel := schema.ORMRelation{
		ThisColumn: "profileId", ThisArity: schema.ArityScalar,
		FromTable: "profiles", FromColumn: "userId", FromArity: schema.ArityScalar,
	}
	td := schema.NewTableDescriptor("users", "id", true)
	td.ORMRelations = append(td.ORMRelations, rel)
	s := New(adapter, schema.NewRegistry())

	newUser := value.Row{"id": float64(5), "profileId": float64(1)}
	if err := s.Sync(ctx, td, float64(5), nil, newUser); err != nil {
		t.Fatalf("Sync insert: %v", err)
	}
	profile, err := adapter.Read(ctx, "profiles", float64(1))
	if err != nil {
		t.Fatalf("Read profile: %v", err)
	}
	if profile["userId"] != float64(5) {
		t.Fatalf("expected profile.userId=5, got %v", profile["userId"])
	}

	if err := s.Sync(ctx, td, float64(5), newUser, nil); err != nil {
		t.Fatalf("Sync delete: %v", err)
	}
	profile, err = adapter.Read(ctx, "profiles", float64(1))
	if err != nil {
		t.Fatalf("Read profile: %v", err)
	}
	if profile["userId"] != nil {
		t.Fatalf("expected profile.userId nulled after delete, got %v", profile["userId"])
	}
}
