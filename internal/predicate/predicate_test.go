package predicate

import (
	"testing"

	"github.com/kvquery/kvquery/internal/value"
)

func TestEvalLeafEquals(t *testing.T) {
	row := value.Row{"age": float64(30)}
	ok, err := Evaluate(Context{}, &Leaf{Path: "age", Op: "=", Value: float64(30)}, row, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected age=30 to match")
	}
}

func TestEvalListANDShortCircuits(t *testing.T) {
	row := value.Row{"age": float64(30), "city": "A"}
	list := List{
		&Leaf{Path: "age", Op: "=", Value: float64(99)},
		"AND",
		&Leaf{Path: "city", Op: "=", Value: "A"},
	}
	ok, err := Evaluate(Context{}, list, row, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected AND chain to fail when first leaf fails")
	}
}

func TestEvalListORDoesNotSuppressEarlierTrue(t *testing.T) {
	row := value.Row{"age": float64(30), "city": "Z"}
	// (age=30) AND (city=A) OR (age=30) — the earlier AND clause is
	// false, but the OR with a later true leaf should still pass once
	// combined left-to-right per the resolved evaluation rule.
	list := List{
		&Leaf{Path: "age", Op: "=", Value: float64(30)},
		"AND",
		&Leaf{Path: "city", Op: "=", Value: "A"},
		"OR",
		&Leaf{Path: "age", Op: "=", Value: float64(30)},
	}
	ok, err := Evaluate(Context{}, list, row, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected OR clause to rescue the overall result")
	}
}

func TestEvalBetween(t *testing.T) {
	row := value.Row{"age": float64(30)}
	ok, err := Evaluate(Context{}, &Leaf{Path: "age", Op: "BETWEEN", Value: []interface{}{float64(10), float64(40)}}, row, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected 30 to be BETWEEN 10 and 40")
	}
}

func TestEvalLike(t *testing.T) {
	row := value.Row{"name": "Ada Lovelace"}
	ok, _ := Evaluate(Context{}, &Leaf{Path: "name", Op: "LIKE", Value: "lovelace"}, row, 0)
	if !ok {
		t.Error("expected case-insensitive LIKE substring match")
	}
}

func TestEvalHave(t *testing.T) {
	row := value.Row{"tags": []interface{}{"a", "b"}}
	ok, _ := Evaluate(Context{}, &Leaf{Path: "tags", Op: "HAVE", Value: "b"}, row, 0)
	if !ok {
		t.Error("expected tags to HAVE 'b'")
	}
}

func TestEvalNullSentinel(t *testing.T) {
	row := value.Row{"deletedAt": nil}
	ok, _ := Evaluate(Context{}, &Leaf{Path: "deletedAt", Op: "=", Value: "NULL"}, row, 0)
	if !ok {
		t.Error("expected deletedAt=NULL sentinel to match a nil value")
	}
}

func TestEvalDottedPathLength(t *testing.T) {
	row := value.Row{"tags": []interface{}{"a", "b", "c"}}
	ok, _ := Evaluate(Context{}, &Leaf{Path: "tags.length", Op: "=", Value: float64(3)}, row, 0)
	if !ok {
		t.Error("expected tags.length=3 to match")
	}
}

type fakeResolver struct {
	matches map[string]bool
}

func (f *fakeResolver) Resolve(columns []string, op string, queryValue interface{}) (map[string]bool, error) {
	return f.matches, nil
}

func TestEvalSearchLeaf(t *testing.T) {
	ctx := Context{Search: &fakeResolver{matches: map[string]bool{"1": true}}}
	row := value.Row{"id": float64(1)}
	ok, err := Evaluate(ctx, &Leaf{Path: "search(body)", Op: "=", Value: "brown fox"}, row, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected search leaf to match pk 1")
	}
}
