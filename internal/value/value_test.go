package value

import "testing"

func TestPathDotted(t *testing.T) {
	row := Row{
		"user": map[string]interface{}{
			"name": "Ada",
			"tags": []interface{}{"a", "b", "c"},
		},
	}

	if got := Path(row, "user.name", false); got != "Ada" {
		t.Errorf("expected Ada, got %v", got)
	}
	if got := Path(row, "user.tags.length", false); got != float64(3) {
		t.Errorf("expected 3, got %v", got)
	}
	if got := Path(row, "user.missing", false); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestPathIgnoreFirstSegment(t *testing.T) {
	row := Row{"name": "Ada"}
	if got := Path(row, "users.name", true); got != "Ada" {
		t.Errorf("expected Ada, got %v", got)
	}
}

func TestEqual(t *testing.T) {
	a := []interface{}{float64(1), float64(2)}
	b := []interface{}{float64(1), float64(2)}
	c := []interface{}{float64(2), float64(1)}

	if !Equal(a, b) {
		t.Error("expected equal arrays to be equal")
	}
	if Equal(a, c) {
		t.Error("expected differently-ordered arrays to be unequal")
	}
}

func TestCloneRowIsIndependent(t *testing.T) {
	original := Row{"tags": []interface{}{"a", "b"}}
	clone := CloneRow(original)

	clone["tags"].([]interface{})[0] = "z"

	if original["tags"].([]interface{})[0] != "a" {
		t.Error("mutating clone mutated original")
	}
}

func TestAsStringSlice(t *testing.T) {
	got := AsStringSlice([]interface{}{"b", "a", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}
