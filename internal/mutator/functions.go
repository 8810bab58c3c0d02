package mutator

import (
	"fmt"
	"strings"

	"github.com/kvquery/kvquery/internal/value"
)

// FuncKind distinguishes an aggregate function (collapses a row set to
// one value) from a scalar function (one value per row).
type FuncKind string

const (
	FuncAggregate FuncKind = "A"
	FuncScalar    FuncKind = "S"
)

// AggregateFunc computes one value from a set of rows and the
// function's literal argument list (column paths or constants).
type AggregateFunc func(rows []value.Row, args []string) interface{}

// ScalarFunc computes one value from a single row.
type ScalarFunc func(row value.Row, args []string) interface{}

// FunctionRegistry holds the functions actionArgs expressions may
// call, keyed by name and kind.
type FunctionRegistry struct {
	aggregates map[string]AggregateFunc
	scalars    map[string]ScalarFunc
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{aggregates: map[string]AggregateFunc{}, scalars: map[string]ScalarFunc{}}
}

// RegisterAggregate adds an aggregate (type A) function.
func (r *FunctionRegistry) RegisterAggregate(name string, fn AggregateFunc) {
	r.aggregates[strings.ToUpper(name)] = fn
}

// RegisterScalar adds a scalar (type S) function.
func (r *FunctionRegistry) RegisterScalar(name string, fn ScalarFunc) {
	r.scalars[strings.ToUpper(name)] = fn
}

// Lookup returns the function behind name and its kind, or an error if
// unknown (a schema-misuse fatal error per spec.md §7).
func (r *FunctionRegistry) Lookup(name string) (kind FuncKind, aggregate AggregateFunc, scalar ScalarFunc, err error) {
	key := strings.ToUpper(name)
	if fn, ok := r.aggregates[key]; ok {
		return FuncAggregate, fn, nil, nil
	}
	if fn, ok := r.scalars[key]; ok {
		return FuncScalar, nil, fn, nil
	}
	return "", nil, nil, fmt.Errorf("mutator: unknown function %q", name)
}

// DefaultFunctions returns the registry pre-loaded with the common
// aggregate/scalar functions actionArgs expressions reach for.
func DefaultFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()

	r.RegisterAggregate("COUNT", func(rows []value.Row, args []string) interface{} {
		return float64(len(rows))
	})
	r.RegisterAggregate("SUM", func(rows []value.Row, args []string) interface{} {
		var sum float64
		if len(args) == 0 {
			return sum
		}
		for _, row := range rows {
			if n, ok := asNumber(value.Path(row, args[0], false)); ok {
				sum += n
			}
		}
		return sum
	})
	r.RegisterAggregate("AVG", func(rows []value.Row, args []string) interface{} {
		if len(args) == 0 || len(rows) == 0 {
			return float64(0)
		}
		var sum float64
		var n int
		for _, row := range rows {
			if v, ok := asNumber(value.Path(row, args[0], false)); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			return float64(0)
		}
		return sum / float64(n)
	})
	r.RegisterAggregate("MIN", func(rows []value.Row, args []string) interface{} {
		return extremum(rows, args, -1)
	})
	r.RegisterAggregate("MAX", func(rows []value.Row, args []string) interface{} {
		return extremum(rows, args, 1)
	})

	r.RegisterScalar("UPPER", func(row value.Row, args []string) interface{} {
		if len(args) == 0 {
			return nil
		}
		s, _ := value.Path(row, args[0], false).(string)
		return strings.ToUpper(s)
	})
	r.RegisterScalar("LOWER", func(row value.Row, args []string) interface{} {
		if len(args) == 0 {
			return nil
		}
		s, _ := value.Path(row, args[0], false).(string)
		return strings.ToLower(s)
	})
	r.RegisterScalar("CONCAT", func(row value.Row, args []string) interface{} {
		var b strings.Builder
		for _, a := range args {
			v := value.Path(row, a, false)
			if v == nil {
				b.WriteString(a) // literal text passed straight through
				continue
			}
			b.WriteString(value.Stringify(v))
		}
		return b.String()
	})

	return r
}

func extremum(rows []value.Row, args []string, sign float64) interface{} {
	if len(args) == 0 {
		return nil
	}
	var best float64
	found := false
	for _, row := range rows {
		n, ok := asNumber(value.Path(row, args[0], false))
		if !ok {
			continue
		}
		if !found || sign*n > sign*best {
			best = n
			found = true
		}
	}
	if !found {
		return nil
	}
	return best
}
