package mutator

import "github.com/kvquery/kvquery/internal/value"

// compareValues orders two arbitrary column values: numerically when
// both resolve to a number, lexically on their stringified form
// otherwise. Used by both groupBy's pre-sort and orderBy.
func compareValues(a, b interface{}) int {
	an, aok := asNumber(a)
	bn, bok := asNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := value.Stringify(a), value.Stringify(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asNumber(x interface{}) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
