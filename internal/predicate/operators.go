package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kvquery/kvquery/internal/value"
)

// applyOp evaluates one leaf comparison once the left-hand value has
// been resolved from the row.
func applyOp(left interface{}, op string, right interface{}) (bool, error) {
	if isNullSentinel(right) {
		return applyNullSentinel(left, op, right)
	}

	switch op {
	case "=":
		return value.Equal(left, right), nil
	case "!=":
		return !value.Equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(left, op, right)
	case "IN":
		return inSet(left, right), nil
	case "NOT IN":
		return !inSet(left, right), nil
	case "REGEX":
		return matchRegex(left, right)
	case "LIKE":
		return matchLike(left, right), nil
	case "NOT LIKE":
		return !matchLike(left, right), nil
	case "BETWEEN":
		return between(left, right)
	case "HAVE":
		return arrayHave(left, right), nil
	case "NOT HAVE":
		return !arrayHave(left, right), nil
	case "INTERSECT":
		return arrayIntersect(left, right), nil
	case "NOT INTERSECT":
		return !arrayIntersect(left, right), nil
	default:
		return false, fmt.Errorf("predicate: unknown operator %q", op)
	}
}

func isNullSentinel(v interface{}) bool {
	s, ok := v.(string)
	return ok && (s == "NULL" || s == "NOT NULL")
}

func applyNullSentinel(left interface{}, op string, right interface{}) (bool, error) {
	isNull := left == nil
	sentinel := right.(string)
	switch op {
	case "=":
		if sentinel == "NULL" {
			return isNull, nil
		}
		return !isNull, nil
	case "LIKE":
		if sentinel == "NULL" {
			return isNull, nil
		}
		return !isNull, nil
	default:
		return false, fmt.Errorf("predicate: %s is only valid with = or LIKE, got %q", sentinel, op)
	}
}

func compare(left interface{}, op string, right interface{}) (bool, error) {
	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	ls, rs := value.Stringify(left), value.Stringify(right)
	switch op {
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	}
	return false, fmt.Errorf("predicate: unreachable comparison operator %q", op)
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

func inSet(left interface{}, right interface{}) bool {
	set, ok := right.([]interface{})
	if !ok {
		return false
	}
	for _, v := range set {
		if value.Equal(left, v) {
			return true
		}
	}
	return false
}

func matchRegex(left interface{}, right interface{}) (bool, error) {
	s, ok := left.(string)
	if !ok {
		return false, nil
	}
	pattern, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("predicate: REGEX requires a string pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("predicate: invalid REGEX pattern %q: %w", pattern, err)
	}
	return re.MatchString(s), nil
}

// matchLike implements case-insensitive substring matching.
func matchLike(left interface{}, right interface{}) bool {
	s, ok := left.(string)
	if !ok {
		return false
	}
	needle, ok := right.(string)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}

func between(left interface{}, right interface{}) (bool, error) {
	bounds, ok := right.([]interface{})
	if !ok || len(bounds) != 2 {
		return false, fmt.Errorf("predicate: BETWEEN requires a two-element [low, high] value")
	}
	ln, lok := asNumber(left)
	lo, lok2 := asNumber(bounds[0])
	hi, hok := asNumber(bounds[1])
	if lok && lok2 && hok {
		return ln >= lo && ln <= hi, nil
	}
	s := value.Stringify(left)
	return s >= value.Stringify(bounds[0]) && s <= value.Stringify(bounds[1]), nil
}

// arrayHave reports whether left (an array) contains right.
func arrayHave(left interface{}, right interface{}) bool {
	arr, ok := left.([]interface{})
	if !ok {
		return false
	}
	for _, v := range arr {
		if value.Equal(v, right) {
			return true
		}
	}
	return false
}

// arrayIntersect reports whether left and right (both arrays) share at
// least one element.
func arrayIntersect(left interface{}, right interface{}) bool {
	larr, lok := left.([]interface{})
	rarr, rok := right.([]interface{})
	if !lok || !rok {
		return false
	}
	for _, lv := range larr {
		for _, rv := range rarr {
			if value.Equal(lv, rv) {
				return true
			}
		}
	}
	return false
}
