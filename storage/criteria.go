package storage

import "reflect"

// Matches reports whether rec satisfies every equality clause in criteria.
// Document backends round-trip values through JSON, so numeric comparison
// is widened to float64 rather than exact type equality.
func Matches(rec Record, criteria Criteria) bool {
	for field, want := range criteria.Where {
		got, ok := rec[field]
		if !ok {
			return false
		}
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
