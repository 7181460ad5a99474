package document

import (
	"encoding/json"
	"sort"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Filter is an AND of exact-value matches against SearchableDocument.Metadata.
// A nil or empty filter matches every document.
type Filter map[string]any

// Validate rejects values that cannot be compared for equality: maps,
// slices, structs and anything else that is not a scalar.
func (f Filter) Validate() error {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !IsScalar(f[k]) {
			return docerrors.InvalidFilter(k, f[k])
		}
	}
	return nil
}

// Matches reports whether metadata satisfies every key of the filter.
// A nil filter value matches a missing key or an explicit nil.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// IsScalar reports whether v is a value a filter can compare.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// scalarEqual compares two scalars. Numbers compare by value regardless of
// their Go type, so metadata decoded from JSON (float64) still matches a
// filter built with ints.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// toFloat widens any numeric scalar to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
