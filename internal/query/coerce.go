package query

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// isEmpty reports whether v carries no usable value.
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case []int:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case []map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// isList reports whether v is an array-like value.
func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []int, []float64, map[string]any, []map[string]any:
		return true
	default:
		return false
	}
}

// asString converts a scalar to its trimmed string form.
func asString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case bool:
		if val {
			return "1", true
		}
		return "0", true
	default:
		return "", false
	}
}

// asInt converts a scalar to an int. Floats must be integral.
func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		n, err := val.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}

// elements flattens a list-like value into its elements. Maps keyed by
// index, as produced by bracketed form keys, are ordered numerically. A
// scalar is a one-element list.
func elements(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return indexLess(keys[i], keys[j]) })
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, val[k])
		}
		return out
	default:
		return []any{v}
	}
}

func indexLess(a, b string) bool {
	ia, errA := strconv.Atoi(a)
	ib, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return ia < ib
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// stringList returns the trimmed, non-empty, deduplicated strings of v.
// Nested lists are ignored.
func stringList(v any) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range elements(v) {
		s, ok := asString(e)
		if !ok || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// csvList is stringList that also splits strings on commas.
func csvList(v any) []string {
	var parts []any
	for _, e := range elements(v) {
		if s, ok := e.(string); ok {
			for _, p := range strings.Split(s, ",") {
				parts = append(parts, p)
			}
			continue
		}
		parts = append(parts, e)
	}
	return stringList(parts)
}

// intList returns the deduplicated ints of v, skipping non-numeric entries.
func intList(v any) []int {
	var out []int
	seen := map[int]bool{}
	for _, e := range elements(v) {
		n, ok := asInt(e)
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
