package search

import "github.com/fluxbase-eu/advancedsearch/internal/query"

// State carries what the previous row left behind in a block of rows: the
// value join it used and the properties that join was restricted to.
type State struct {
	PropertyIDs []int
	Alias       string
	Positive    bool
}

// CanReuseJoin reports whether a row can share the value join of the
// previous row. Both rows must be positive, target the same properties and
// be joined by "or"; an "and" needs a second value to satisfy it.
func CanReuseJoin(prev State, ids []int, positive bool, join query.Joiner) bool {
	if prev.Alias == "" || !prev.Positive || !positive || join != query.JoinOr {
		return false
	}
	return sameIDs(prev.PropertyIDs, ids)
}

func sameIDs(a, b []int) bool {
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
