package search

import "errors"

var (
	// ErrUnknownResourceType is returned for a resource type other than
	// resources, items, item_sets, media and annotations.
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrSubqueryDepth is returned when sub-queries nest deeper than the
	// configured maximum.
	ErrSubqueryDepth = errors.New("sub-query nesting too deep")
)
