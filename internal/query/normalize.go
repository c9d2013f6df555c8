package query

import "strings"

// Keys with a dedicated cleaning rule.
const (
	KeyID                 = "id"
	KeySortIDs            = "sort_ids"
	KeyOwnerID            = "owner_id"
	KeySiteID             = "site_id"
	KeyResourceClassID    = "resource_class_id"
	KeyResourceTemplateID = "resource_template_id"
	KeyItemSetID          = "item_set_id"
	KeyAssetID            = "asset_id"
	KeyProperty           = "property"
	KeyFilter             = "filter"
	KeyDatetime           = "datetime"
	KeyFulltext           = "fulltext_search"
	KeySortBy             = "sort_by"
	KeySortOrder          = "sort_order"
	KeySortByDefault      = "sort_by_default"
	KeySortOrderDefault   = "sort_order_default"
	KeyResourceType       = "resource_type"
	KeyPage               = "page"
	KeyPerPage            = "per_page"
	KeyLimit              = "limit"
	KeyOffset             = "offset"
)

// Normalize cleans a raw query: empty keys are removed, values are coerced
// to the shape the compiler expects and consecutive rows are optimized.
// The result is stable under a second Normalize.
func Normalize(raw Raw) Raw {
	out := Raw{}
	for key, value := range raw {
		switch key {
		case KeySortByDefault, KeySortOrderDefault:
			// Kept even when empty: their presence asks for the default sort.
			s, _ := asString(value)
			out[key] = s

		case KeyID, KeySortIDs:
			if ids := csvList(value); len(ids) > 0 {
				out[key] = ids
			}

		case KeyOwnerID:
			if n, ok := asInt(value); ok {
				out[key] = n
			}

		case KeySiteID:
			if isList(value) {
				if ids := intList(value); len(ids) > 0 {
					out[key] = ids
				}
			} else if n, ok := asInt(value); ok {
				out[key] = n
			}

		case KeyResourceClassID, KeyResourceTemplateID, KeyItemSetID, KeyAssetID:
			if ids := intList(value); len(ids) > 0 {
				out[key] = ids
			}

		case KeyProperty:
			if rows := Optimize(ParseRows(PropertySchema, value)); len(rows) > 0 {
				out[key] = EncodeRows(PropertySchema, rows)
			}

		case KeyFilter:
			if rows := Optimize(ParseRows(FilterSchema, value)); len(rows) > 0 {
				out[key] = EncodeRows(FilterSchema, rows)
			}

		case KeyDatetime:
			if rows := ParseDatetimeRows(value); len(rows) > 0 {
				out[key] = EncodeDatetimeRows(rows)
			}

		case KeyFulltext, KeySortBy, KeySortOrder:
			if s, ok := asString(value); ok && s != "" {
				out[key] = s
			}

		case KeyResourceType:
			if types := stringList(value); len(types) > 0 {
				out[key] = types
			}

		case KeyPage, KeyPerPage, KeyLimit, KeyOffset:
			if n, ok := asInt(value); ok {
				out[key] = n
			}

		default:
			if isEmpty(value) {
				continue
			}
			if s, ok := value.(string); ok {
				value = strings.TrimSpace(s)
			}
			out[key] = value
		}
	}
	return out
}

// PropertyRows returns the property rows of a normalized query.
func PropertyRows(q Raw) []QueryRow {
	return ParseRows(PropertySchema, q[KeyProperty])
}

// FilterRows returns the filter rows of a normalized query.
func FilterRows(q Raw) []QueryRow {
	return ParseRows(FilterSchema, q[KeyFilter])
}

// DatetimeRows returns the datetime rows of a normalized query.
func DatetimeRows(q Raw) []DatetimeRow {
	return ParseDatetimeRows(q[KeyDatetime])
}

// StringsOf returns the string list stored under key.
func StringsOf(q Raw, key string) []string {
	return stringList(q[key])
}

// IntsOf returns the int list stored under key. A scalar is a one-element
// list.
func IntsOf(q Raw, key string) []int {
	return intList(q[key])
}

// IntOf returns the int stored under key.
func IntOf(q Raw, key string) (int, bool) {
	v, ok := q[key]
	if !ok {
		return 0, false
	}
	return asInt(v)
}

// StringOf returns the string stored under key.
func StringOf(q Raw, key string) string {
	s, _ := asString(q[key])
	return s
}

// Has reports whether key is present in q.
func Has(q Raw, key string) bool {
	_, ok := q[key]
	return ok
}
