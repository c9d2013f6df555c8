package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DropsEmptyKeys(t *testing.T) {
	got := Normalize(Raw{
		"fulltext_search": "  ",
		"owner_id":        "",
		"item_set_id":     []any{},
		"custom":          nil,
		"kept":            " x ",
	})

	assert.Equal(t, Raw{"kept": "x"}, got)
}

func TestNormalize_SentinelKeysSurviveEmpty(t *testing.T) {
	got := Normalize(Raw{
		"sort_by_default":    "",
		"sort_order_default": "",
	})

	assert.Equal(t, Raw{"sort_by_default": "", "sort_order_default": ""}, got)
}

func TestNormalize_IDs(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "csv string", value: "3, 1,3,,", want: []string{"3", "1"}},
		{name: "scalar int", value: 7, want: []string{"7"}},
		{name: "array", value: []any{"2", 2, " 5 "}, want: []string{"2", "5"}},
		{name: "empty", value: " , ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(Raw{"id": tt.value, "sort_ids": tt.value})
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got["id"])
			assert.Equal(t, tt.want, got["sort_ids"])
		})
	}
}

func TestNormalize_IntegerKeys(t *testing.T) {
	got := Normalize(Raw{
		"owner_id":             "12",
		"site_id":              "0",
		"resource_class_id":    []any{"4", "x", 4, "9"},
		"resource_template_id": "abc",
		"item_set_id":          map[string]any{"1": "8", "0": "3"},
		"asset_id":             5,
		"page":                 "2",
		"per_page":             "x",
	})

	assert.Equal(t, 12, got["owner_id"])
	assert.Equal(t, 0, got["site_id"])
	assert.Equal(t, []int{4, 9}, got["resource_class_id"])
	assert.NotContains(t, got, "resource_template_id")
	assert.Equal(t, []int{3, 8}, got["item_set_id"])
	assert.Equal(t, []int{5}, got["asset_id"])
	assert.Equal(t, 2, got["page"])
	assert.NotContains(t, got, "per_page")
}

func TestNormalize_SiteIDList(t *testing.T) {
	got := Normalize(Raw{"site_id": []any{"1", "0", "1"}})
	assert.Equal(t, []int{1, 0}, got["site_id"])
}

func TestNormalize_PropertyRows(t *testing.T) {
	got := Normalize(Raw{"property": []any{
		map[string]any{"property": "dcterms:title", "type": "eq", "text": " Rome "},
		map[string]any{"property": "dcterms:title", "type": "unknown", "text": "x"},
		map[string]any{"property": "dcterms:title", "type": "eq", "text": ""},
		map[string]any{"property": "dcterms:title", "type": "eq", "text": []any{"a"}},
		map[string]any{"property": "dcterms:date", "type": "ex", "text": "ignored", "joiner": "or"},
		map[string]any{"property": "dcterms:relation", "type": "res", "text": []any{"5", "x", 5, "7"}},
		map[string]any{"property": "dcterms:relation", "type": "res", "text": []any{"x"}},
		map[string]any{"property": "dcterms:date", "type": "yrgt", "text": "19x"},
	}})

	rows := PropertyRows(got)
	require.Len(t, rows, 3)

	assert.Equal(t, QueryRow{Fields: []string{"dcterms:title"}, Operator: OpEqual, Text: "Rome", Join: JoinAnd}, rows[0])
	assert.Equal(t, QueryRow{Fields: []string{"dcterms:date"}, Operator: OpExists, Join: JoinOr}, rows[1])
	assert.Equal(t, QueryRow{Fields: []string{"dcterms:relation"}, Operator: OpResource, IDs: []int{5, 7}, Join: JoinAnd}, rows[2])
}

func TestNormalize_FilterRowsUseTheirOwnKeys(t *testing.T) {
	got := Normalize(Raw{"filter": []any{
		map[string]any{"field": "dcterms:subject", "type": "in", "val": "paris", "join": "or", "datatype": "literal"},
	}})

	rows := FilterRows(got)
	require.Len(t, rows, 1)
	assert.Equal(t, QueryRow{
		Fields:    []string{"dcterms:subject"},
		Operator:  OpContains,
		Text:      "paris",
		Join:      JoinOr,
		DataTypes: []string{"literal"},
	}, rows[0])
}

func TestNormalize_ConsecutiveOrBecomesList(t *testing.T) {
	got := Normalize(Raw{"property": []any{
		map[string]any{"property": "subject", "type": "eq", "text": "A", "joiner": "or"},
		map[string]any{"property": "subject", "type": "eq", "text": "B", "joiner": "or"},
	}})

	rows := PropertyRows(got)
	require.Len(t, rows, 1)
	assert.Equal(t, QueryRow{
		Fields:   []string{"subject"},
		Operator: OpList,
		Values:   []string{"A", "B"},
		Join:     JoinOr,
	}, rows[0])
}

func TestNormalize_Datetime(t *testing.T) {
	got := Normalize(Raw{"datetime": []any{
		map[string]any{"val": "2020"},
		map[string]any{"field": "modified", "type": "gt", "val": "2021-01", "join": "or"},
		map[string]any{"field": "published", "type": "eq", "val": "2020"},
		map[string]any{"type": "between", "val": "2020"},
		map[string]any{"type": "eq", "val": ""},
		map[string]any{"type": "nex", "val": "x"},
	}})

	rows := DatetimeRows(got)
	require.Len(t, rows, 3)
	assert.Equal(t, DatetimeRow{Join: JoinAnd, Field: "created", Operator: OpEqual, Value: "2020"}, rows[0])
	assert.Equal(t, DatetimeRow{Join: JoinOr, Field: "modified", Operator: OpGreaterThan, Value: "2021-01"}, rows[1])
	assert.Equal(t, DatetimeRow{Join: JoinAnd, Field: "created", Operator: OpNotExists}, rows[2])
}

func TestNormalize_SubqueryRow(t *testing.T) {
	got := Normalize(Raw{"property": []any{
		map[string]any{"property": "dcterms:creator", "type": "resq", "text": map[string]any{
			"fulltext_search": " smith ",
			"page":            "",
		}},
	}})

	rows := PropertyRows(got)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"fulltext_search": "smith"}, rows[0].Subquery)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []Raw{
		{
			"id":              "1,2,2",
			"site_id":         []any{"1", "x"},
			"fulltext_search": " rome ",
			"resource_type":   "items",
			"sort_by_default": "",
		},
		{
			"property": []any{
				map[string]any{"property": "subject", "type": "eq", "text": "A", "joiner": "or"},
				map[string]any{"property": "subject", "type": "eq", "text": "B", "joiner": "or"},
				map[string]any{"property": "subject", "type": "eq", "text": "C", "joiner": "and"},
				map[string]any{"property": "title", "type": "neq", "text": "X"},
				map[string]any{"property": "title", "type": "neq", "text": "Y"},
				map[string]any{"property": "", "type": "dtp", "text": "uri"},
				map[string]any{"property": "date", "type": "yrlt", "text": "1900"},
			},
			"filter": map[string]any{
				"1": map[string]any{"field": "b", "type": "nex"},
				"0": map[string]any{"field": "a", "type": "lkq", "val": "fulltext_search=x"},
			},
			"datetime": []any{map[string]any{"type": "lte", "val": "2020-02"}},
		},
	}

	for i, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "input %d", i)
	}
}
