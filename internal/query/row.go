package query

import (
	"strconv"
	"strings"
)

// RowSchema names the keys of one legacy row format. The "property" and
// "filter" query keys carry the same rows under different names.
type RowSchema struct {
	Field    string
	Operator string
	Value    string
	Join     string
	DataType string
}

var (
	// PropertySchema reads rows like {"joiner","property","type","text"}.
	PropertySchema = RowSchema{
		Field:    "property",
		Operator: "type",
		Value:    "text",
		Join:     "joiner",
		DataType: "datatype",
	}

	// FilterSchema reads rows like {"join","field","type","val"}.
	FilterSchema = RowSchema{
		Field:    "field",
		Operator: "type",
		Value:    "val",
		Join:     "join",
		DataType: "datatype",
	}
)

// ParseRows decodes and cleans the rows stored under a property or filter
// key. Rows with an unknown operator or an unusable value are dropped.
func ParseRows(schema RowSchema, v any) []QueryRow {
	var rows []QueryRow
	for _, e := range elements(v) {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if row, ok := parseRow(schema, m); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func parseRow(schema RowSchema, m map[string]any) (QueryRow, bool) {
	opText, _ := asString(m[schema.Operator])
	op := Operator(opText)
	if op == "" {
		op = OpEqual
	}
	if !Known(op) {
		return QueryRow{}, false
	}

	joinText, _ := asString(m[schema.Join])
	row := QueryRow{
		Fields:    stringList(m[schema.Field]),
		Operator:  op,
		Join:      ParseJoiner(joinText),
		DataTypes: stringList(m[schema.DataType]),
	}

	value := m[schema.Value]
	switch ValueShape(op) {
	case ShapeNone:
		return row, true

	case ShapeArray:
		if IsInteger(op) {
			row.IDs = intList(value)
			return row, len(row.IDs) > 0
		}
		row.Values = stringList(value)
		return row, len(row.Values) > 0

	default:
		if IsSubquery(op) {
			if sub, ok := value.(map[string]any); ok {
				sub = Normalize(sub)
				row.Subquery = sub
				return row, len(sub) > 0
			}
		}
		if isList(value) {
			return QueryRow{}, false
		}
		text, ok := asString(value)
		if !ok || text == "" {
			return QueryRow{}, false
		}
		switch {
		case IsInteger(op):
			n, err := strconv.Atoi(text)
			if err != nil {
				return QueryRow{}, false
			}
			text = strconv.Itoa(n)
		case IsNumeric(op):
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return QueryRow{}, false
			}
		}
		row.Text = text
		return row, true
	}
}

// EncodeRows converts rows back to the legacy map format of schema.
func EncodeRows(schema RowSchema, rows []QueryRow) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, EncodeRow(schema, row))
	}
	return out
}

// EncodeRow converts one row to the legacy map format of schema.
func EncodeRow(schema RowSchema, row QueryRow) map[string]any {
	m := map[string]any{
		schema.Join:     string(row.Join),
		schema.Operator: string(row.Operator),
	}
	if len(row.Fields) > 0 {
		m[schema.Field] = append([]string(nil), row.Fields...)
	}
	if len(row.DataTypes) > 0 {
		m[schema.DataType] = append([]string(nil), row.DataTypes...)
	}
	switch {
	case row.Subquery != nil:
		m[schema.Value] = row.Subquery
	case len(row.IDs) > 0:
		m[schema.Value] = append([]int(nil), row.IDs...)
	case len(row.Values) > 0:
		m[schema.Value] = append([]string(nil), row.Values...)
	case row.Text != "":
		m[schema.Value] = row.Text
	}
	return m
}

// Datetime operators accepted on created and modified dates.
var datetimeOperators = map[Operator]Operator{
	OpLessThan:       OpGreaterOrEqual,
	OpGreaterOrEqual: OpLessThan,
	OpLessOrEqual:    OpGreaterThan,
	OpGreaterThan:    OpLessOrEqual,
	OpEqual:          OpNotEqual,
	OpNotEqual:       OpEqual,
	OpExists:         OpNotExists,
	OpNotExists:      OpExists,
}

// DatetimeReciprocal returns the negation of a datetime operator.
func DatetimeReciprocal(op Operator) Operator {
	if r, ok := datetimeOperators[op]; ok {
		return r
	}
	return op
}

// ParseDatetimeRows decodes the rows of the datetime key.
func ParseDatetimeRows(v any) []DatetimeRow {
	var rows []DatetimeRow
	for _, e := range elements(v) {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		join, _ := asString(m["join"])
		field, _ := asString(m["field"])
		opText, _ := asString(m["type"])
		value, _ := asString(m["val"])

		if field == "" {
			field = "created"
		}
		if field != "created" && field != "modified" {
			continue
		}
		op := Operator(strings.ToLower(opText))
		if op == "" {
			op = OpEqual
		}
		if _, ok := datetimeOperators[op]; !ok {
			continue
		}
		if op == OpExists || op == OpNotExists {
			value = ""
		} else if value == "" {
			continue
		}
		rows = append(rows, DatetimeRow{
			Join:     ParseJoiner(join),
			Field:    field,
			Operator: op,
			Value:    value,
		})
	}
	return rows
}

// EncodeDatetimeRows converts datetime rows back to maps.
func EncodeDatetimeRows(rows []DatetimeRow) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		m := map[string]any{
			"join":  string(row.Join),
			"field": row.Field,
			"type":  string(row.Operator),
		}
		if row.Value != "" {
			m["val"] = row.Value
		}
		out = append(out, m)
	}
	return out
}
