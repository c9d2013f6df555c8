package search

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/fluxbase-eu/advancedsearch/internal/query"
)

// comparison maps the comparison operators to their SQL operator.
var comparison = map[query.Operator]string{
	query.OpLessThan:           "<",
	query.OpLessOrEqual:        "<=",
	query.OpGreaterOrEqual:     ">=",
	query.OpGreaterThan:        ">",
	query.OpNumLessThan:        "<",
	query.OpNumLessOrEqual:     "<=",
	query.OpNumGreaterOrEqual:  ">=",
	query.OpNumGreaterThan:     ">",
	query.OpYearEqual:          "=",
	query.OpYearLessThan:       "<",
	query.OpYearLessOrEqual:    "<=",
	query.OpYearGreaterOrEqual: ">=",
	query.OpYearGreaterThan:    ">",
}

// Stored values are cast only when they look like a number or start with
// a year, so that a stray literal never aborts the statement.
const (
	numericPattern = `'^-?[0-9]+(\.[0-9]+)?$'`
	yearPattern    = `'^-?[0-9]{1,9}([^0-9]|$)'`
)

func numericExpr(column string) string {
	return "(CASE WHEN " + column + " ~ " + numericPattern + " THEN " + column + "::numeric END)"
}

func yearExpr(column string) string {
	return "(CASE WHEN " + column + " ~ " + yearPattern +
		" THEN CAST(substring(" + column + " from '^-?[0-9]+') AS integer) END)"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the LIKE wildcards of s.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// linkedTitle matches the title of the resource a value links to.
func (c *Compiler) linkedTitle(cc *compileContext, a string, cond func(title string) string) string {
	lr := cc.alias("lr")
	sql := a + ".value_resource_id IN (SELECT " + lr + ".id FROM resource " + lr +
		" WHERE " + cond(lr+".title")
	if c.opts.PublicOnly {
		sql += " AND " + lr + ".is_public"
	}
	return sql + ")"
}

// matchContent applies cond to the literal, the uri and the linked title.
func (c *Compiler) matchContent(cc *compileContext, a string, cond func(column string) string) string {
	return cond(a+".value") + " OR " + cond(a+".uri") + " OR " + c.linkedTitle(cc, a, cond)
}

// valuePredicate builds the condition on the value row aliased a. Every
// check that can reject the row runs before anything is bound.
func (c *Compiler) valuePredicate(ctx context.Context, cc *compileContext, a string, op query.Operator, row query.QueryRow) (string, bool, error) {
	switch op {
	case query.OpEqual:
		p := cc.b.bind(row.Text)
		return c.matchContent(cc, a, func(col string) string { return col + " = " + p }), true, nil

	case query.OpContains:
		p := cc.b.bind("%" + escapeLike(row.Text) + "%")
		return c.matchContent(cc, a, func(col string) string { return col + " ILIKE " + p }), true, nil

	case query.OpStartsWith:
		p := cc.b.bind(escapeLike(row.Text) + "%")
		return c.matchContent(cc, a, func(col string) string { return col + " ILIKE " + p }), true, nil

	case query.OpEndsWith:
		p := cc.b.bind("%" + escapeLike(row.Text))
		return c.matchContent(cc, a, func(col string) string { return col + " ILIKE " + p }), true, nil

	case query.OpNear:
		p := cc.b.bind(row.Text)
		cond := func(col string) string { return "soundex(" + col + ") = soundex(" + p + ")" }
		return cond(a+".value") + " OR " + c.linkedTitle(cc, a, cond), true, nil

	case query.OpMatches:
		if _, err := regexp.Compile(row.Text); err != nil {
			return "", false, nil
		}
		p := cc.b.bind(row.Text)
		return c.matchContent(cc, a, func(col string) string { return col + " ~ " + p }), true, nil

	case query.OpList:
		p := cc.b.bind(row.Values)
		return c.matchContent(cc, a, func(col string) string { return col + " = ANY(" + p + ")" }), true, nil

	case query.OpLessThan, query.OpLessOrEqual, query.OpGreaterOrEqual, query.OpGreaterThan:
		return a + ".value " + comparison[op] + " " + cc.b.bind(row.Text), true, nil

	case query.OpNumLessThan, query.OpNumLessOrEqual, query.OpNumGreaterOrEqual, query.OpNumGreaterThan:
		n, err := strconv.ParseFloat(row.Text, 64)
		if err != nil {
			return "", false, nil
		}
		return numericExpr(a+".value") + " " + comparison[op] + " " + cc.b.bind(n) + "::numeric", true, nil

	case query.OpYearEqual, query.OpYearLessThan, query.OpYearLessOrEqual,
		query.OpYearGreaterOrEqual, query.OpYearGreaterThan:
		n, err := strconv.Atoi(row.Text)
		if err != nil {
			return "", false, nil
		}
		return yearExpr(a+".value") + " " + comparison[op] + " " + cc.b.bind(n), true, nil

	case query.OpResource:
		return a + ".value_resource_id = ANY(" + cc.b.bind(row.IDs) + ")", true, nil

	case query.OpResourceQuery:
		return c.subqueryCondition(ctx, cc, a+".value_resource_id", row)

	case query.OpExists:
		return a + ".id IS NOT NULL", true, nil

	case query.OpType:
		switch strings.ToLower(row.Text) {
		case "literal":
			return literalType(a), true, nil
		case "resource":
			return resourceType(a), true, nil
		case "uri":
			return uriType(a), true, nil
		}
		return "", false, nil

	case query.OpTypeLiteral:
		return literalType(a), true, nil

	case query.OpTypeResource:
		return resourceType(a), true, nil

	case query.OpTypeURI:
		return uriType(a), true, nil

	case query.OpDataType:
		return a + ".type = ANY(" + cc.b.bind(row.Values) + ")", true, nil
	}
	return "", false, nil
}

func literalType(a string) string {
	return a + ".value_resource_id IS NULL AND " + a + ".uri IS NULL"
}

func resourceType(a string) string {
	return a + ".value_resource_id IS NOT NULL"
}

func uriType(a string) string {
	return a + ".uri IS NOT NULL"
}

// valueScope returns the conditions restricting the value alias v to the
// row's properties and to visible values.
func (c *Compiler) valueScope(cc *compileContext, v string, ids []int) []string {
	var conds []string
	if len(ids) > 0 {
		conds = append(conds, v+".property_id = ANY("+cc.b.bind(ids)+")")
	}
	if c.opts.PublicOnly {
		conds = append(conds, v+".is_public")
	}
	return conds
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// rootPredicate builds the condition of operators tested on the resource
// itself: links pointing at it, value counts and duplicates.
func (c *Compiler) rootPredicate(ctx context.Context, cc *compileContext, plan *Plan, op query.Operator, ids []int, row query.QueryRow) (string, bool, error) {
	id := plan.col("id")

	switch op {
	case query.OpLinked, query.OpLinkedBy, query.OpLinkedQuery:
		lv := cc.alias("lv")
		conds := []string{lv + ".value_resource_id = " + id}
		switch op {
		case query.OpLinkedBy:
			conds = append(conds, lv+".resource_id = ANY("+cc.b.bind(row.IDs)+")")
		case query.OpLinkedQuery:
			cond, ok, err := c.subqueryCondition(ctx, cc, lv+".resource_id", row)
			if err != nil || !ok {
				return "", false, err
			}
			if cond == "FALSE" {
				return "FALSE", true, nil
			}
			conds = append(conds, cond)
		}
		conds = append(conds, c.valueScope(cc, lv, ids)...)
		return "EXISTS (SELECT 1 FROM value " + lv + where(conds) + ")", true, nil

	case query.OpExistsSingle, query.OpNotExistsSingle, query.OpExistsMany, query.OpNotExistsMany:
		cv := cc.alias("cv")
		having := " = 1"
		if op == query.OpExistsMany || op == query.OpNotExistsMany {
			having = " > 1"
		}
		in := " IN "
		if op == query.OpNotExistsSingle || op == query.OpNotExistsMany {
			in = " NOT IN "
		}
		return id + in + "(SELECT " + cv + ".resource_id FROM value " + cv +
			where(c.valueScope(cc, cv, ids)) +
			" GROUP BY " + cv + ".resource_id HAVING COUNT(" + cv + ".id)" + having + ")", true, nil
	}

	if query.IsDup(op) {
		dv := cc.alias("dv")
		group := []string{dv + ".resource_id", dv + ".property_id"}
		for _, col := range dupColumns(op) {
			group = append(group, dv+"."+col)
		}
		// GROUP BY puts NULLs together, so values lacking a selected column
		// would otherwise count as duplicates of each other.
		conds := c.valueScope(cc, dv, ids)
		for _, col := range dupContentColumns(op) {
			conds = append(conds, dv+"."+col+" IS NOT NULL")
		}
		return id + " IN (SELECT " + dv + ".resource_id FROM value " + dv +
			where(conds) +
			" GROUP BY " + strings.Join(group, ", ") +
			" HAVING COUNT(" + dv + ".id) > 1)", true, nil
	}

	return "", false, nil
}

// dupColumns returns the value columns compared by a duplicate operator.
// The letters after "dup" select them: v value, r linked resource, u uri,
// none of those meaning all three; t adds the type and l the language.
func dupColumns(op query.Operator) []string {
	suffix := dupSuffix(op)

	cols := dupContentColumns(op)
	if len(cols) == 0 {
		cols = []string{"value", "value_resource_id", "uri"}
	}
	if strings.ContainsRune(suffix, 't') {
		cols = append(cols, "type")
	}
	if strings.ContainsRune(suffix, 'l') {
		cols = append(cols, "lang")
	}
	return cols
}

// dupContentColumns returns the content columns named explicitly by the
// v, r and u letters.
func dupContentColumns(op query.Operator) []string {
	suffix := dupSuffix(op)

	var cols []string
	if strings.ContainsRune(suffix, 'v') {
		cols = append(cols, "value")
	}
	if strings.ContainsRune(suffix, 'r') {
		cols = append(cols, "value_resource_id")
	}
	if strings.ContainsRune(suffix, 'u') {
		cols = append(cols, "uri")
	}
	return cols
}

func dupSuffix(op query.Operator) string {
	return strings.TrimPrefix(strings.TrimPrefix(string(op), "n"), "dup")
}
