package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fluxbase-eu/advancedsearch/internal/query"
)

// resourceTypes maps endpoint names to resource.resource_type values.
// "resources" searches every type.
var resourceTypes = map[string]string{
	"items":       "item",
	"item_sets":   "item_set",
	"media":       "media",
	"annotations": "annotation",
}

// ResourceTypes returns the accepted endpoint names.
func ResourceTypes() []string {
	return []string{"resources", "items", "item_sets", "media", "annotations"}
}

// ValidResourceType reports whether name is an accepted endpoint name.
func ValidResourceType(name string) bool {
	_, ok := resourceTypes[name]
	return ok || name == "resources"
}

// applyResourceType restricts the plan to the endpoint's type, or to the
// resource_type list of the query when the endpoint is "resources".
func (c *Compiler) applyResourceType(cc *compileContext, plan *Plan, endpoint string, q query.Raw) error {
	if endpoint == "" {
		endpoint = "resources"
	}

	var names []string
	if endpoint == "resources" {
		names = query.StringsOf(q, query.KeyResourceType)
	} else {
		names = []string{endpoint}
	}

	var types []string
	for _, name := range names {
		if name == "resources" {
			return nil
		}
		t, ok := resourceTypes[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownResourceType, name)
		}
		types = append(types, t)
	}

	switch len(types) {
	case 0:
	case 1:
		plan.addWhere(plan.col("resource_type") + " = " + cc.b.bind(types[0]))
	default:
		plan.addWhere(plan.col("resource_type") + " = ANY(" + cc.b.bind(types) + ")")
	}
	return nil
}

// splitZero separates the 0 id, meaning "none", from the real ids.
func splitZero(ids []int) (bool, []int) {
	hasZero := false
	rest := make([]int, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			hasZero = true
			continue
		}
		rest = append(rest, id)
	}
	return hasZero, rest
}

// columnFilter matches a nullable foreign key column against ids, where 0
// stands for NULL.
func columnFilter(cc *compileContext, column string, ids []int) string {
	hasZero, rest := splitZero(ids)

	var cond string
	switch len(rest) {
	case 0:
	case 1:
		cond = column + " = " + cc.b.bind(rest[0])
	default:
		cond = column + " = ANY(" + cc.b.bind(rest) + ")"
	}

	switch {
	case hasZero && cond == "":
		return column + " IS NULL"
	case hasZero:
		return "(" + column + " IS NULL OR " + cond + ")"
	default:
		return cond
	}
}

// membershipFilter matches resources through a link table, where 0 stands
// for "linked to nothing".
func membershipFilter(cc *compileContext, plan *Plan, table, memberCol, groupCol string, ids []int) string {
	hasZero, rest := splitZero(ids)
	id := plan.col("id")

	var conds []string
	if len(rest) > 0 {
		t := cc.alias("m")
		conds = append(conds, id+" IN (SELECT "+t+"."+memberCol+" FROM "+table+" "+t+
			" WHERE "+t+"."+groupCol+" = ANY("+cc.b.bind(rest)+"))")
	}
	if hasZero {
		t := cc.alias("m")
		conds = append(conds, "NOT EXISTS (SELECT 1 FROM "+table+" "+t+" WHERE "+t+"."+memberCol+" = "+id+")")
	}

	if len(conds) == 2 {
		return "(" + strings.Join(conds, " OR ") + ")"
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return ""
}

// applyStructural adds the id, owner, site, class, template, item set and
// asset filters.
func (c *Compiler) applyStructural(cc *compileContext, plan *Plan, q query.Raw) {
	if refs := query.StringsOf(q, query.KeyID); len(refs) > 0 {
		var ids []int
		for _, ref := range refs {
			if n, err := strconv.Atoi(ref); err == nil {
				ids = append(ids, n)
			}
		}
		if len(ids) == 0 {
			plan.addWhere("FALSE")
		} else {
			plan.addWhere(plan.col("id") + " = ANY(" + cc.b.bind(ids) + ")")
		}
	}

	if owner, ok := query.IntOf(q, query.KeyOwnerID); ok {
		plan.addWhere(plan.col("owner_id") + " = " + cc.b.bind(owner))
	}

	if ids := query.IntsOf(q, query.KeySiteID); len(ids) > 0 {
		plan.addWhere(membershipFilter(cc, plan, "resource_site", "resource_id", "site_id", ids))
	}

	if ids := query.IntsOf(q, query.KeyResourceClassID); len(ids) > 0 {
		plan.addWhere(columnFilter(cc, plan.col("resource_class_id"), ids))
	}

	if ids := query.IntsOf(q, query.KeyResourceTemplateID); len(ids) > 0 {
		plan.addWhere(columnFilter(cc, plan.col("resource_template_id"), ids))
	}

	if ids := query.IntsOf(q, query.KeyItemSetID); len(ids) > 0 {
		plan.addWhere(membershipFilter(cc, plan, "item_item_set", "item_id", "item_set_id", ids))
	}

	if ids := query.IntsOf(q, query.KeyAssetID); len(ids) > 0 {
		plan.addWhere(columnFilter(cc, plan.col("thumbnail_id"), ids))
	}
}

// applyFulltext joins the full text index and returns the rank expression
// used by the relevance sort.
func (c *Compiler) applyFulltext(cc *compileContext, plan *Plan, q query.Raw) string {
	text := query.StringOf(q, query.KeyFulltext)
	if text == "" {
		return ""
	}

	ft := cc.alias("ft")
	tsq := "plainto_tsquery('simple', " + cc.b.bind(text) + ")"
	plan.addJoin(&joinClause{
		inner: true,
		table: "fulltext_search",
		alias: ft,
		on: []string{
			ft + ".id = " + plan.col("id"),
			ft + ".tsv @@ " + tsq,
		},
	})
	return "ts_rank(" + ft + ".tsv, " + tsq + ")"
}

// datetimeBlock folds the datetime rows the same way as property rows.
func (c *Compiler) datetimeBlock(cc *compileContext, plan *Plan, rows []query.DatetimeRow) string {
	var sb strings.Builder
	for _, row := range rows {
		op := row.Operator
		join := row.Join
		if join == query.JoinNot {
			join = query.JoinAnd
			op = query.DatetimeReciprocal(op)
		}

		pred := datetimePredicate(cc, plan.col(row.Field), op, row.Value)
		switch {
		case sb.Len() == 0:
			sb.WriteString("(" + pred + ")")
		case join == query.JoinOr:
			sb.WriteString(" OR (" + pred + ")")
		default:
			sb.WriteString(" AND (" + pred + ")")
		}
	}
	return sb.String()
}

// datetimePredicate compares a timestamp column with a full or partial
// date. Partial dates cover a range: "2020-05" is the whole month.
func datetimePredicate(cc *compileContext, column string, op query.Operator, value string) string {
	switch op {
	case query.OpExists:
		return column + " IS NOT NULL"
	case query.OpNotExists:
		return column + " IS NULL"
	}

	from, to, ok := query.DateTimeRange(value)
	if !ok {
		return "FALSE"
	}
	ts := func(v string) string { return cc.b.bind(v) + "::timestamp" }

	switch op {
	case query.OpLessThan:
		return column + " < " + ts(from)
	case query.OpLessOrEqual:
		return column + " <= " + ts(to)
	case query.OpGreaterOrEqual:
		return column + " >= " + ts(from)
	case query.OpGreaterThan:
		return column + " > " + ts(to)
	case query.OpEqual:
		if from == to {
			return column + " = " + ts(from)
		}
		return column + " BETWEEN " + ts(from) + " AND " + ts(to)
	case query.OpNotEqual:
		if from == to {
			return column + " <> " + ts(from)
		}
		return column + " NOT BETWEEN " + ts(from) + " AND " + ts(to)
	}
	return "FALSE"
}
