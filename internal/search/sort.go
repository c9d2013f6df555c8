package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fluxbase-eu/advancedsearch/internal/query"
)

// applySort adds the ORDER BY terms. The resource id always comes last so
// that pages are stable.
func (c *Compiler) applySort(ctx context.Context, cc *compileContext, plan *Plan, q query.Raw, rank string) error {
	id := plan.col("id")

	if ids := sortIDs(q); len(ids) > 0 {
		plan.addOrder("array_position("+cc.b.bind(ids)+"::int[], "+id+")", false)
		plan.addOrder(id, false)
		return nil
	}

	by, order := c.sortKeys(q)
	desc := strings.EqualFold(order, "desc")

	switch by {
	case "relevance":
		if rank == "" {
			break
		}
		// Best matches first unless the query asks otherwise.
		explicit := query.StringOf(q, query.KeySortOrder)
		plan.addOrder("MAX("+rank+")", explicit == "" || strings.EqualFold(explicit, "desc"))
		// Ties always list the newest resources first.
		plan.addOrder(id, true)
		return nil

	case "id":

	case "created", "modified", "title":
		plan.addOrder(plan.col(by), desc)

	default:
		ids, err := c.resolver.PropertyIDs(ctx, []string{by})
		if err != nil {
			return fmt.Errorf("failed to resolve sort property: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		sv := cc.alias("sv")
		on := []string{
			sv + ".resource_id = " + id,
			sv + ".property_id = " + cc.b.bind(ids[0]),
		}
		if c.opts.PublicOnly {
			on = append(on, sv+".is_public")
		}
		plan.sortJoins = append(plan.sortJoins, &joinClause{table: "value", alias: sv, on: on})
		plan.addOrder("MIN("+sv+".value)", desc)
	}

	plan.addOrder(id, desc)
	return nil
}

// sortKeys returns the sort field and direction, falling back to the
// query's defaults and then to the configured ones.
func (c *Compiler) sortKeys(q query.Raw) (string, string) {
	by := query.StringOf(q, query.KeySortBy)
	if by == "" {
		by = query.StringOf(q, query.KeySortByDefault)
	}
	if by == "" {
		by = c.opts.DefaultSortBy
	}

	order := query.StringOf(q, query.KeySortOrder)
	if order == "" {
		order = query.StringOf(q, query.KeySortOrderDefault)
	}
	if order == "" {
		order = c.opts.DefaultSortOrder
	}
	return by, order
}

func sortIDs(q query.Raw) []int {
	var ids []int
	for _, s := range query.StringsOf(q, query.KeySortIDs) {
		if n, err := strconv.Atoi(s); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}
