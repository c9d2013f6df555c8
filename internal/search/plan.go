package search

import (
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

// joinClause is a join on the root resource. Conditions are raw SQL with
// positional parameters already bound.
type joinClause struct {
	inner bool
	table string
	alias string
	on    []string
}

type orderTerm struct {
	expr string
	desc bool
}

// Plan collects the pieces of one SELECT over the resource table. Filter
// joins and conditions shape the result set; sort joins and order terms
// only matter to the paginated id listing, so the count statement leaves
// them out.
type Plan struct {
	root      string
	joins     []*joinClause
	where     []string
	sortJoins []*joinClause
	order     []orderTerm
}

func newPlan(root string) *Plan {
	return &Plan{root: root}
}

// col qualifies a resource column with the root alias.
func (p *Plan) col(name string) string {
	return p.root + "." + name
}

func (p *Plan) addJoin(j *joinClause) {
	p.joins = append(p.joins, j)
}

func (p *Plan) addWhere(cond string) {
	if cond != "" {
		p.where = append(p.where, cond)
	}
}

func (p *Plan) addOrder(expr string, desc bool) {
	p.order = append(p.order, orderTerm{expr: expr, desc: desc})
}

func applyJoins(ds *goqu.SelectDataset, joins []*joinClause) *goqu.SelectDataset {
	for _, j := range joins {
		table := goqu.T(j.table).As(j.alias)
		on := goqu.On(goqu.L(strings.Join(j.on, " AND ")))
		if j.inner {
			ds = ds.InnerJoin(table, on)
		} else {
			ds = ds.LeftJoin(table, on)
		}
	}
	return ds
}

// filtered selects the distinct ids of matching resources.
func (p *Plan) filtered() *goqu.SelectDataset {
	ds := goqu.Dialect("postgres").
		From(goqu.T("resource").As(p.root)).
		Select(goqu.I(p.col("id")))
	ds = applyJoins(ds, p.joins)

	if len(p.where) > 0 {
		conds := make([]string, len(p.where))
		for i, w := range p.where {
			conds[i] = "(" + w + ")"
		}
		ds = ds.Where(goqu.L(strings.Join(conds, " AND ")))
	}

	// Value joins multiply rows; grouping on the primary key also lets the
	// order terms reference any resource column.
	return ds.GroupBy(goqu.I(p.col("id")))
}

// idsSQL renders the ordered id listing. A limit of zero means no limit.
func (p *Plan) idsSQL(limit, offset int) (string, error) {
	ds := applyJoins(p.filtered(), p.sortJoins)

	order := make([]exp.OrderedExpression, 0, len(p.order))
	for _, o := range p.order {
		if o.desc {
			order = append(order, goqu.L(o.expr).Desc().NullsLast())
		} else {
			order = append(order, goqu.L(o.expr).Asc().NullsLast())
		}
	}
	if len(order) > 0 {
		ds = ds.Order(order...)
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}

	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build search statement: %w", err)
	}
	return sql, nil
}

// countSQL renders the total count of matching resources.
func (p *Plan) countSQL() (string, error) {
	sql, _, err := goqu.Dialect("postgres").
		From(p.filtered().As("ids")).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build count statement: %w", err)
	}
	return sql, nil
}

// subselectSQL renders the unordered id listing embedded by inline
// sub-queries.
func (p *Plan) subselectSQL() (string, error) {
	sql, _, err := p.filtered().ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build sub-query: %w", err)
	}
	return sql, nil
}
