// Package search compiles normalized queries into parameterized PostgreSQL
// statements over the resource/value tables and executes them.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/query"
	"github.com/rs/zerolog/log"
)

// Sub-query modes.
const (
	SubqueryEager  = "eager"
	SubqueryInline = "inline"
)

const rootAlias = "res"

// PropertyResolver maps property terms and numeric ids to property ids.
// Unknown references resolve to nothing rather than to an error.
type PropertyResolver interface {
	PropertyIDs(ctx context.Context, refs []string) ([]int, error)
}

// SubSearcher runs a sub-query and returns the matching ids.
type SubSearcher interface {
	SearchIDs(ctx context.Context, resourceType string, q query.Raw) ([]int, error)
}

// Options control compilation.
type Options struct {
	PublicOnly       bool
	SubqueryMode     string
	MaxDepth         int
	DefaultSortBy    string
	DefaultSortOrder string
	DefaultPerPage   int
	MaxPerPage       int
	Aliases          map[string][]string
}

// OptionsFromConfig converts the search configuration section.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		PublicOnly:       cfg.PublicOnly,
		SubqueryMode:     cfg.SubqueryMode,
		MaxDepth:         cfg.MaxSubqueryDepth,
		DefaultSortBy:    cfg.DefaultSortBy,
		DefaultSortOrder: cfg.DefaultSortOrder,
		DefaultPerPage:   cfg.DefaultPerPage,
		MaxPerPage:       cfg.MaxPerPage,
		Aliases:          cfg.Aliases,
	}
}

func (o Options) withDefaults() Options {
	if o.SubqueryMode == "" {
		o.SubqueryMode = SubqueryEager
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.DefaultSortBy == "" {
		o.DefaultSortBy = "id"
	}
	if o.DefaultSortOrder == "" {
		o.DefaultSortOrder = "asc"
	}
	if o.DefaultPerPage <= 0 {
		o.DefaultPerPage = 25
	}
	if o.MaxPerPage <= 0 {
		o.MaxPerPage = 1000
	}
	if o.MaxPerPage < o.DefaultPerPage {
		o.MaxPerPage = o.DefaultPerPage
	}
	return o
}

// Compiled is a compiled search.
type Compiled struct {
	ResourceType string      `json:"resource_type"`
	Query        query.Raw   `json:"query"`
	SQL          string      `json:"sql"`
	Args         []any       `json:"args"`
	CountSQL     string      `json:"count_sql"`
	CountArgs    []any       `json:"count_args"`
	Page         int         `json:"page"`
	PerPage      int         `json:"per_page"`
	Limit        int         `json:"limit"`
	Offset       int         `json:"offset"`
	Rows         int         `json:"rows"`
	Dropped      int         `json:"dropped"`
	Validation   *Validation `json:"validation,omitempty"`
}

// Compiler turns normalized queries into SQL.
type Compiler struct {
	resolver PropertyResolver
	sub      SubSearcher
	opts     Options
	metrics  *observability.Metrics
}

// NewCompiler creates a compiler resolving properties through resolver.
func NewCompiler(resolver PropertyResolver, opts Options) *Compiler {
	return &Compiler{
		resolver: resolver,
		opts:     opts.withDefaults(),
	}
}

// SetSubSearcher sets the searcher running eager sub-queries.
func (c *Compiler) SetSubSearcher(s SubSearcher) {
	c.sub = s
}

// SetMetrics sets the metrics instance.
func (c *Compiler) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Options returns the effective options.
func (c *Compiler) Options() Options {
	return c.opts
}

// compileContext is shared by a statement and its inline sub-selects.
type compileContext struct {
	b       *binder
	depth   int
	aliases *int
}

func newCompileContext(depth int) *compileContext {
	n := 0
	return &compileContext{b: &binder{}, depth: depth, aliases: &n}
}

// alias returns a table alias unique within the statement.
func (cc *compileContext) alias(prefix string) string {
	*cc.aliases++
	return prefix + strconv.Itoa(*cc.aliases)
}

func (cc *compileContext) nested() *compileContext {
	return &compileContext{b: cc.b, depth: cc.depth + 1, aliases: cc.aliases}
}

type depthKey struct{}

// withDepth marks ctx as running a sub-query at the given nesting depth.
func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

type planInfo struct {
	rows    int
	dropped int
	rank    string // ts_rank expression when searching full text
}

// Compile compiles raw for the given endpoint resource type, paginated.
func (c *Compiler) Compile(ctx context.Context, resourceType string, raw query.Raw) (*Compiled, error) {
	return c.compile(ctx, resourceType, raw, true)
}

// CompileAll compiles raw without pagination.
func (c *Compiler) CompileAll(ctx context.Context, resourceType string, raw query.Raw) (*Compiled, error) {
	return c.compile(ctx, resourceType, raw, false)
}

func (c *Compiler) compile(ctx context.Context, resourceType string, raw query.Raw, paginate bool) (*Compiled, error) {
	start := time.Now()

	depth := depthFrom(ctx)
	if depth > c.opts.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d", ErrSubqueryDepth, depth, c.opts.MaxDepth)
	}

	q := query.Normalize(raw)
	cc := newCompileContext(depth)

	plan, info, err := c.buildPlan(ctx, cc, rootAlias, resourceType, q)
	if err != nil {
		return nil, err
	}
	filterArgs := cc.b.len()

	if err := c.applySort(ctx, cc, plan, q, info.rank); err != nil {
		return nil, err
	}

	compiled := &Compiled{
		ResourceType: resourceType,
		Query:        q,
		Rows:         info.rows,
		Dropped:      info.dropped,
	}
	if paginate {
		p := c.pagination(q)
		compiled.Page, compiled.PerPage = p.page, p.perPage
		compiled.Limit, compiled.Offset = p.limit, p.offset
	}

	if compiled.SQL, err = plan.idsSQL(compiled.Limit, compiled.Offset); err != nil {
		return nil, err
	}
	if compiled.CountSQL, err = plan.countSQL(); err != nil {
		return nil, err
	}
	compiled.Args = cc.b.args
	compiled.CountArgs = cc.b.args[:filterArgs]

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordCompile(duration, info.rows, info.dropped)
	}
	log.Debug().
		Str("resource_type", resourceType).
		Int("depth", depth).
		Int("rows", info.rows).
		Int("dropped", info.dropped).
		Int("args", len(compiled.Args)).
		Dur("duration", duration).
		Msg("Compiled search query")

	return compiled, nil
}

// buildPlan adds every filter of q to a plan rooted at root.
func (c *Compiler) buildPlan(ctx context.Context, cc *compileContext, root, resourceType string, q query.Raw) (*Plan, *planInfo, error) {
	plan := newPlan(root)
	info := &planInfo{}

	if err := c.applyResourceType(cc, plan, resourceType, q); err != nil {
		return nil, nil, err
	}
	if c.opts.PublicOnly {
		plan.addWhere(plan.col("is_public"))
	}
	c.applyStructural(cc, plan, q)
	info.rank = c.applyFulltext(cc, plan, q)
	plan.addWhere(c.datetimeBlock(cc, plan, query.DatetimeRows(q)))

	for _, rows := range [][]query.QueryRow{query.PropertyRows(q), query.FilterRows(q)} {
		block, compiled, dropped, err := c.buildRowsBlock(ctx, cc, plan, rows)
		if err != nil {
			return nil, nil, err
		}
		info.rows += compiled
		info.dropped += dropped
		plan.addWhere(block)
	}
	return plan, info, nil
}

// buildRowsBlock folds one block of rows left to right. Each block starts
// with a fresh state, so joins are never shared between blocks.
func (c *Compiler) buildRowsBlock(ctx context.Context, cc *compileContext, plan *Plan, rows []query.QueryRow) (string, int, int, error) {
	var sb strings.Builder
	state := State{}
	compiled, dropped := 0, 0

	for _, row := range rows {
		pred, next, ok, err := c.compileRow(ctx, cc, plan, state, row)
		if err != nil {
			return "", 0, 0, err
		}
		if !ok {
			dropped++
			continue
		}
		state = next

		switch {
		case sb.Len() == 0:
			sb.WriteString("(" + pred + ")")
		case row.Join == query.JoinOr:
			sb.WriteString(" OR (" + pred + ")")
		default:
			sb.WriteString(" AND (" + pred + ")")
		}
		compiled++
	}
	return sb.String(), compiled, dropped, nil
}

// hasValue checks the row carries the value its operator expects.
func hasValue(row query.QueryRow) bool {
	switch query.ValueShape(row.Operator) {
	case query.ShapeNone:
		return query.Known(row.Operator)
	case query.ShapeArray:
		if query.IsInteger(row.Operator) {
			return len(row.IDs) > 0
		}
		return len(row.Values) > 0
	default:
		if query.IsSubquery(row.Operator) && len(row.Subquery) > 0 {
			return true
		}
		return strings.TrimSpace(row.Text) != ""
	}
}

// compileRow compiles one row into a predicate for the WHERE clause,
// adding the joins it needs to plan. ok is false when the row is unusable
// and must be skipped.
func (c *Compiler) compileRow(ctx context.Context, cc *compileContext, plan *Plan, prev State, row query.QueryRow) (string, State, bool, error) {
	if !query.Known(row.Operator) || !hasValue(row) {
		return "", prev, false, nil
	}

	op := row.Operator
	join := row.Join
	if join == query.JoinNot {
		join = query.JoinAnd
		op = query.Reciprocal(op)
	} else if join != query.JoinOr {
		join = query.JoinAnd
	}

	positive := true
	if query.IsNegative(op) && op != query.OpNotExistsSingle && op != query.OpNotExistsMany {
		op = query.Reciprocal(op)
		positive = false
	}

	var ids []int
	if refs := c.expandAliases(row.Fields); len(refs) > 0 {
		var err error
		ids, err = c.resolver.PropertyIDs(ctx, refs)
		if err != nil {
			return "", prev, false, fmt.Errorf("failed to resolve properties: %w", err)
		}
		if len(ids) == 0 {
			// The row names properties that do not exist.
			return "FALSE", State{}, true, nil
		}
	}

	if isRootLevel(op) {
		pred, ok, err := c.rootPredicate(ctx, cc, plan, op, ids, row)
		if err != nil || !ok {
			return "", prev, false, err
		}
		if !positive {
			pred = "NOT (" + pred + ")"
		}
		return pred, State{}, true, nil
	}

	reuse := CanReuseJoin(prev, ids, positive, join)
	alias := prev.Alias
	if !reuse {
		alias = cc.alias("v")
	}

	pred, ok, err := c.valuePredicate(ctx, cc, alias, op, row)
	if err != nil || !ok {
		return "", prev, false, err
	}
	if len(row.DataTypes) > 0 {
		pred = "(" + pred + ") AND " + alias + ".type = ANY(" + cc.b.bind(row.DataTypes) + ")"
	}

	if !reuse {
		on := []string{alias + ".resource_id = " + plan.col("id")}
		if len(ids) > 0 {
			on = append(on, alias+".property_id = ANY("+cc.b.bind(ids)+")")
		}
		if c.opts.PublicOnly {
			on = append(on, alias+".is_public")
		}
		if !positive {
			on = append(on, "("+pred+")")
		}
		plan.addJoin(&joinClause{table: "value", alias: alias, on: on})
	}

	next := State{PropertyIDs: ids, Alias: alias, Positive: positive}
	if !positive {
		// No matching value may exist.
		return alias + ".id IS NULL", next, true, nil
	}
	return pred, next, true, nil
}

// expandAliases replaces configured field aliases by their terms.
func (c *Compiler) expandAliases(fields []string) []string {
	var refs []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if terms, ok := c.opts.Aliases[f]; ok {
			refs = append(refs, terms...)
			continue
		}
		refs = append(refs, f)
	}
	return refs
}

// isRootLevel reports whether op is tested on the resource itself rather
// than through a value join.
func isRootLevel(op query.Operator) bool {
	switch op {
	case query.OpLinked, query.OpLinkedBy, query.OpLinkedQuery,
		query.OpExistsSingle, query.OpNotExistsSingle,
		query.OpExistsMany, query.OpNotExistsMany:
		return true
	}
	return query.IsDup(op)
}

// subquery returns the normalized sub-query of a resq or lkq row.
func subquery(row query.QueryRow) (query.Raw, bool) {
	var q query.Raw
	if len(row.Subquery) > 0 {
		q = query.Normalize(row.Subquery)
	} else {
		raw, err := query.ParseQueryString(strings.TrimPrefix(strings.TrimSpace(row.Text), "?"))
		if err != nil {
			return nil, false
		}
		q = query.Normalize(raw)
	}
	return q, len(q) > 0
}

// subqueryCondition restricts column to the ids matched by the row's
// sub-query.
func (c *Compiler) subqueryCondition(ctx context.Context, cc *compileContext, column string, row query.QueryRow) (string, bool, error) {
	sub, ok := subquery(row)
	if !ok {
		return "", false, nil
	}

	if c.opts.SubqueryMode == SubqueryInline {
		nested := cc.nested()
		if nested.depth > c.opts.MaxDepth {
			return "", false, fmt.Errorf("%w: depth %d exceeds %d", ErrSubqueryDepth, nested.depth, c.opts.MaxDepth)
		}
		plan, _, err := c.buildPlan(ctx, nested, nested.alias(rootAlias), "resources", sub)
		if err != nil {
			return "", false, fmt.Errorf("sub-query failed: %w", err)
		}
		sql, err := plan.subselectSQL()
		if err != nil {
			return "", false, err
		}
		if c.metrics != nil {
			c.metrics.RecordSubquery(SubqueryInline)
		}
		return column + " IN (" + sql + ")", true, nil
	}

	if c.sub == nil {
		return "", false, fmt.Errorf("sub-query failed: no searcher configured")
	}
	ids, err := c.sub.SearchIDs(withDepth(ctx, cc.depth+1), "resources", sub)
	if err != nil {
		return "", false, fmt.Errorf("sub-query failed: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordSubquery(SubqueryEager)
	}
	if len(ids) == 0 {
		return "FALSE", true, nil
	}
	return column + " = ANY(" + cc.b.bind(ids) + ")", true, nil
}

type pagination struct {
	page, perPage, limit, offset int
}

// pagination reads limit/offset, falling back to page/per_page.
func (c *Compiler) pagination(q query.Raw) pagination {
	if limit, ok := query.IntOf(q, query.KeyLimit); ok && limit > 0 {
		if limit > c.opts.MaxPerPage {
			limit = c.opts.MaxPerPage
		}
		offset, _ := query.IntOf(q, query.KeyOffset)
		if offset < 0 {
			offset = 0
		}
		return pagination{page: offset/limit + 1, perPage: limit, limit: limit, offset: offset}
	}

	perPage, ok := query.IntOf(q, query.KeyPerPage)
	if !ok || perPage <= 0 {
		perPage = c.opts.DefaultPerPage
	}
	if perPage > c.opts.MaxPerPage {
		perPage = c.opts.MaxPerPage
	}
	page, ok := query.IntOf(q, query.KeyPage)
	if !ok || page < 1 {
		page = 1
	}
	return pagination{page: page, perPage: perPage, limit: perPage, offset: (page - 1) * perPage}
}
