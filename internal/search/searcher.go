package search

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/query"
	"github.com/rs/zerolog/log"
)

// Result is one page of matching resource ids.
type Result struct {
	IDs     []int `json:"ids"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// Searcher compiles and executes searches.
type Searcher struct {
	db       database.Executor
	compiler *Compiler
	metrics  *observability.Metrics
	slow     time.Duration
}

// NewSearcher creates a searcher. It also becomes the compiler's
// sub-query searcher.
func NewSearcher(db database.Executor, compiler *Compiler, slow time.Duration) *Searcher {
	s := &Searcher{
		db:       db,
		compiler: compiler,
		slow:     slow,
	}
	compiler.SetSubSearcher(s)
	return s
}

// SetMetrics sets the metrics instance for the searcher and its compiler.
func (s *Searcher) SetMetrics(m *observability.Metrics) {
	s.metrics = m
	s.compiler.SetMetrics(m)
}

// Compiler returns the compiler.
func (s *Searcher) Compiler() *Compiler {
	return s.compiler
}

// Compile compiles raw without executing it.
func (s *Searcher) Compile(ctx context.Context, resourceType string, raw query.Raw) (*Compiled, error) {
	return s.compiler.Compile(ctx, resourceType, raw)
}

// Search returns one page of ids with the total count.
func (s *Searcher) Search(ctx context.Context, resourceType string, raw query.Raw) (*Result, error) {
	start := time.Now()
	ctx, span := observability.StartSearchSpan(ctx, "search", resourceType, depthFrom(ctx))

	result, err := s.search(ctx, resourceType, raw)

	results := 0
	if result != nil {
		results = len(result.IDs)
	}
	s.observe(resourceType, results, time.Since(start), err)
	observability.EndSearchSpan(span, results, time.Since(start), err)
	return result, err
}

func (s *Searcher) search(ctx context.Context, resourceType string, raw query.Raw) (*Result, error) {
	compiled, err := s.compiler.Compile(ctx, resourceType, raw)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.db.QueryRow(ctx, compiled.CountSQL, compiled.CountArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}

	ids := []int{}
	if total > int64(compiled.Offset) {
		if ids, err = s.queryIDs(ctx, compiled.SQL, compiled.Args); err != nil {
			return nil, err
		}
	}

	return &Result{
		IDs:     ids,
		Total:   total,
		Page:    compiled.Page,
		PerPage: compiled.PerPage,
	}, nil
}

// SearchIDs returns every matching id, unpaginated. Sub-queries run
// through it.
func (s *Searcher) SearchIDs(ctx context.Context, resourceType string, raw query.Raw) ([]int, error) {
	start := time.Now()
	ctx, span := observability.StartSearchSpan(ctx, "search_ids", resourceType, depthFrom(ctx))

	var ids []int
	compiled, err := s.compiler.CompileAll(ctx, resourceType, raw)
	if err == nil {
		ids, err = s.queryIDs(ctx, compiled.SQL, compiled.Args)
	}

	s.observe(resourceType, len(ids), time.Since(start), err)
	observability.EndSearchSpan(span, len(ids), time.Since(start), err)
	return ids, err
}

func (s *Searcher) queryIDs(ctx context.Context, sql string, args []any) ([]int, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return ids, nil
}

func (s *Searcher) observe(resourceType string, results int, duration time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordSearch(resourceType, results, duration, err)
	}

	if err != nil {
		log.Error().Err(err).Str("resource_type", resourceType).Dur("duration", duration).Msg("Search failed")
		return
	}
	if s.slow > 0 && duration > s.slow {
		log.Warn().
			Str("resource_type", resourceType).
			Int("results", results).
			Dur("duration", duration).
			Bool("slow_search", true).
			Msg("Slow search detected")
	}
}
