package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fluxbase-eu/advancedsearch/internal/query"
	"github.com/fluxbase-eu/advancedsearch/internal/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSearcher(db *testutil.MockExecutor, opts Options) *Searcher {
	return NewSearcher(db, NewCompiler(testResolver(), opts), 0)
}

func countRow(total int64) func(context.Context, string, ...interface{}) pgx.Row {
	return func(context.Context, string, ...interface{}) pgx.Row {
		return &testutil.MockRow{Values: []interface{}{total}}
	}
}

func TestSearcher_Search(t *testing.T) {
	db := &testutil.MockExecutor{
		OnQueryRow: countRow(42),
		OnQuery: func(context.Context, string, ...interface{}) (pgx.Rows, error) {
			return testutil.NewMockRows([]interface{}{5}, []interface{}{9}), nil
		},
	}
	s := newTestSearcher(db, Options{})

	result, err := s.Search(context.Background(), "items", query.Raw{
		"fulltext_search": "rome",
		"sort_by":         "dcterms:title",
		"per_page":        2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 9}, result.IDs)
	assert.Equal(t, int64(42), result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 2, result.PerPage)

	calls := db.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "QueryRow", calls[0].Method)
	assert.True(t, strings.HasPrefix(calls[0].SQL, "SELECT COUNT(*)"))
	assert.Equal(t, []interface{}{"item", "rome"}, calls[0].Args)

	assert.Equal(t, "Query", calls[1].Method)
	assert.Contains(t, calls[1].SQL, "LIMIT 2")
	assert.Equal(t, []interface{}{"item", "rome", 1}, calls[1].Args)
}

func TestSearcher_SkipsListingPastTheEnd(t *testing.T) {
	db := &testutil.MockExecutor{OnQueryRow: countRow(10)}
	s := newTestSearcher(db, Options{})

	result, err := s.Search(context.Background(), "items", query.Raw{"page": 2, "per_page": 10})
	require.NoError(t, err)
	assert.Empty(t, result.IDs)
	assert.NotNil(t, result.IDs)
	assert.Equal(t, int64(10), result.Total)
	assert.Len(t, db.Calls(), 1)
}

func TestSearcher_Errors(t *testing.T) {
	t.Run("count fails", func(t *testing.T) {
		db := &testutil.MockExecutor{
			OnQueryRow: func(context.Context, string, ...interface{}) pgx.Row {
				return &testutil.MockRow{ErrVal: errors.New("boom")}
			},
		}
		_, err := newTestSearcher(db, Options{}).Search(context.Background(), "items", query.Raw{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to count results")
	})

	t.Run("listing fails", func(t *testing.T) {
		db := &testutil.MockExecutor{
			OnQueryRow: countRow(3),
			OnQuery: func(context.Context, string, ...interface{}) (pgx.Rows, error) {
				return nil, errors.New("boom")
			},
		}
		_, err := newTestSearcher(db, Options{}).Search(context.Background(), "items", query.Raw{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute search")
	})

	t.Run("rows fail", func(t *testing.T) {
		db := &testutil.MockExecutor{
			OnQueryRow: countRow(3),
			OnQuery: func(context.Context, string, ...interface{}) (pgx.Rows, error) {
				return &testutil.MockRows{ErrVal: errors.New("reset")}, nil
			},
		}
		_, err := newTestSearcher(db, Options{}).Search(context.Background(), "items", query.Raw{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read search results")
	})

	t.Run("unknown resource type", func(t *testing.T) {
		db := &testutil.MockExecutor{}
		_, err := newTestSearcher(db, Options{}).Search(context.Background(), "widgets", query.Raw{})
		assert.ErrorIs(t, err, ErrUnknownResourceType)
		assert.Empty(t, db.Calls())
	})
}

func TestSearcher_SearchIDsIsUnpaginated(t *testing.T) {
	db := &testutil.MockExecutor{
		OnQuery: func(context.Context, string, ...interface{}) (pgx.Rows, error) {
			return testutil.NewMockRows([]interface{}{1}, []interface{}{2}, []interface{}{3}), nil
		},
	}
	s := newTestSearcher(db, Options{})

	ids, err := s.SearchIDs(context.Background(), "resources", query.Raw{"per_page": 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	calls := db.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].SQL, "LIMIT")
}

func TestSearcher_RunsEagerSubqueries(t *testing.T) {
	db := &testutil.MockExecutor{
		OnQueryRow: countRow(1),
		OnQuery: func(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
			if strings.Contains(sql, "LIMIT") {
				return testutil.NewMockRows([]interface{}{100}), nil
			}
			return testutil.NewMockRows([]interface{}{7}, []interface{}{8}), nil
		},
	}
	s := newTestSearcher(db, Options{})

	result, err := s.Search(context.Background(), "items", query.Raw{
		"property": []any{map[string]any{
			"property": "dcterms:isPartOf",
			"type":     "resq",
			"text":     map[string]any{"resource_type": "item_sets", "fulltext_search": "rome"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{100}, result.IDs)

	calls := db.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []interface{}{"item_set", "rome"}, calls[0].Args)
	assert.Equal(t, []interface{}{"item", []int{7, 8}, []int{7}}, calls[1].Args)
}

func TestSearcher_EagerSubqueryDepthLimit(t *testing.T) {
	db := &testutil.MockExecutor{OnQueryRow: countRow(0)}
	s := newTestSearcher(db, Options{MaxDepth: 1})

	inner := map[string]any{"property": []any{map[string]any{"type": "lkq", "text": map[string]any{"id": "1"}}}}
	_, err := s.Search(context.Background(), "items", query.Raw{
		"property": []any{map[string]any{"type": "resq", "text": inner}},
	})
	assert.ErrorIs(t, err, ErrSubqueryDepth)
}
