package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/fluxbase-eu/advancedsearch/internal/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// searchDB answers the count with total and the listing with ids.
func searchDB(total int64, ids ...int) *testutil.MockExecutor {
	return &testutil.MockExecutor{
		OnQueryRow: func(context.Context, string, ...interface{}) pgx.Row {
			return &testutil.MockRow{Values: []interface{}{total}}
		},
		OnQuery: func(context.Context, string, ...interface{}) (pgx.Rows, error) {
			rows := make([][]interface{}, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []interface{}{id})
			}
			return testutil.NewMockRows(rows...), nil
		},
	}
}

// failingDB fails the count statement with err.
func failingDB(err error) *testutil.MockExecutor {
	return &testutil.MockExecutor{
		OnQueryRow: func(context.Context, string, ...interface{}) pgx.Row {
			return &testutil.MockRow{ErrVal: err}
		},
	}
}

// =============================================================================
// Search Tests
// =============================================================================

func TestSearchHandler_SearchGET(t *testing.T) {
	ts := newTestServer(t, testConfig(), searchDB(3, 4, 8, 15), nil)

	q := url.Values{}
	q.Set("fulltext_search", "rome")
	q.Set("property[0][property]", "dcterms:title")
	q.Set("property[0][type]", "in")
	q.Set("property[0][text]", "forum")
	q.Set("per_page", "10")

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/search/items?"+q.Encode(), nil))
	require.Equal(t, 200, resp.StatusCode, string(body))
	assert.Equal(t, "3", resp.Header.Get("X-Total-Count"))

	out := decode(t, body)
	assert.Equal(t, []interface{}{float64(4), float64(8), float64(15)}, out["ids"])
	assert.Equal(t, float64(3), out["total"])
	assert.Equal(t, float64(1), out["page"])
	assert.Equal(t, float64(10), out["per_page"])

	calls := ts.db.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Args, "rome")
	assert.Contains(t, calls[0].Args, "%forum%")
	assert.Contains(t, calls[0].Args, []int{1})
}

func TestSearchHandler_SearchPOSTJSON(t *testing.T) {
	ts := newTestServer(t, testConfig(), searchDB(1, 42), nil)

	body := `{"property":[{"property":"dcterms:creator","type":"eq","text":"Cicero"}],"sort_by":"dcterms:title"}`
	req := httptest.NewRequest("POST", "/api/search/item_sets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, respBody := ts.do(t, req)
	require.Equal(t, 200, resp.StatusCode, string(respBody))
	assert.Equal(t, []interface{}{float64(42)}, decode(t, respBody)["ids"])

	calls := ts.db.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "item_set", calls[0].Args[0])
	assert.Contains(t, calls[0].Args, "Cicero")
	assert.Contains(t, calls[0].Args, []int{2})
}

func TestSearchHandler_SearchPOSTForm(t *testing.T) {
	ts := newTestServer(t, testConfig(), searchDB(0), nil)

	form := url.Values{}
	form.Set("fulltext_search", "carthage")
	req := httptest.NewRequest("POST", "/api/search/media", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, body := ts.do(t, req)
	require.Equal(t, 200, resp.StatusCode, string(body))

	out := decode(t, body)
	assert.Equal(t, []interface{}{}, out["ids"])
	assert.Equal(t, float64(0), out["total"])

	calls := ts.db.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{"media", "carthage"}, calls[0].Args)
}

func TestSearchHandler_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	req := httptest.NewRequest("POST", "/api/search/items", strings.NewReader(`{"property":`))
	req.Header.Set("Content-Type", "application/json")

	resp, body := ts.do(t, req)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_QUERY", decode(t, body)["code"])
	assert.Empty(t, ts.db.Calls())
}

func TestSearchHandler_UnknownResourceType(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	for _, path := range []string{"/api/search/users", "/api/compile/users"} {
		t.Run(path, func(t *testing.T) {
			resp, body := ts.do(t, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, 400, resp.StatusCode)

			out := decode(t, body)
			assert.Equal(t, "UNKNOWN_RESOURCE_TYPE", out["code"])
			assert.Contains(t, out["details"], "items")
		})
	}
	assert.Empty(t, ts.db.Calls())
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "statement canceled",
			err:    &pgconn.PgError{Code: database.ErrCodeQueryCanceled, Message: "canceling statement due to statement timeout"},
			status: StatusClientClosedRequest,
			code:   "QUERY_CANCELED",
		},
		{
			name:   "client went away",
			err:    context.Canceled,
			status: StatusClientClosedRequest,
			code:   "QUERY_CANCELED",
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			status: 504,
			code:   "QUERY_TIMEOUT",
		},
		{
			name:   "schema not migrated",
			err:    &pgconn.PgError{Code: database.ErrCodeUndefinedTable, Message: `relation "resource" does not exist`},
			status: 503,
			code:   "SCHEMA_MISSING",
		},
		{
			name:   "invalid regular expression",
			err:    &pgconn.PgError{Code: database.ErrCodeInvalidRegex, Message: "invalid regular expression"},
			status: 400,
			code:   "INVALID_INPUT",
		},
		{
			name:   "anything else",
			err:    errors.New("connection reset"),
			status: 500,
			code:   "SEARCH_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig(), failingDB(tt.err), nil)

			resp, body := ts.do(t, httptest.NewRequest("GET", "/api/search/items", nil))
			assert.Equal(t, tt.status, resp.StatusCode)

			out := decode(t, body)
			assert.Equal(t, tt.code, out["code"])
			assert.NotEmpty(t, out["request_id"])
		})
	}
}

func TestSearchHandler_SubqueryTooDeep(t *testing.T) {
	cfg := testConfig()
	cfg.Search.MaxSubqueryDepth = 1
	ts := newTestServer(t, cfg, searchDB(0), nil)

	inner := url.Values{}
	inner.Set("property[0][joiner]", "and")
	inner.Set("property[0][property]", "dcterms:title")
	inner.Set("property[0][type]", "resq")
	inner.Set("property[0][text]", "fulltext_search=x")

	q := url.Values{}
	q.Set("property[0][property]", "dcterms:title")
	q.Set("property[0][type]", "resq")
	q.Set("property[0][text]", inner.Encode())

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/search/items?"+q.Encode(), nil))
	assert.Equal(t, 400, resp.StatusCode, string(body))
	assert.Equal(t, "SUBQUERY_TOO_DEEP", decode(t, body)["code"])
}

// =============================================================================
// Compile Tests
// =============================================================================

func TestSearchHandler_Compile(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	q := url.Values{}
	q.Set("property[0][property]", "dcterms:title")
	q.Set("property[0][type]", "eq")
	q.Set("property[0][text]", "Aeneid")

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/compile/items?"+q.Encode(), nil))
	require.Equal(t, 200, resp.StatusCode, string(body))

	out := decode(t, body)
	assert.Equal(t, "items", out["resource_type"])
	assert.Contains(t, out["sql"], "SELECT")
	assert.Contains(t, out["count_sql"], "COUNT(*)")
	assert.Contains(t, out["args"], "Aeneid")
	assert.Nil(t, out["validation"])

	// Compiling never touches the database.
	assert.Empty(t, ts.db.Calls())
}

func TestSearchHandler_CompileValidate(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/compile/items?fulltext_search=rome&validate=true", nil))
	require.Equal(t, 200, resp.StatusCode, string(body))

	out := decode(t, body)
	validation, ok := out["validation"].(map[string]interface{})
	require.True(t, ok, string(body))
	assert.Equal(t, true, validation["valid"])
	assert.NotEmpty(t, validation["fingerprint"])

	query, ok := out["query"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, query, "validate")
}

// =============================================================================
// Property Tests
// =============================================================================

func TestSearchHandler_ListProperties(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/properties", nil))
	require.Equal(t, 200, resp.StatusCode, string(body))

	out := decode(t, body)
	assert.Equal(t, float64(2), out["count"])

	props, ok := out["properties"].([]interface{})
	require.True(t, ok)
	require.Len(t, props, 2)
	first := props[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, "dcterms:title", first["term"])
	assert.Equal(t, "Title", first["label"])
}

func TestSearchHandler_ListPropertiesError(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)
	ts.loader.err = errors.New("vocabulary table missing")

	resp, body := ts.do(t, httptest.NewRequest("GET", "/api/properties", nil))
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "SEARCH_FAILED", decode(t, body)["code"])
}

func TestSearchHandler_InvalidateProperties(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	resp, _ := ts.do(t, httptest.NewRequest("GET", "/api/properties", nil))
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, ts.loader.loads)

	ps := testutil.NewMockPubSub()
	ts.cache.SetPubSub(ps)

	resp, body := ts.do(t, httptest.NewRequest("POST", "/api/properties/invalidate", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "invalidated", decode(t, body)["status"])
	assert.Len(t, ps.Published(), 1)

	resp, _ = ts.do(t, httptest.NewRequest("GET", "/api/properties", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, ts.loader.loads)
}
