// Package e2e runs searches end to end against a PostgreSQL database.
//
// The tests are skipped unless ADVSEARCH_E2E is set. The database is
// configured with the usual ADVSEARCH_DATABASE_* variables; the schema is
// migrated and every table is truncated and reseeded before each test.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/api"
	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/fluxbase-eu/advancedsearch/internal/search"
	"github.com/fluxbase-eu/advancedsearch/internal/vocabulary"
	"github.com/stretchr/testify/require"
)

// Seeded resource ids.
const (
	forumID      = 1
	colosseumID  = 2
	carthageID   = 3
	collectionID = 4
)

var seedSQL = []string{
	`TRUNCATE resource, vocabulary, site, resource_template, fulltext_search, rate_limits RESTART IDENTITY CASCADE`,

	`INSERT INTO vocabulary (prefix, namespace_uri, label) VALUES ('dcterms', 'http://purl.org/dc/terms/', 'Dublin Core')`,
	`INSERT INTO property (vocabulary_id, local_name, label) VALUES
		(1, 'title', 'Title'),
		(1, 'subject', 'Subject'),
		(1, 'isPartOf', 'Is Part Of')`,

	`INSERT INTO resource (resource_type, owner_id, title, is_public, created) VALUES
		('item', 1, 'Forum of Rome', TRUE, '2021-03-01 10:00:00'),
		('item', 1, 'Colosseum', TRUE, '2022-06-15 12:00:00'),
		('item', 2, 'Carthage harbour', FALSE, '2023-01-20 08:30:00'),
		('item_set', 1, 'Rome collection', TRUE, '2020-11-11 11:11:11')`,

	`INSERT INTO value (resource_id, property_id, type, value, value_resource_id) VALUES
		(1, 1, 'literal', 'Forum of Rome', NULL),
		(1, 2, 'literal', 'Rome', NULL),
		(1, 3, 'resource', NULL, 4),
		(2, 1, 'literal', 'Colosseum', NULL),
		(2, 2, 'literal', 'Rome', NULL),
		(3, 1, 'literal', 'Carthage harbour', NULL),
		(3, 2, 'literal', 'Carthage', NULL),
		(4, 1, 'literal', 'Rome collection', NULL)`,

	`INSERT INTO item_item_set (item_id, item_set_id) VALUES (1, 4)`,

	`INSERT INTO fulltext_search (id, resource_type, owner_id, is_public, title, text) VALUES
		(1, 'item', 1, TRUE, 'Forum of Rome', 'Rome forum ruins'),
		(2, 'item', 1, TRUE, 'Colosseum', 'Rome amphitheatre'),
		(3, 'item', 2, FALSE, 'Carthage harbour', 'Punic harbour'),
		(4, 'item_set', 1, TRUE, 'Rome collection', 'Monuments of ancient Rome')`,
}

var testDB *database.Connection

func TestMain(m *testing.M) {
	if os.Getenv("ADVSEARCH_E2E") == "" {
		os.Exit(m.Run())
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		panic(err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		panic(err)
	}
	testDB = db

	code := m.Run()
	db.Close()
	os.Exit(code)
}

// testEnv is a server wired to the seeded database.
type testEnv struct {
	t      *testing.T
	server *api.Server
}

func setup(t *testing.T, mode string) *testEnv {
	t.Helper()
	if testDB == nil {
		t.Skip("set ADVSEARCH_E2E to run end-to-end tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stmt := range seedSQL {
		_, err := testDB.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{BodyLimit: 1024 * 1024, CORSOrigins: "*"},
		Search: config.SearchConfig{
			DefaultSortBy:    "id",
			DefaultSortOrder: "asc",
			DefaultPerPage:   25,
			MaxPerPage:       100,
			PublicOnly:       true,
			SubqueryMode:     mode,
			MaxSubqueryDepth: 3,
		},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}

	properties := vocabulary.NewPropertyCache(vocabulary.NewDBLoader(testDB), time.Minute)
	t.Cleanup(properties.Close)

	searcher := search.NewSearcher(testDB, search.NewCompiler(properties, search.OptionsFromConfig(cfg.Search)), time.Second)
	server := api.NewServer(cfg, api.Dependencies{
		Searcher:   searcher,
		Properties: properties,
		Health:     testDB,
	})
	return &testEnv{t: t, server: server}
}

// exec runs extra seed statements for a single test.
func (e *testEnv) exec(stmts ...string) {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stmt := range stmts {
		_, err := testDB.Exec(ctx, stmt)
		require.NoError(e.t, err, stmt)
	}
}

type searchResponse struct {
	IDs     []int `json:"ids"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// get sends a GET request and decodes the JSON response into out.
func (e *testEnv) get(path string, out interface{}) int {
	e.t.Helper()
	resp, err := e.server.App().Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

// search runs a search and returns the response.
func (e *testEnv) search(resourceType, rawQuery string) searchResponse {
	e.t.Helper()
	var out searchResponse
	status := e.get("/api/search/"+resourceType+"?"+rawQuery, &out)
	require.Equal(e.t, http.StatusOK, status)
	return out
}
