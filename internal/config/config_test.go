package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			BodyLimit:    1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Database:       "advsearch",
			SSLMode:        "disable",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Search: SearchConfig{
			DefaultSortBy:    "id",
			DefaultSortOrder: "asc",
			DefaultPerPage:   25,
			MaxPerPage:       100,
			SubqueryMode:     "eager",
			MaxSubqueryDepth: 3,
		},
		Scaling: ScalingConfig{Backend: "local"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: true,
			errMsg:  "server address cannot be empty",
		},
		{
			name:    "zero read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = 0 },
			wantErr: true,
			errMsg:  "read_timeout must be positive",
		},
		{
			name:    "zero body limit",
			mutate:  func(c *Config) { c.Server.BodyLimit = 0 },
			wantErr: true,
			errMsg:  "body_limit must be positive",
		},
		{
			name:    "invalid database port",
			mutate:  func(c *Config) { c.Database.Port = 70000 },
			wantErr: true,
			errMsg:  "database port must be between 1 and 65535",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "pool bounds inverted",
			mutate:  func(c *Config) { c.Database.MinConnections = 20 },
			wantErr: true,
			errMsg:  "max_connections must be greater than or equal to min_connections",
		},
		{
			name:    "bad sort order",
			mutate:  func(c *Config) { c.Search.DefaultSortOrder = "sideways" },
			wantErr: true,
			errMsg:  "default_sort_order must be 'asc' or 'desc'",
		},
		{
			name:   "uppercase sort order",
			mutate: func(c *Config) { c.Search.DefaultSortOrder = "DESC" },
		},
		{
			name:    "max per page below default",
			mutate:  func(c *Config) { c.Search.MaxPerPage = 10 },
			wantErr: true,
			errMsg:  "max_per_page must be greater than or equal to default_per_page",
		},
		{
			name:    "unknown subquery mode",
			mutate:  func(c *Config) { c.Search.SubqueryMode = "lazy" },
			wantErr: true,
			errMsg:  "subquery_mode must be 'eager' or 'inline'",
		},
		{
			name:    "empty alias",
			mutate:  func(c *Config) { c.Search.Aliases = map[string][]string{"title": nil} },
			wantErr: true,
			errMsg:  `alias "title" must map to at least one property`,
		},
		{
			name:   "valid alias",
			mutate: func(c *Config) { c.Search.Aliases = map[string][]string{"title": {"dcterms:title"}} },
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.Vocabulary.CacheTTL = -time.Second },
			wantErr: true,
			errMsg:  "cache_ttl cannot be negative",
		},
		{
			name:    "redis backend without url",
			mutate:  func(c *Config) { c.Scaling.Backend = "redis" },
			wantErr: true,
			errMsg:  "redis_url is required",
		},
		{
			name:    "unknown scaling backend",
			mutate:  func(c *Config) { c.Scaling.Backend = "etcd" },
			wantErr: true,
			errMsg:  "invalid scaling backend",
		},
		{
			name:    "metrics path without slash",
			mutate:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: true,
			errMsg:  "metrics path must start with '/'",
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing = TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 2}
			},
			wantErr: true,
			errMsg:  "sample_rate must be between 0.0 and 1.0",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionStrings(t *testing.T) {
	dc := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "search",
		Password: "secret",
		Database: "omeka",
		SSLMode:  "require",
	}

	assert.Equal(t, "postgres://search:secret@db:5433/omeka?sslmode=require", dc.ConnectionString())
	assert.Equal(t,
		"pgx5://search:secret@db:5433/omeka?sslmode=require&x-migrations-table=advsearch_migrations",
		dc.MigrationURL())

	dc.MigrationsTable = "custom_migrations"
	assert.Contains(t, dc.MigrationURL(), "x-migrations-table=custom_migrations")
}

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("ADVSEARCH_DATABASE_HOST", "pg.internal")
	t.Setenv("ADVSEARCH_SEARCH_SUBQUERY_MODE", "inline")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "inline", cfg.Search.SubqueryMode)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 25, cfg.Search.DefaultPerPage)
	assert.Equal(t, 3, cfg.Search.MaxSubqueryDepth)
	assert.Equal(t, 10*time.Minute, cfg.Vocabulary.CacheTTL)
	assert.True(t, cfg.Search.PublicOnly)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	content := `
search:
  default_sort_by: title
  default_per_page: 50
  aliases:
    creator:
      - dcterms:creator
      - dcterms:contributor
scaling:
  backend: postgres
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advsearch.yaml"), []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "title", cfg.Search.DefaultSortBy)
	assert.Equal(t, 50, cfg.Search.DefaultPerPage)
	assert.Equal(t, []string{"dcterms:creator", "dcterms:contributor"}, cfg.Search.Aliases["creator"])
	assert.Equal(t, "postgres", cfg.Scaling.Backend)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "advsearch.yaml"), []byte("scaling:\n  backend: etcd\n"), 0o600))

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scaling backend")
}
