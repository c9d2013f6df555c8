package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/observability"
)

// Text search types have no built-in codec in pgx; scanning them as text is
// enough for ranking and debugging output.
const (
	tsvectorOID = 3614
	tsqueryOID  = 3615
)

const maxLoggedStatement = 200

// Connection is a pgx pool instrumented with spans, metrics and slow
// statement logging. It implements Executor.
type Connection struct {
	pool          *pgxpool.Pool
	config        *config.DatabaseConfig
	metrics       *observability.Metrics
	slowThreshold time.Duration
}

// NewConnection opens and pings a pool for cfg.
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	// Compiled searches differ in shape on nearly every request, so the
	// prepared statement cache would only grow.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := conn.Ping(pingCtx); err != nil {
			log.Debug().Err(err).Msg("Discarding unhealthy connection from pool")
			return false
		}
		return true
	}

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		tm := conn.TypeMap()
		tm.RegisterType(&pgtype.Type{Name: "tsvector", OID: tsvectorOID, Codec: pgtype.TextCodec{}})
		tm.RegisterType(&pgtype.Type{Name: "tsquery", OID: tsqueryOID, Codec: pgtype.TextCodec{}})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = time.Second
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_connections", cfg.MaxConnections).
		Msg("Database connection established")

	return &Connection{pool: pool, config: &cfg, slowThreshold: slow}, nil
}

// SetMetrics enables per-statement and pool metrics.
func (c *Connection) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Close closes the pool.
func (c *Connection) Close() {
	c.pool.Close()
	log.Info().Msg("Database connection closed")
}

// Pool returns the underlying pool.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	st := classify(sql)
	ctx, span := observability.StartDBSpan(ctx, st.operation, st.table)
	start := time.Now()
	rows, err := c.pool.Query(ctx, sql, args...)
	c.observe(st, sql, time.Since(start), err)
	observability.EndDBSpan(span, err)
	return rows, err
}

// QueryRow defers errors to Scan, so only timing is recorded.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	start := time.Now()
	row := c.pool.QueryRow(ctx, sql, args...)
	c.observe(classify(sql), sql, time.Since(start), nil)
	return row
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	st := classify(sql)
	ctx, span := observability.StartDBSpan(ctx, st.operation, st.table)
	start := time.Now()
	tag, err := c.pool.Exec(ctx, sql, args...)
	c.observe(st, sql, time.Since(start), err)
	observability.EndDBSpan(span, err)
	return tag, err
}

func (c *Connection) observe(st statement, sql string, duration time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.RecordDBQuery(st.operation, st.table, duration, err)
	}
	if duration > c.slowThreshold {
		log.Warn().
			Int64("duration_ms", duration.Milliseconds()).
			Str("operation", st.operation).
			Str("table", st.table).
			Str("query", truncateQuery(sql, maxLoggedStatement)).
			Bool("slow_query", true).
			Msg("Slow query detected")
	}
}

// Health runs SELECT 1 with a five second budget.
func (c *Connection) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := c.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("unexpected health check result: %d", one)
	}
	return nil
}

// ReportStats pushes pool statistics to the metrics collector.
func (c *Connection) ReportStats() {
	if c.metrics == nil {
		return
	}
	s := c.pool.Stat()
	c.metrics.UpdateDBStats(s.TotalConns(), s.IdleConns(), s.MaxConns())
}

// statement labels a SQL string for spans and metrics.
type statement struct {
	operation string
	table     string
}

var (
	fromTableRe = regexp.MustCompile(`FROM\s+["']?(\w+)["']?`)
	intoTableRe = regexp.MustCompile(`INTO\s+["']?(\w+)["']?`)
	updateRe    = regexp.MustCompile(`^UPDATE\s+["']?(\w+)["']?`)
)

// classify derives the operation and first table of sql. Compiled searches
// wrap their ids in a COUNT sub-select, so the first FROM followed by a
// name is the searched table.
func classify(sql string) statement {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	var (
		op string
		re *regexp.Regexp
	)
	switch {
	case strings.HasPrefix(upper, "SELECT"), strings.HasPrefix(upper, "WITH"):
		op, re = "select", fromTableRe
	case strings.HasPrefix(upper, "INSERT"):
		op, re = "insert", intoTableRe
	case strings.HasPrefix(upper, "UPDATE"):
		op, re = "update", updateRe
	case strings.HasPrefix(upper, "DELETE"):
		op, re = "delete", fromTableRe
	default:
		return statement{operation: "other", table: "unknown"}
	}

	table := "unknown"
	if m := re.FindStringSubmatch(upper); len(m) > 1 {
		table = strings.ToLower(m[1])
	}
	return statement{operation: op, table: table}
}

func truncateQuery(query string, maxLen int) string {
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "... (truncated)"
}
