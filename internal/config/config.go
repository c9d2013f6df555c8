package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Search     SearchConfig     `mapstructure:"search"`
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Scaling    ScalingConfig    `mapstructure:"scaling"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Log        LogConfig        `mapstructure:"log"`
	Debug      bool             `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	CORSOrigins  string        `mapstructure:"cors_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheck     time.Duration `mapstructure:"health_check_period"`
	SlowQuery       time.Duration `mapstructure:"slow_query_threshold"`
	MigrationsTable string        `mapstructure:"migrations_table"`
}

// SearchConfig contains query compilation and pagination settings
type SearchConfig struct {
	DefaultSortBy    string              `mapstructure:"default_sort_by"`
	DefaultSortOrder string              `mapstructure:"default_sort_order"`
	DefaultPerPage   int                 `mapstructure:"default_per_page"`
	MaxPerPage       int                 `mapstructure:"max_per_page"`
	PublicOnly       bool                `mapstructure:"public_only"`
	SubqueryMode     string              `mapstructure:"subquery_mode"` // eager or inline
	MaxSubqueryDepth int                 `mapstructure:"max_subquery_depth"`
	SlowThreshold    time.Duration       `mapstructure:"slow_threshold"`
	Aliases          map[string][]string `mapstructure:"aliases"`
	RateLimit        int                 `mapstructure:"rate_limit"` // requests per minute, 0 disables
}

// VocabularyConfig contains property cache settings
type VocabularyConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"` // cron expression, empty disables
}

// ScalingConfig selects the backend shared by instances for cache
// invalidation and rate limiting
type ScalingConfig struct {
	Backend  string `mapstructure:"backend"` // local, postgres or redis
	RedisURL string `mapstructure:"redis_url"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	v.SetConfigName("advsearch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/advsearch")

	setDefaults(v)

	// Enable environment variable support with underscore replacer
	v.AutomaticEnv()
	v.SetEnvPrefix("ADVSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env", // For when running from subdirectories
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.body_limit", 4*1024*1024)
	v.SetDefault("server.cors_origins", "*")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "advsearch")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.slow_query_threshold", "1s")
	v.SetDefault("database.migrations_table", "advsearch_migrations")

	// Search defaults
	v.SetDefault("search.default_sort_by", "id")
	v.SetDefault("search.default_sort_order", "asc")
	v.SetDefault("search.default_per_page", 25)
	v.SetDefault("search.max_per_page", 1000)
	v.SetDefault("search.public_only", true)
	v.SetDefault("search.subquery_mode", "eager")
	v.SetDefault("search.max_subquery_depth", 3)
	v.SetDefault("search.slow_threshold", "2s")
	v.SetDefault("search.rate_limit", 0)

	// Vocabulary defaults
	v.SetDefault("vocabulary.cache_ttl", "10m")
	v.SetDefault("vocabulary.refresh_schedule", "")

	// Scaling defaults
	v.SetDefault("scaling.backend", "local")

	// Observability defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "advsearch")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database configuration error: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search configuration error: %w", err)
	}
	if err := c.Vocabulary.Validate(); err != nil {
		return fmt.Errorf("vocabulary configuration error: %w", err)
	}
	if err := c.Scaling.Validate(); err != nil {
		return fmt.Errorf("scaling configuration error: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log configuration error: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates database configuration
func (dc *DatabaseConfig) Validate() error {
	if dc.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if dc.Port < 1 || dc.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got: %d", dc.Port)
	}
	if dc.User == "" {
		return fmt.Errorf("database user is required")
	}
	if dc.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if dc.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got: %d", dc.MaxConnections)
	}
	if dc.MaxConnections < dc.MinConnections {
		return fmt.Errorf("max_connections must be greater than or equal to min_connections")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// MigrationURL returns the golang-migrate database URL for the pgx/v5 driver
func (dc *DatabaseConfig) MigrationURL() string {
	table := dc.MigrationsTable
	if table == "" {
		table = "advsearch_migrations"
	}
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s&x-migrations-table=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode, table)
}

// Validate validates search configuration
func (sc *SearchConfig) Validate() error {
	switch strings.ToLower(sc.DefaultSortOrder) {
	case "asc", "desc":
	default:
		return fmt.Errorf("default_sort_order must be 'asc' or 'desc', got: %s", sc.DefaultSortOrder)
	}
	if sc.DefaultPerPage <= 0 {
		return fmt.Errorf("default_per_page must be positive, got: %d", sc.DefaultPerPage)
	}
	if sc.MaxPerPage < sc.DefaultPerPage {
		return fmt.Errorf("max_per_page must be greater than or equal to default_per_page")
	}
	if sc.SubqueryMode != "eager" && sc.SubqueryMode != "inline" {
		return fmt.Errorf("subquery_mode must be 'eager' or 'inline', got: %s", sc.SubqueryMode)
	}
	if sc.MaxSubqueryDepth < 0 {
		return fmt.Errorf("max_subquery_depth cannot be negative")
	}
	if sc.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	for alias, terms := range sc.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("alias name cannot be empty")
		}
		if len(terms) == 0 {
			return fmt.Errorf("alias %q must map to at least one property", alias)
		}
	}
	return nil
}

// Validate validates vocabulary configuration
func (vc *VocabularyConfig) Validate() error {
	if vc.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative")
	}
	return nil
}

// Validate validates scaling configuration
func (sc *ScalingConfig) Validate() error {
	switch sc.Backend {
	case "local", "postgres":
	case "redis":
		if sc.RedisURL == "" {
			return fmt.Errorf("redis_url is required when backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid scaling backend: %s (must be local, postgres or redis)", sc.Backend)
	}
	return nil
}

// Validate validates metrics configuration
func (mc *MetricsConfig) Validate() error {
	if mc.Enabled && !strings.HasPrefix(mc.Path, "/") {
		return fmt.Errorf("metrics path must start with '/', got: %s", mc.Path)
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %f", tc.SampleRate)
	}
	return nil
}

// Validate validates log configuration
func (lc *LogConfig) Validate() error {
	switch strings.ToLower(lc.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}
	if lc.Format != "console" && lc.Format != "json" && lc.Format != "" {
		return fmt.Errorf("log format must be 'console' or 'json', got: %s", lc.Format)
	}
	return nil
}
