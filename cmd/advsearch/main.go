package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/api"
	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/fluxbase-eu/advancedsearch/internal/jobs"
	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/pubsub"
	"github.com/fluxbase-eu/advancedsearch/internal/ratelimit"
	"github.com/fluxbase-eu/advancedsearch/internal/search"
	"github.com/fluxbase-eu/advancedsearch/internal/vocabulary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	runMigrations bool
)

var rootCmd = &cobra.Command{
	Use:          "advsearch",
	Short:        "Advanced search server for EAV resource catalogues",
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the search HTTP server",
	RunE:  runServer,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("advsearch %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
	},
}

func init() {
	serverCmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply database migrations before starting")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and configures the global logger.
func setup() (*config.Config, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if strings.EqualFold(cfg.Log.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	observability.ServiceVersion = Version
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Msg("Migrations applied")
	return nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting advsearch")

	startTime := time.Now()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	tracer, err := observability.NewTracer(cmd.Context(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if metrics != nil {
		db.SetMetrics(metrics)
	}

	if runMigrations {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Property cache, shared by every instance through the scaling backend
	properties := vocabulary.NewPropertyCache(vocabulary.NewDBLoader(db), cfg.Vocabulary.CacheTTL)
	defer properties.Close()
	if metrics != nil {
		properties.SetMetrics(metrics)
	}

	ps, err := pubsub.NewPubSub(&cfg.Scaling, db.Pool())
	if err != nil {
		return fmt.Errorf("failed to initialize pub/sub: %w", err)
	}
	defer ps.Close()
	properties.SetPubSub(ps)

	if err := properties.Refresh(cmd.Context()); err != nil {
		// The cache retries on first use; an unmigrated schema is not fatal here.
		log.Warn().Err(err).Msg("Initial property cache load failed")
	}

	store, err := ratelimit.NewStore(&cfg.Scaling, db)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limit store: %w", err)
	}
	defer store.Close()

	compiler := search.NewCompiler(properties, search.OptionsFromConfig(cfg.Search))
	searcher := search.NewSearcher(db, compiler, cfg.Search.SlowThreshold)
	if metrics != nil {
		searcher.SetMetrics(metrics)
	}

	scheduler := jobs.NewScheduler(time.Minute)
	// Only one instance prunes the shared rate limit table.
	var elector *jobs.LeaderElector
	if cfg.Scaling.Backend == "postgres" {
		conn, err := db.Pool().Acquire(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to acquire leader election connection: %w", err)
		}
		defer conn.Release()
		elector = jobs.NewLeaderElector(conn, jobs.MaintenanceLockID, "maintenance")
		elector.Start()
		defer elector.Stop()
	}

	if err := scheduleJobs(scheduler, cfg, db, properties, store, elector, metrics, startTime); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(cfg, api.Dependencies{
		Searcher:       searcher,
		Properties:     properties,
		Health:         db,
		Metrics:        metrics,
		Tracer:         tracer,
		RateLimitStore: store,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Server exited")
	return nil
}

// scheduleJobs registers the background maintenance jobs.
func scheduleJobs(
	scheduler *jobs.Scheduler,
	cfg *config.Config,
	db *database.Connection,
	properties *vocabulary.PropertyCache,
	store ratelimit.Store,
	elector *jobs.LeaderElector,
	metrics *observability.Metrics,
	startTime time.Time,
) error {
	if cfg.Vocabulary.RefreshSchedule != "" {
		if err := scheduler.Schedule("vocabulary-refresh", cfg.Vocabulary.RefreshSchedule, properties.Refresh); err != nil {
			return fmt.Errorf("failed to schedule vocabulary refresh: %w", err)
		}
	}

	if cleaner, ok := store.(ratelimit.Cleaner); ok {
		err := scheduler.Schedule("rate-limit-cleanup", "@every 5m", jobs.LeaderOnly(elector, func(ctx context.Context) error {
			removed, err := cleaner.Cleanup(ctx)
			if err == nil && removed > 0 {
				log.Debug().Int64("removed", removed).Msg("Expired rate limit counters removed")
			}
			return err
		}))
		if err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup: %w", err)
		}
	}

	if metrics != nil {
		err := scheduler.Schedule("metrics", "@every 15s", func(context.Context) error {
			db.ReportStats()
			metrics.UpdateUptime(startTime)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to schedule metrics collection: %w", err)
		}
	}

	return nil
}
