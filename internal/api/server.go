package api

import (
	"context"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/middleware"
	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the services the server routes to. Metrics, Tracer and
// RateLimitStore are optional.
type Dependencies struct {
	Searcher       SearchService
	Properties     PropertyService
	Health         HealthChecker
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	RateLimitStore ratelimit.Store
}

// Server represents the HTTP server
type Server struct {
	app     *fiber.App
	config  *config.Config
	deps    Dependencies
	handler *SearchHandler
	started time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "advsearch",
		AppName:               "advsearch " + observability.ServiceVersion,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	server := &Server{
		app:     app,
		config:  cfg,
		deps:    deps,
		handler: NewSearchHandler(deps.Searcher, deps.Properties),
		started: time.Now(),
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	if s.config.Tracing.Enabled && s.deps.Tracer != nil && s.deps.Tracer.IsEnabled() {
		s.app.Use(middleware.Tracing("/health", s.config.Metrics.Path))
	}

	loggerCfg := middleware.DefaultStructuredLoggerConfig()
	loggerCfg.SkipPaths = append(loggerCfg.SkipPaths, s.config.Metrics.Path)
	loggerCfg.LogRequestBody = s.config.Debug
	loggerCfg.SlowRequestThreshold = s.config.Search.SlowThreshold
	s.app.Use(middleware.StructuredLogger(loggerCfg))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  s.config.Server.CORSOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-Trace-ID,X-Total-Count,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After",
	}))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))

	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.MetricsMiddleware())
	}
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled && s.deps.Metrics != nil {
		s.app.Get(s.config.Metrics.Path, s.deps.Metrics.Handler())
	}

	limiter := middleware.SearchLimiter(s.config.Search.RateLimit, s.deps.RateLimitStore, s.deps.Metrics)

	api := s.app.Group("/api")
	api.Get("/search/:resource_type", limiter, s.handler.Search)
	api.Post("/search/:resource_type", limiter, s.handler.Search)
	api.Get("/compile/:resource_type", limiter, s.handler.Compile)
	api.Post("/compile/:resource_type", limiter, s.handler.Compile)

	api.Get("/resource-types", s.handler.ResourceTypes)
	api.Get("/properties", s.handler.ListProperties)
	api.Post("/properties/invalidate", s.handler.InvalidateProperties)
}

// handleHealth reports the database status
func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":  "ok",
		"version": observability.ServiceVersion,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}

	if s.deps.Health != nil {
		if err := s.deps.Health.Health(c.UserContext()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			status["status"] = "unavailable"
			status["database"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		status["database"] = "ok"
	}

	return c.JSON(status)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}
