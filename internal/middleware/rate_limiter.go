package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Name       string                  // Limiter name, used as key prefix and metric label
	Max        int                     // Maximum number of requests
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Function to generate the key for rate limiting
	Message    string                  // Custom error message
	Store      ratelimit.Store         // Counter storage shared by instances
	Metrics    *observability.Metrics  // Optional
}

// NewRateLimiter creates a fixed window rate limiter over a ratelimit.Store.
// When the store fails the request is let through.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	if config.Store == nil {
		config.Store = ratelimit.NewMemoryStore(10 * time.Minute)
	}
	if config.Name == "" {
		config.Name = "api"
	}
	if config.Expiration <= 0 {
		config.Expiration = time.Minute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	return func(c *fiber.Ctx) error {
		key := config.Name + ":" + config.KeyFunc(c)

		result, err := ratelimit.Check(c.UserContext(), config.Store, key, int64(config.Max), config.Expiration)
		if err != nil {
			log.Warn().Err(err).Str("limiter", config.Name).Msg("Rate limit check failed, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if config.Metrics != nil {
				config.Metrics.RecordRateLimitHit(config.Name)
			}
			retryAfter := result.RetryAfter(time.Now())
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			log.Warn().
				Str("limiter", config.Name).
				Str("ip", c.IP()).
				Str("path", c.Path()).
				Int("max", config.Max).
				Msg("Rate limit exceeded")

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"message":     config.Message,
				"retry_after": retryAfter,
			})
		}

		return c.Next()
	}
}

// SearchLimiter limits search and compile requests per client IP. A limit
// of zero disables it.
func SearchLimiter(perMinute int, store ratelimit.Store, metrics *observability.Metrics) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return NewRateLimiter(RateLimiterConfig{
		Name:       "search",
		Max:        perMinute,
		Expiration: time.Minute,
		Store:      store,
		Metrics:    metrics,
		Message:    fmt.Sprintf("Search rate limit exceeded. Maximum %d requests per minute allowed.", perMinute),
	})
}
