package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Tracing Tests
// =============================================================================

// withRecorder installs a recording tracer provider for the test.
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(t.Context())
	})
	return recorder
}

func TestTracing_TotalCount(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing())
	app.Get("/api/search/:resource_type", func(c *fiber.Ctx) error {
		c.Set("X-Total-Count", "42")
		return c.SendString("OK")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/search/media?fulltext_search=rome", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/search/:resource_type", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("search.total", "42"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.query_bytes", len("fulltext_search=rome")))
}

func TestTracing_RecordsSearchSpan(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing())

	var handlerSpan trace.SpanContext
	app.Get("/api/search/:resource_type", func(c *fiber.Ctx) error {
		handlerSpan = trace.SpanContextFromContext(c.UserContext())
		return c.SendString("OK")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/search/items", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	traceID := resp.Header.Get("X-Trace-ID")
	assert.NotEmpty(t, traceID)
	assert.True(t, handlerSpan.HasTraceID())
	assert.Equal(t, traceID, handlerSpan.TraceID().String())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	found := false
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "search.resource_type" {
			found = true
			assert.Equal(t, "items", attr.Value.AsString())
		}
	}
	assert.True(t, found)
}

func TestTracing_SkipPaths(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing("/health", "/metrics"))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("healthy")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("X-Trace-ID"))
	assert.Empty(t, recorder.Ended())
}

func TestTracing_ErrorStatus(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing())
	app.Get("/api/search/:resource_type", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).SendString("bad")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/search/widgets", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP 400", spans[0].Status().Description)
}

// =============================================================================
// Span Helper Tests
// =============================================================================

func TestGetTraceID(t *testing.T) {
	t.Run("empty without a span", func(t *testing.T) {
		app := fiber.New()
		var id string
		app.Get("/", func(c *fiber.Ctx) error {
			id = GetTraceID(c)
			return nil
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, id)
	})

	t.Run("set by the middleware", func(t *testing.T) {
		withRecorder(t)

		app := fiber.New()
		app.Use(Tracing())
		var id string
		app.Get("/", func(c *fiber.Ctx) error {
			id = GetTraceID(c)
			return nil
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Len(t, id, 32)
	})
}

func TestSetSpanError(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error {
		SetSpanError(c, errors.New("compile failed"))
		return c.SendString("OK")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	resp.Body.Close()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
