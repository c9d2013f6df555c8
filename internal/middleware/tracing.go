package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxbase-eu/advancedsearch/internal/observability"
)

const tracerName = "advsearch-http"

// Tracing returns a middleware that opens a server span per request and
// stores it in the user context, so search and database spans become its
// children. Requests for skipPaths are not traced.
func Tracing(skipPaths ...string) fiber.Handler {
	tracer := otel.Tracer(tracerName)

	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}

		ctx, span := tracer.Start(ctx, c.Method()+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPRoute(route),
				attribute.String("http.request_id", requestID(c)),
				attribute.Int("http.query_bytes", len(c.Request().URI().QueryString())),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		if traceID := observability.TraceID(ctx); traceID != "" {
			c.Set("X-Trace-ID", traceID)
		}

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if resourceType := c.Params("resource_type"); resourceType != "" {
			span.SetAttributes(attribute.String("search.resource_type", resourceType))
		}
		if total := c.GetRespHeader("X-Total-Count"); total != "" {
			span.SetAttributes(attribute.String("search.total", total))
		}

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= 400:
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		default:
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

// GetTraceID returns the trace id of the request, or "" when untraced.
func GetTraceID(c *fiber.Ctx) string {
	return observability.TraceID(c.UserContext())
}

// SetSpanError records err on the request span.
func SetSpanError(c *fiber.Ctx, err error) {
	if span := trace.SpanFromContext(c.UserContext()); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
