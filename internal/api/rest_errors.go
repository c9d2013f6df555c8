package api

import (
	"context"
	"errors"

	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/fluxbase-eu/advancedsearch/internal/middleware"
	"github.com/fluxbase-eu/advancedsearch/internal/search"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// StatusClientClosedRequest is returned when the client went away or the
// statement was canceled before the search finished.
const StatusClientClosedRequest = 499

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestid"); requestID != nil {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return c.Get("X-Request-ID", "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Hint      string      `json:"hint,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SendError sends a standardized error response with request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithDetails sends a detailed error response with request ID
func SendErrorWithDetails(c *fiber.Ctx, statusCode int, errMsg string, code string, message string, hint string, details interface{}) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		Hint:      hint,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

// handleSearchError maps a search or compile failure to a response.
// Caller mistakes are 4xx, a missing schema is 503, and everything else is
// logged and reported as 500.
func handleSearchError(c *fiber.Ctx, err error, operation string) error {
	middleware.SetSpanError(c, err)

	switch {
	case errors.Is(err, search.ErrUnknownResourceType):
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Unknown resource type", "UNKNOWN_RESOURCE_TYPE",
			err.Error(), "Use one of: resources, items, item_sets, media, annotations", search.ResourceTypes())

	case errors.Is(err, search.ErrSubqueryDepth):
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Sub-queries are nested too deeply", "SUBQUERY_TOO_DEEP",
			err.Error(), "Flatten the query or raise search.max_subquery_depth", nil)

	case errors.Is(err, context.Canceled), database.IsQueryCanceled(err):
		log.Debug().Err(err).Str("request_id", getRequestID(c)).Msg("Search canceled")
		return SendErrorWithCode(c, StatusClientClosedRequest, "Search canceled", "QUERY_CANCELED")

	case errors.Is(err, context.DeadlineExceeded):
		return SendErrorWithCode(c, fiber.StatusGatewayTimeout, "Search timed out", "QUERY_TIMEOUT")

	case database.IsUndefinedTable(err):
		log.Error().Err(err).Msg("Catalogue schema is missing")
		return SendErrorWithDetails(c, fiber.StatusServiceUnavailable, "Search schema is not installed", "SCHEMA_MISSING",
			"", "Run 'advsearch migrate' or start the server with --migrate", nil)

	case database.IsInvalidInput(err):
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid search value", "INVALID_INPUT",
			"The database rejected a value of the query", "Check regular expressions and numeric values", nil)
	}

	log.Error().
		Err(err).
		Str("operation", operation).
		Str("request_id", getRequestID(c)).
		Msg("Search operation failed")

	return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to "+operation, "SEARCH_FAILED")
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return SendError(c, code, message)
}
