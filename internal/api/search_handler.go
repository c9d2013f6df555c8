package api

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fluxbase-eu/advancedsearch/internal/query"
	"github.com/fluxbase-eu/advancedsearch/internal/search"
	"github.com/fluxbase-eu/advancedsearch/internal/vocabulary"
	"github.com/gofiber/fiber/v2"
)

// SearchService runs and compiles searches.
type SearchService interface {
	Search(ctx context.Context, resourceType string, raw query.Raw) (*search.Result, error)
	Compile(ctx context.Context, resourceType string, raw query.Raw) (*search.Compiled, error)
}

// PropertyService lists the known properties and invalidates their cache.
type PropertyService interface {
	Properties(ctx context.Context) ([]vocabulary.Property, error)
	InvalidateAll(ctx context.Context) error
}

// SearchHandler serves the search, compile and property endpoints.
type SearchHandler struct {
	searcher   SearchService
	properties PropertyService
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher SearchService, properties PropertyService) *SearchHandler {
	return &SearchHandler{searcher: searcher, properties: properties}
}

// parseQuery reads the raw query of a request. GET requests carry it in the
// URL; POST requests in a JSON or form-encoded body, falling back to the URL
// when the body is empty.
func parseQuery(c *fiber.Ctx) (query.Raw, error) {
	body := c.Body()
	if c.Method() == fiber.MethodPost && len(body) > 0 {
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			raw := query.Raw{}
			if err := json.Unmarshal(body, &raw); err != nil {
				return nil, err
			}
			return raw, nil
		}
		return query.ParseQueryString(string(body))
	}
	return query.ParseQueryString(string(c.Request().URI().QueryString()))
}

func (h *SearchHandler) badQuery(c *fiber.Ctx, err error) error {
	return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY",
		err.Error(), "Send form-encoded parameters or a JSON object", nil)
}

// Search handles GET and POST /api/search/:resource_type.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	resourceType := c.Params("resource_type")
	if !search.ValidResourceType(resourceType) {
		return handleSearchError(c, search.ErrUnknownResourceType, "search")
	}

	raw, err := parseQuery(c)
	if err != nil {
		return h.badQuery(c, err)
	}

	result, err := h.searcher.Search(c.UserContext(), resourceType, raw)
	if err != nil {
		return handleSearchError(c, err, "search")
	}

	c.Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	return c.JSON(result)
}

// Compile handles GET and POST /api/compile/:resource_type. It returns the
// generated SQL without running it; ?validate=true also parses it.
func (h *SearchHandler) Compile(c *fiber.Ctx) error {
	resourceType := c.Params("resource_type")
	if !search.ValidResourceType(resourceType) {
		return handleSearchError(c, search.ErrUnknownResourceType, "compile query")
	}

	raw, err := parseQuery(c)
	if err != nil {
		return h.badQuery(c, err)
	}
	delete(raw, "validate")

	compiled, err := h.searcher.Compile(c.UserContext(), resourceType, raw)
	if err != nil {
		return handleSearchError(c, err, "compile query")
	}

	if c.QueryBool("validate") {
		compiled.Validate()
	}
	return c.JSON(compiled)
}

type propertyResponse struct {
	ID    int    `json:"id"`
	Term  string `json:"term"`
	Label string `json:"label"`
}

// ListProperties handles GET /api/properties.
func (h *SearchHandler) ListProperties(c *fiber.Ctx) error {
	props, err := h.properties.Properties(c.UserContext())
	if err != nil {
		return handleSearchError(c, err, "list properties")
	}

	out := make([]propertyResponse, 0, len(props))
	for _, p := range props {
		out = append(out, propertyResponse{ID: p.ID, Term: p.Term(), Label: p.Label})
	}
	return c.JSON(fiber.Map{
		"properties": out,
		"count":      len(out),
	})
}

// InvalidateProperties handles POST /api/properties/invalidate.
func (h *SearchHandler) InvalidateProperties(c *fiber.Ctx) error {
	if err := h.properties.InvalidateAll(c.UserContext()); err != nil {
		return handleSearchError(c, err, "invalidate properties")
	}
	return c.JSON(fiber.Map{"status": "invalidated"})
}

// ResourceTypes handles GET /api/resource-types.
func (h *SearchHandler) ResourceTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"resource_types": search.ResourceTypes()})
}
