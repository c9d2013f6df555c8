// Package client provides the HTTP client for the advsearch API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is the advsearch API client
type Client struct {
	// BaseURL is the advsearch server URL
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Debug enables debug logging
	Debug bool

	// DebugWriter receives debug output
	DebugWriter io.Writer

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "advsearch-cli/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool, w io.Writer) ClientOption {
	return func(c *Client) {
		c.Debug = debug
		c.DebugWriter = w
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// SearchResult is one page of matching ids.
type SearchResult struct {
	IDs     []int `json:"ids" yaml:"ids"`
	Total   int64 `json:"total" yaml:"total"`
	Page    int   `json:"page" yaml:"page"`
	PerPage int   `json:"per_page" yaml:"per_page"`
}

// Validation is the parser verdict on compiled SQL.
type Validation struct {
	Valid       bool     `json:"valid" yaml:"valid"`
	Errors      []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
}

// CompileResult is the SQL generated for a query.
type CompileResult struct {
	ResourceType string                 `json:"resource_type" yaml:"resource_type"`
	Query        map[string]interface{} `json:"query" yaml:"query"`
	SQL          string                 `json:"sql" yaml:"sql"`
	Args         []interface{}          `json:"args" yaml:"args"`
	CountSQL     string                 `json:"count_sql" yaml:"count_sql"`
	CountArgs    []interface{}          `json:"count_args" yaml:"count_args"`
	Page         int                    `json:"page" yaml:"page"`
	PerPage      int                    `json:"per_page" yaml:"per_page"`
	Rows         int                    `json:"rows" yaml:"rows"`
	Dropped      int                    `json:"dropped" yaml:"dropped"`
	Validation   *Validation            `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Property is a known metadata field.
type Property struct {
	ID    int    `json:"id" yaml:"id"`
	Term  string `json:"term" yaml:"term"`
	Label string `json:"label" yaml:"label"`
}

// Request makes an API request. A non-nil body is sent as JSON.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.Debug && c.DebugWriter != nil {
		fmt.Fprintf(c.DebugWriter, "DEBUG: %s %s (request %s)\n", method, u.String(), req.Header.Get("X-Request-ID"))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// do performs a request and decodes the response into target
func (c *Client) do(ctx context.Context, method, path string, body interface{}, query url.Values, target interface{}) error {
	resp, err := c.Request(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// Search runs a search whose parameters are given in form syntax.
func (c *Client) Search(ctx context.Context, resourceType string, query url.Values) (*SearchResult, error) {
	var result SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/search/"+url.PathEscape(resourceType), nil, query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchJSON runs a search whose parameters are a JSON document.
func (c *Client) SearchJSON(ctx context.Context, resourceType string, body map[string]interface{}) (*SearchResult, error) {
	var result SearchResult
	if err := c.do(ctx, http.MethodPost, "/api/search/"+url.PathEscape(resourceType), body, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Compile returns the SQL the server generates for a query.
func (c *Client) Compile(ctx context.Context, resourceType string, query url.Values, validate bool) (*CompileResult, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if validate {
		q.Set("validate", "true")
	}

	var result CompileResult
	if err := c.do(ctx, http.MethodGet, "/api/compile/"+url.PathEscape(resourceType), nil, q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Properties lists the properties known to the server.
func (c *Client) Properties(ctx context.Context) ([]Property, error) {
	var result struct {
		Properties []Property `json:"properties"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/properties", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Properties, nil
}

// InvalidateProperties asks every server instance to reload its properties.
func (c *Client) InvalidateProperties(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/properties/invalidate", nil, nil, nil)
}

// ResourceTypes lists the searchable resource types.
func (c *Client) ResourceTypes(ctx context.Context) ([]string, error) {
	var result struct {
		ResourceTypes []string `json:"resource_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/resource-types", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.ResourceTypes, nil
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Error_     string `json:"error"`
	Code       string `json:"code"`
	Hint       string `json:"hint"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := e.Error_
	if e.Message != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("API error with status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg
}
