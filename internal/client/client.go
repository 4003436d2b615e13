// Package client provides an HTTP client for the RAG chatbot backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/ragchat/internal/credential"
	"github.com/raphaelgruber/ragchat/internal/metrics"
)

// DefaultTimeout bounds a single backend call. Chat completions with RAG
// retrieval can take a while, so this is generous.
const DefaultTimeout = 2 * time.Minute

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     credential.Store
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records call timings into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL. The bearer token is read from tokens
// on every call; tokens may be nil for unauthenticated use.
func New(baseURL string, tokens credential.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one backend call.
type request struct {
	op          string // metrics operation name
	method      string
	path        string
	body        io.Reader
	contentType string
	token       *string // explicit token; nil means read from the store
}

func (c *Client) jsonRequest(op, method, path string, payload any) (request, error) {
	req := request{op: op, method: method, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return req, fmt.Errorf("marshal request: %w", err)
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}
	return req, nil
}

// do executes the request and returns the raw response body of a 2xx reply.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	start := time.Now()
	body, status, err := c.roundTrip(ctx, r)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordCall(r.op, duration, err)
	}

	c.logCall(r, status, duration, err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, r request) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(r.token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, newAPIError(resp.StatusCode, body)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) bearer(explicit *string) string {
	if explicit != nil {
		return *explicit
	}
	if c.tokens == nil {
		return ""
	}
	token, _ := c.tokens.Get()
	return token
}

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors for backend responses. Use errors.Is() to check.
var (
	// ErrUnauthorized indicates a missing, expired, or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested chat does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server error: %d %s - %s", e.Status, http.StatusText(e.Status), e.Detail)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int { return e.Status }

// Unwrap maps well-known statuses to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// newAPIError decodes FastAPI's {"detail": ...} body when present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			// Validation errors come back as a list of objects.
			apiErr.Detail = string(payload.Detail)
		}
		return apiErr
	}
	apiErr.Detail = truncate(strings.TrimSpace(string(body)), maxErrLogLen)
	return apiErr
}

// =============================================================================
// META
// =============================================================================

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req := request{op: metrics.OpHealth, method: http.MethodGet, path: "/healthz"}
	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("backend reported not ok")
	}
	return nil
}
