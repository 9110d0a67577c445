// Package backend is the HTTP client of the LMS REST API. Every response is
// folded into an Envelope at this boundary so callers never branch on the
// raw body shape.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const maxBodySize = 4 << 20

// Logger is the structured logger used by the client
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Client calls the LMS REST API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	token          string
	onUnauthorized func(ctx context.Context)
	logger         Logger
	debug          bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebug dumps request and response payloads
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: nopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithToken returns a copy that sends the bearer token. onUnauthorized is
// called whenever a request made with that copy gets a 401.
func (c *Client) WithToken(token string, onUnauthorized func(ctx context.Context)) *Client {
	out := *c
	out.token = token
	out.onUnauthorized = onUnauthorized
	return &out
}

// Token returns the bearer token bound to the client
func (c *Client) Token() string {
	return c.token
}

// Do sends a JSON request. The envelope is returned whenever the backend
// answered; the error is set for transport failures and non 2xx statuses.
// A 2xx wrapped response with success=false returns no error and an
// envelope with Success=false.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (*Envelope, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "encode request payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "build backend request")
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "error", err)
		return nil, transportError(err, method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(err, method, path)
	}

	c.logger.Debug("backend response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if c.debug {
		c.logger.Debug("backend payload", "path", path, "body", print.MaybePrettyJSON(json.RawMessage(raw)))
	}

	env := Normalize(resp.StatusCode, raw)

	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return env, httpError(env, method, path)
	}

	return env, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func resourcePath(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
