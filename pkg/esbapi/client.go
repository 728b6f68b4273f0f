// Package esbapi is a typed client for the SACCO ESB admin API: dashboard
// figures, transaction and integration logs, and management of entities,
// users, roles and partners.
//
// The client does not authenticate on its own; hand it an authenticated
// round tripper (authsdk.Transport) with WithTransport.
package esbapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Timeouts per endpoint class.
const (
	DefaultTimeout = 30 * time.Second
	ReportTimeout  = 120 * time.Second
)

// APIError is a non-2xx answer from the ESB.
type APIError struct {
	Status   int
	Message  string
	DateTime string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esbapi: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Option func(*Client)

// WithTransport routes every call through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.rest.SetTransport(rt)
	}
}

// WithTimeouts overrides the standard and report timeouts. Non-positive
// values keep the defaults.
func WithTimeouts(standard, report time.Duration) Option {
	return func(c *Client) {
		if standard > 0 {
			c.timeout = standard
		}
		if report > 0 {
			c.reportTimeout = report
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the ESB admin API.
type Client struct {
	rest          *resty.Client
	timeout       time.Duration
	reportTimeout time.Duration
	logger        *slog.Logger
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		rest: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Accept", "application/json"),
		timeout:       DefaultTimeout,
		reportTimeout: ReportTimeout,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type callClass int

const (
	standardCall callClass = iota
	reportCall
)

// do executes one call and decodes a JSON answer into out when non-nil.
func (c *Client) do(ctx context.Context, class callClass, method, path string, query url.Values, body, out any) error {
	timeout := c.timeout
	if class == reportCall {
		timeout = c.reportTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("esb call failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("esbapi: %s %s: %w", method, path, err)
	}

	if resp.IsError() {
		return parseError(resp.StatusCode(), resp.Body())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("esbapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var eb struct {
		Message  string `json:"message"`
		DateTime string `json:"dateTime"`
	}
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}
		apiErr.DateTime = eb.DateTime
	}

	return apiErr
}
