package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport logs every outbound call as an "http_call" entry and makes a
// request-scoped logger available to inner round trippers.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base, or http.DefaultTransport when nil.
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = FromContext(req.Context())
	}

	logger = logger.With(
		"method", req.Method,
		"path", req.URL.Path,
	)
	if reqID := req.Header.Get("X-Request-ID"); reqID != "" {
		logger = logger.With("req_id", reqID)
	}

	req = req.WithContext(WithContext(req.Context(), logger))

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("http_call", "error", err, "duration_ms", duration)
		return nil, err
	}

	logger.Info("http_call",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
