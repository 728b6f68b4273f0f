package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/saccoesb/pkg/slogx"
)

// ErrRateLimited is returned by RateLimit when an outbound call was refused
// locally without reaching the server.
var ErrRateLimited = errors.New("httpx: rate limit exceeded")

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Limit converts the window into a per-second rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.Window <= 0 || c.RequestsPerWindow <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// Outbound profiles. Each can be overridden via environment variables
// (see init below).
var (
	// StrictLimit guards the sign-in endpoint so a stuck retry loop or a
	// guessing operator cannot hammer the auth service.
	// Override with: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC, RATELIMIT_STRICT_BURST
	StrictLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		Burst:             5,
	}

	// LenientLimit paces ordinary API traffic.
	// Override with: RATELIMIT_LENIENT_REQUESTS, RATELIMIT_LENIENT_WINDOW_SEC, RATELIMIT_LENIENT_BURST
	LenientLimit = RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		Burst:             100,
	}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC, RATELIMIT_STRICT_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// RateLimitRule applies a limit to requests whose path ends in PathSuffix.
// An empty suffix matches every request.
type RateLimitRule struct {
	PathSuffix string
	Config     RateLimitConfig

	// Wait blocks until a token is available instead of failing fast.
	Wait bool
}

type boundRule struct {
	RateLimitRule
	limiter *rate.Limiter
}

// RateLimit is an http.RoundTripper that paces outbound calls. The first
// matching rule wins; unmatched requests pass through.
type RateLimit struct {
	Base  http.RoundTripper
	rules []boundRule
}

// NewRateLimit wraps base, or http.DefaultTransport when nil.
func NewRateLimit(base http.RoundTripper, rules ...RateLimitRule) *RateLimit {
	rl := &RateLimit{Base: base}
	for _, r := range rules {
		rl.rules = append(rl.rules, boundRule{
			RateLimitRule: r,
			limiter:       rate.NewLimiter(r.Config.Limit(), max(r.Config.Burst, 1)),
		})
	}
	return rl
}

// RoundTrip implements http.RoundTripper.
func (rl *RateLimit) RoundTrip(req *http.Request) (*http.Response, error) {
	rule := rl.match(req.URL.Path)
	if rule == nil {
		return rl.base().RoundTrip(req)
	}

	ctx := req.Context()
	log := slogx.FromContext(ctx)

	if rule.Wait {
		if err := rule.limiter.Wait(ctx); err != nil {
			CloseRequestBody(req)
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return rl.base().RoundTrip(req)
	}

	if !rule.limiter.Allow() {
		// Peek at when the next token frees up without consuming it.
		reservation := rule.limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		retryAfter := max(int(delay.Seconds()), 1)

		log.Warn("outbound rate limit exceeded",
			"endpoint", req.URL.Path,
			"retry_after", retryAfter,
		)

		CloseRequestBody(req)
		return nil, fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
	}

	return rl.base().RoundTrip(req)
}

func (rl *RateLimit) match(path string) *boundRule {
	for i := range rl.rules {
		if strings.HasSuffix(path, rl.rules[i].PathSuffix) {
			return &rl.rules[i]
		}
	}
	return nil
}

func (rl *RateLimit) base() http.RoundTripper {
	if rl.Base != nil {
		return rl.Base
	}
	return http.DefaultTransport
}
