package authsdk

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/saccoesb/pkg/httpx"
	"github.com/aussiebroadwan/saccoesb/pkg/idx"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Transport authenticates outbound API requests. It attaches the bearer
// token, disables caching and, on a 401, joins the shared refresh and
// replays the request once with the new token.
//
// Calls to the authenticate and refresh endpoints pass through untouched.
type Transport struct {
	Base      http.RoundTripper
	Session   *Session
	Refresher *Refresher

	// Now stamps the cache-busting query parameter. Defaults to time.Now.
	Now func() time.Time
}

// NewTransport wraps base, or http.DefaultTransport when nil.
func NewTransport(session *Session, refresher *Refresher, base http.RoundTripper) *Transport {
	return &Transport{Base: base, Session: session, Refresher: refresher}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isAuthEndpoint(req.URL) {
		return t.base().RoundTrip(req)
	}

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
	}

	token := t.Session.AccessToken()
	resp, err := t.base().RoundTrip(t.authorize(req, token, reqID))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// Without GetBody the body is already consumed and cannot be sent again.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	fresh, err := t.Refresher.Do(req.Context(), token)
	if err != nil {
		return nil, err
	}

	retry := t.authorize(req, fresh, reqID)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	return t.base().RoundTrip(retry)
}

// authorize returns a clone of req carrying the auth and cache headers.
func (t *Transport) authorize(req *http.Request, token, reqID string) *http.Request {
	r := req.Clone(req.Context())

	httpx.Bearer(r.Header, token)
	httpx.NoCache(r.Header)
	r.Header.Set(RequestIDHeader, reqID)

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		q.Set("_", strconv.FormatInt(t.now().UnixMilli(), 10))
		r.URL.RawQuery = q.Encode()
	}

	return r
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func isAuthEndpoint(u *url.URL) bool {
	return strings.HasSuffix(u.Path, AuthenticatePath) || strings.HasSuffix(u.Path, RefreshPath)
}
