package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Auth endpoint paths, relative to the ESB base URL.
const (
	AuthenticatePath = "/api/auth/authenticate"
	RefreshPath      = "/auth/refreshToken"
)

// DefaultTimeout bounds every auth endpoint call.
const DefaultTimeout = 30 * time.Second

// Client talks to the unauthenticated auth endpoints. It never attaches a
// bearer token.
type Client struct {
	BaseURL string
	rest    *resty.Client
}

// NewClient creates an auth client. transport may be nil for the default.
func NewClient(baseURL string, transport http.RoundTripper) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if transport != nil {
		rest.SetTransport(transport)
	}

	return &Client{BaseURL: baseURL, rest: rest}
}

// Authenticate exchanges credentials for a token pair.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*TokenPair, error) {
	return c.requestToken(ctx, AuthenticatePath, creds)
}

// RefreshGrant exchanges a refresh token for a new pair.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return c.requestToken(ctx, RefreshPath, refreshRequest{RefreshToken: refreshToken})
}

func (c *Client) requestToken(ctx context.Context, path string, body any) (*TokenPair, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode(), resp.Body())
	}

	var pair TokenPair
	if err := json.Unmarshal(resp.Body(), &pair); err != nil {
		return nil, invalidResponse(resp.StatusCode(), fmt.Errorf("failed to decode token response: %w", err))
	}
	if pair.AccessToken == "" {
		return nil, invalidResponse(resp.StatusCode(), ErrMissingAccessToken)
	}

	return &pair, nil
}

func invalidResponse(status int, err error) *AuthError {
	return &AuthError{Kind: KindInvalidResponse, Status: status, Message: MsgInvalidResponse, Err: err}
}
