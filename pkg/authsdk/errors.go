package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aussiebroadwan/saccoesb/pkg/httpx"
)

var (
	// ErrNoRefreshToken is returned by Refresh when there is nothing to
	// exchange.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token available")

	// ErrRefreshFailed wraps every failed shared refresh. The session has
	// been logged out by the time a caller sees it.
	ErrRefreshFailed = errors.New("authsdk: token refresh failed")

	// ErrNotAuthenticated is returned when a request is replayed after the
	// session was already cleared, or when the session ended or changed
	// while a refresh was in flight.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")

	// ErrMissingAccessToken is wrapped by an AuthError when the auth service
	// answered 200 without an access token.
	ErrMissingAccessToken = errors.New("authsdk: token response has no access_token")
)

// ErrorKind classifies an AuthError.
type ErrorKind string

const (
	KindHTTP            ErrorKind = "http"
	KindNetwork         ErrorKind = "network"
	KindTimeout         ErrorKind = "timeout"
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// User-facing messages for authentication failures.
const (
	MsgBadRequest      = "Invalid request. Please check your username and password."
	MsgUnauthorized    = "Invalid username or password."
	MsgForbidden       = "Access denied. Your account is not allowed to sign in."
	MsgNotFound        = "Authentication service not found. Please contact support."
	MsgServerError     = "Server error. Please try again later."
	MsgUnexpected      = "An unexpected error occurred. Please try again."
	MsgNetwork         = "Unable to reach the server. Please check your network or VPN connection."
	MsgTimeout         = "The request timed out. Please check your VPN connection and try again."
	MsgRateLimited     = "Too many sign-in attempts. Please wait a minute and try again."
	MsgInvalidResponse = "The server returned an invalid token. Please contact support."
)

// AuthError is the normalized failure of an auth endpoint call. Message is
// always safe to show to the operator.
type AuthError struct {
	Kind ErrorKind

	// Status is the HTTP status, 0 when the server was never reached.
	Status int

	Message string

	// DateTime is echoed from the API error body when present.
	DateTime string

	Err error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// statusMessage maps an HTTP status to its operator message.
func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return MsgBadRequest
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusForbidden:
		return MsgForbidden
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusInternalServerError:
		return MsgServerError
	default:
		return MsgUnexpected
	}
}

// parseErrorResponse prefers the API's own {message, dateTime} body and
// falls back to a status-derived message.
func parseErrorResponse(status int, body []byte) *AuthError {
	authErr := &AuthError{
		Kind:    KindHTTP,
		Status:  status,
		Message: statusMessage(status),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		authErr.Message = eb.Message
		authErr.DateTime = eb.DateTime
	}

	return authErr
}

// transportError normalizes failures that happened before any response.
func transportError(err error) *AuthError {
	var netErr net.Error
	switch {
	case errors.Is(err, httpx.ErrRateLimited):
		return &AuthError{Kind: KindRateLimited, Message: MsgRateLimited, Err: err}
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &AuthError{Kind: KindTimeout, Message: MsgTimeout, Err: err}
	default:
		return &AuthError{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	}
}

// Message extracts an operator-facing message from any error returned by
// this package.
func Message(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNotAuthenticated) {
		return "Your session has expired. Please sign in again."
	}
	return MsgUnexpected
}
