package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshTimeout bounds a single shared refresh.
const DefaultRefreshTimeout = 30 * time.Second

type refreshState int

const (
	refreshIdle refreshState = iota
	refreshInFlight
)

type refreshResult struct {
	token string
	err   error
}

// Refresher coordinates token refreshes so that at most one is in flight.
// Every caller that arrives while a refresh is running waits for it and
// receives the same outcome.
type Refresher struct {
	session *Session
	logger  *slog.Logger

	// Timeout bounds each refresh; it runs detached from callers' contexts.
	Timeout time.Duration

	// OnFailure, when set, is called after a failed refresh forced a logout.
	OnFailure func(error)

	mu      sync.Mutex
	state   refreshState
	waiters []chan refreshResult
}

// NewRefresher creates a coordinator for session.
func NewRefresher(session *Session, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		session: session,
		logger:  logger.With("component", "refresher"),
		Timeout: DefaultRefreshTimeout,
	}
}

// Do returns an access token newer than stale. If the session already moved
// past stale no call is made; otherwise the caller joins the in-flight
// refresh, starting one if none is running. An anonymous session yields
// ErrNotAuthenticated.
func (r *Refresher) Do(ctx context.Context, stale string) (string, error) {
	r.mu.Lock()
	if r.state == refreshIdle {
		current := r.session.AccessToken()
		if current == "" {
			r.mu.Unlock()
			return "", ErrNotAuthenticated
		}
		if current != stale {
			r.mu.Unlock()
			return current, nil
		}

		r.state = refreshInFlight
		go r.run(context.WithoutCancel(ctx))
	}

	ch := make(chan refreshResult, 1)
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Refreshing reports whether a refresh is in flight.
func (r *Refresher) Refreshing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == refreshInFlight
}

func (r *Refresher) run(ctx context.Context) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	refreshCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res refreshResult
	pair, err := r.session.Refresh(refreshCtx)
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		// Logged out or signed in again meanwhile; that session is not ours
		// to end.
		r.logger.Info("token refresh discarded, session changed")
		res.err = err
	case err != nil:
		r.logger.Warn("token refresh failed, logging out", "error", err)
		r.session.Logout(ctx)
		res.err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	default:
		res.token = pair.AccessToken
	}

	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.state = refreshIdle
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}

	if errors.Is(res.err, ErrRefreshFailed) && r.OnFailure != nil {
		r.OnFailure(res.err)
	}
}
