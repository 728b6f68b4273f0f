package authsdk_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/saccoesb/pkg/authsdk"
	"github.com/aussiebroadwan/saccoesb/pkg/idx"
	"github.com/aussiebroadwan/saccoesb/pkg/storex"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func loggedIn(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t, authsdk.CacheConfig{})
	f.srv.Handle("GET /api/dashboard", okHandler)
	f.srv.Handle("POST /api/entities", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})

	_, err := f.session.Login(context.Background(), operator())
	require.NoError(t, err)
	return f
}

func TestTransportRequestShape(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []*http.Request
	)
	f := newFixture(t, authsdk.CacheConfig{})
	capture := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Clone(context.Background()))
		mu.Unlock()
		okHandler(w, r)
	}
	f.srv.Handle("GET /api/dashboard", capture)
	f.srv.Handle("POST /api/entities", capture)

	_, err := f.session.Login(context.Background(), operator())
	require.NoError(t, err)

	f.client.Transport.(*authsdk.Transport).Now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }

	resp, err := f.client.Get(f.srv.URL + "/api/dashboard?period=today")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = f.client.Post(f.srv.URL+"/api/entities", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	snapshot := func() []*http.Request {
		mu.Lock()
		defer mu.Unlock()
		return append([]*http.Request(nil), seen...)
	}

	reqs := snapshot()
	require.Len(t, reqs, 2)

	get := reqs[0]
	require.Equal(t, "Bearer "+f.session.AccessToken(), get.Header.Get("Authorization"))
	require.Equal(t, "no-cache, no-store, must-revalidate", get.Header.Get("Cache-Control"))
	require.Equal(t, "no-cache", get.Header.Get("Pragma"))
	require.Equal(t, "1700000000123", get.URL.Query().Get("_"))
	require.Equal(t, "today", get.URL.Query().Get("period"))
	_, err = idx.Parse(get.Header.Get(authsdk.RequestIDHeader))
	require.NoError(t, err)

	post := reqs[1]
	require.False(t, post.URL.Query().Has("_"))
	require.Equal(t, "no-cache", post.Header.Get("Pragma"))
	require.NotEqual(t, get.Header.Get(authsdk.RequestIDHeader), post.Header.Get(authsdk.RequestIDHeader))

	t.Run("caller request id is kept", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/dashboard", nil)
		require.NoError(t, err)
		req.Header.Set(authsdk.RequestIDHeader, "trace-me")

		resp, err := f.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		reqs := snapshot()
		require.Equal(t, "trace-me", reqs[len(reqs)-1].Header.Get(authsdk.RequestIDHeader))
		require.Empty(t, req.URL.Query().Get("_"), "caller's request must not be mutated")
	})
}

func TestTransportAnonymous(t *testing.T) {
	t.Parallel()

	f := newFixture(t, authsdk.CacheConfig{})
	f.srv.Handle("GET /api/dashboard", okHandler)

	_, err := f.client.Get(f.srv.URL + "/api/dashboard")
	require.ErrorIs(t, err, authsdk.ErrNotAuthenticated)
	require.Equal(t, []string{""}, f.srv.Attempts(), "no Authorization header without a token")
	require.Zero(t, f.srv.RefreshCalls.Load())
}

func TestTransportRefreshAndRetry(t *testing.T) {
	t.Parallel()

	f := loggedIn(t)
	before := f.session.AccessToken()
	f.srv.Revoke()

	resp, err := f.client.Get(f.srv.URL + "/api/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(1), f.srv.RefreshCalls.Load())

	after := f.session.AccessToken()
	require.NotEqual(t, before, after)
	require.Equal(t, []string{after}, f.srv.Accepted())

	stored, _ := f.store.GetString(context.Background(), storex.KeyAccessToken)
	require.Equal(t, after, stored)

	t.Run("replayed body is intact", func(t *testing.T) {
		f.srv.Revoke()

		resp, err := f.client.Post(f.srv.URL+"/api/entities", "application/json", strings.NewReader(`{"name":"Umoja SACCO"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.JSONEq(t, `{"name":"Umoja SACCO"}`, string(body))
		require.Equal(t, int32(2), f.srv.RefreshCalls.Load())
	})

	t.Run("second 401 after retry is returned", func(t *testing.T) {
		f.srv.Handle("GET /api/forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		calls := f.srv.RefreshCalls.Load()

		resp, err := f.client.Get(f.srv.URL + "/api/forbidden")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, calls+1, f.srv.RefreshCalls.Load())
	})
}

func TestTransportSingleFlight(t *testing.T) {
	t.Parallel()

	f := loggedIn(t)
	f.srv.SetRefreshDelay(150 * time.Millisecond)
	f.srv.Revoke()

	const n = 5
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(f.srv.URL + "/api/dashboard?i=" + strconv.Itoa(i))
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
	}
	require.Equal(t, int32(1), f.srv.RefreshCalls.Load())

	fresh := f.session.AccessToken()
	accepted := f.srv.Accepted()
	require.Len(t, accepted, n)
	for _, token := range accepted {
		require.Equal(t, fresh, token)
	}
}

func TestTransportRefreshFailure(t *testing.T) {
	t.Parallel()

	f := loggedIn(t)
	f.srv.SetRefreshDelay(100 * time.Millisecond)
	f.srv.FailRefresh(http.StatusUnauthorized)
	f.srv.Revoke()

	var failures atomic.Int32
	f.refresher.OnFailure = func(error) { failures.Add(1) }

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(f.srv.URL + "/api/dashboard")
			if err == nil {
				resp.Body.Close()
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	refreshFailed := 0
	for _, err := range errs {
		require.Error(t, err)
		if errors.Is(err, authsdk.ErrRefreshFailed) {
			refreshFailed++
			continue
		}
		require.ErrorIs(t, err, authsdk.ErrNotAuthenticated)
	}
	require.Positive(t, refreshFailed)
	require.Equal(t, int32(1), f.srv.RefreshCalls.Load())

	require.False(t, f.session.IsLoggedIn())
	_, ok := f.store.GetString(context.Background(), storex.KeyAccessToken)
	require.False(t, ok)
	require.Nil(t, f.session.Cache().Info())
	require.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "Your session has expired. Please sign in again.", authsdk.Message(errs[0]))
}

func TestTransportPassThrough(t *testing.T) {
	t.Parallel()

	t.Run("auth endpoints never trigger refresh", func(t *testing.T) {
		f := newFixture(t, authsdk.CacheConfig{})
		client := authsdk.NewClient(f.srv.URL, f.client.Transport)

		_, err := client.Authenticate(context.Background(), authsdk.Credentials{Username: "jerome.rwego", Password: "nope"})

		var authErr *authsdk.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, http.StatusUnauthorized, authErr.Status)
		require.Zero(t, f.srv.RefreshCalls.Load())
	})

	t.Run("non-replayable body returns the 401", func(t *testing.T) {
		f := loggedIn(t)
		f.srv.Revoke()

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/entities", io.NopCloser(strings.NewReader(`{}`)))
		require.NoError(t, err)
		require.Nil(t, req.GetBody)

		resp, err := f.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Zero(t, f.srv.RefreshCalls.Load())
	})
}

func TestRefresher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("late 401 reuses the completed refresh", func(t *testing.T) {
		f := loggedIn(t)
		stale := f.session.AccessToken()

		first, err := f.refresher.Do(ctx, stale)
		require.NoError(t, err)
		require.NotEqual(t, stale, first)

		again, err := f.refresher.Do(ctx, stale)
		require.NoError(t, err)
		require.Equal(t, first, again)
		require.Equal(t, int32(1), f.srv.RefreshCalls.Load())
		require.False(t, f.refresher.Refreshing())
	})

	t.Run("after logout", func(t *testing.T) {
		f := loggedIn(t)
		stale := f.session.AccessToken()
		f.session.Logout(ctx)

		_, err := f.refresher.Do(ctx, stale)
		require.ErrorIs(t, err, authsdk.ErrNotAuthenticated)
		require.Zero(t, f.srv.RefreshCalls.Load())
	})

	t.Run("waiter cancellation does not cancel the refresh", func(t *testing.T) {
		f := loggedIn(t)
		f.srv.SetRefreshDelay(150 * time.Millisecond)
		stale := f.session.AccessToken()

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := f.refresher.Do(short, stale)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		require.Eventually(t, func() bool {
			return f.session.AccessToken() != stale && !f.refresher.Refreshing()
		}, 2*time.Second, 10*time.Millisecond)
		require.True(t, f.session.IsLoggedIn())
	})

	t.Run("logout while refreshing stays logged out", func(t *testing.T) {
		f := loggedIn(t)
		f.srv.SetRefreshDelay(150 * time.Millisecond)
		stale := f.session.AccessToken()

		var failures atomic.Int32
		f.refresher.OnFailure = func(error) { failures.Add(1) }

		done := make(chan error, 1)
		go func() {
			_, err := f.refresher.Do(ctx, stale)
			done <- err
		}()

		require.Eventually(t, func() bool {
			return f.srv.RefreshCalls.Load() == 1
		}, time.Second, 5*time.Millisecond)
		f.session.Logout(ctx)

		require.ErrorIs(t, <-done, authsdk.ErrNotAuthenticated)
		require.False(t, f.session.IsLoggedIn())
		require.Empty(t, f.session.AccessToken())
		_, ok := f.store.GetString(ctx, storex.KeyAccessToken)
		require.False(t, ok)
		require.Equal(t, int32(1), f.srv.RefreshCalls.Load())
		require.Zero(t, failures.Load())
	})

	t.Run("sign in while refreshing keeps the new session", func(t *testing.T) {
		f := loggedIn(t)
		f.srv.SetRefreshDelay(150 * time.Millisecond)
		stale := f.session.AccessToken()

		var failures atomic.Int32
		f.refresher.OnFailure = func(error) { failures.Add(1) }

		done := make(chan error, 1)
		go func() {
			_, err := f.refresher.Do(ctx, stale)
			done <- err
		}()

		require.Eventually(t, func() bool {
			return f.srv.RefreshCalls.Load() == 1
		}, time.Second, 5*time.Millisecond)
		res, err := f.session.Login(ctx, operator())
		require.NoError(t, err)

		require.ErrorIs(t, <-done, authsdk.ErrNotAuthenticated)
		require.True(t, f.session.IsLoggedIn())
		require.Equal(t, res.Tokens.AccessToken, f.session.AccessToken())
		stored, ok := f.store.GetString(ctx, storex.KeyAccessToken)
		require.True(t, ok)
		require.Equal(t, res.Tokens.AccessToken, stored)
		require.Zero(t, failures.Load())
	})
}
