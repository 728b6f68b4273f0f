package authsdk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/saccoesb/pkg/jwtx"
	"github.com/aussiebroadwan/saccoesb/pkg/storex"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Cache  CacheConfig
	Logger *slog.Logger
}

// Session is the operator's authenticated session. It holds the token pair
// in memory and writes every change through to the store.
//
// A Session is Anonymous until Login or Restore succeeds, and returns to
// Anonymous on Logout.
type Session struct {
	client *Client
	store  *storex.Store
	cache  *Cache
	codec  jwtx.Codec
	logger *slog.Logger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *User
}

// NewSession creates an anonymous session. Call Restore to pick up a
// previously persisted one.
func NewSession(client *Client, store *storex.Store, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache := NewCache(store, opts.Cache)

	return &Session{
		client: client,
		store:  store,
		cache:  cache,
		codec:  jwtx.Codec{Now: cache.Config().Now},
		logger: logger.With("component", "authsdk"),
	}
}

// Login authenticates against the ESB. On failure the session is left
// untouched and the error is an *AuthError.
func (s *Session) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	pair, err := s.client.Authenticate(ctx, creds)
	if err != nil {
		s.logger.Info("login failed", "username", creds.Username, "error", err)
		return nil, err
	}

	claims := jwtx.Decode(pair.AccessToken)
	if claims == nil {
		s.logger.Warn("login returned undecodable access token", "username", creds.Username)
		return nil, &AuthError{Kind: KindInvalidResponse, Status: 200, Message: MsgInvalidResponse}
	}

	user := userFromClaims(claims, creds.Username)

	s.mu.Lock()
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.user = user
	s.mu.Unlock()

	s.persistTokens(ctx, pair)
	s.store.SetItem(ctx, storex.KeyCurrentUser, user)
	s.cache.Save(ctx, user, claims)

	s.logger.Info("login succeeded",
		"username", user.Username,
		"permissions", len(user.Permissions),
		"expires_at", claims.ExpiresAtTime(),
	)

	return &AuthResult{User: user, Tokens: *pair}, nil
}

// Logout clears the in-memory session, the app data keys and the cache.
// It never fails.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	username := ""
	if s.user != nil {
		username = s.user.Username
	}
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	s.mu.Unlock()

	s.store.ClearAppData(ctx)
	s.cache.Clear(ctx)

	s.logger.Info("logged out", "username", username)
}

// Refresh exchanges the refresh token for a new pair. The caller decides
// what a failure means; Refresher forces a logout. If the session was
// logged out or replaced while the call was in flight the new pair is
// discarded and ErrNotAuthenticated is returned.
func (s *Session) Refresh(ctx context.Context) (*TokenPair, error) {
	refreshToken := s.RefreshToken()
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	pair, err := s.client.RefreshGrant(ctx, refreshToken)
	if err != nil {
		if s.RefreshToken() != refreshToken {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}

	claims := jwtx.Decode(pair.AccessToken)
	if claims == nil {
		return nil, &AuthError{Kind: KindInvalidResponse, Status: 200, Message: MsgInvalidResponse}
	}

	// Servers that do not rotate refresh tokens omit the field.
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	// The write-through stays under the lock so a concurrent Logout either
	// sees the new pair and clears it, or wins and the pair is dropped.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshToken != refreshToken {
		s.logger.Info("session changed during refresh, dropping new tokens")
		return nil, ErrNotAuthenticated
	}
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken

	s.persistTokens(ctx, pair)
	s.cache.UpdateToken(ctx, claims)

	s.logger.Info("token refreshed", "expires_at", claims.ExpiresAtTime())

	return pair, nil
}

// Restore rebuilds the session from the store. A session whose cache is
// missing, aged out or whose access token has expired is cleared, and
// Restore reports false.
func (s *Session) Restore(ctx context.Context) bool {
	access, _ := s.store.GetString(ctx, storex.KeyAccessToken)
	if access == "" {
		return false
	}

	if !s.cache.Load(ctx) || s.codec.IsExpired(access) {
		s.logger.Info("persisted session is stale, clearing")
		s.Logout(ctx)
		return false
	}

	refresh, _ := s.store.GetString(ctx, storex.KeyRefreshToken)
	user := storex.GetItem[*User](ctx, s.store, storex.KeyCurrentUser, nil)
	if user == nil {
		if info := s.cache.Info(); info != nil {
			user = info.User
		}
	}

	s.mu.Lock()
	s.accessToken = access
	s.refreshToken = refresh
	s.user = user
	s.mu.Unlock()

	s.logger.Info("session restored", "username", s.username())
	return true
}

// IsLoggedIn reports whether a non-expired access token is held.
func (s *Session) IsLoggedIn() bool {
	token := s.AccessToken()
	return token != "" && !s.codec.IsExpired(token)
}

// Touch records explicit user activity.
func (s *Session) Touch(ctx context.Context) { s.cache.Touch(ctx) }

// RecordActivity records an activity tick, throttled by the cache.
func (s *Session) RecordActivity(ctx context.Context) bool {
	return s.cache.RecordActivity(ctx)
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Cache exposes the session cache for expiry checks.
func (s *Session) Cache() *Cache { return s.cache }

// HasPermission returns true if the session has the specified permission.
func (s *Session) HasPermission(p string) bool { return s.cache.HasPermission(p) }

// HasAnyPermission returns true if the session has at least one of ps.
func (s *Session) HasAnyPermission(ps ...string) bool { return s.cache.HasAnyPermission(ps...) }

// HasAllPermissions returns true if the session has all of ps.
func (s *Session) HasAllPermissions(ps ...string) bool { return s.cache.HasAllPermissions(ps...) }

func (s *Session) persistTokens(ctx context.Context, pair *TokenPair) {
	s.store.SetItem(ctx, storex.KeyAccessToken, pair.AccessToken)
	s.store.SetItem(ctx, storex.KeyRefreshToken, pair.RefreshToken)
}

func (s *Session) username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.Username
}
