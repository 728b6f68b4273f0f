// Package storex is the console's durable key-value storage. It wraps a
// pluggable Backend and never lets a backend failure escape: a full, locked
// or unreachable store degrades to "no persistence for this call".
package storex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned by backends when a key is absent.
var ErrNotFound = errors.New("storex: not found")

// Persisted keys.
const (
	KeyAccessToken    = "access_token"
	KeyRefreshToken   = "refresh_token"
	KeyCurrentUser    = "current_user"
	KeyLanguage       = "language"
	KeyAccount        = "account"
	KeyCachedUserInfo = "cached_user_info"
)

// AppDataKeys are the keys ClearAppData removes. The cached user info is
// owned by the session cache and cleared separately.
var AppDataKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyCurrentUser,
	KeyLanguage,
	KeyAccount,
}

const probeKey = "__storage_test__"

// Backend is the raw storage a Store sits on. Get returns ErrNotFound for
// missing keys; Delete of a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends with a connection that can go away.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store serializes values onto a Backend. Strings are stored verbatim,
// everything else as JSON.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New wraps backend. A nil backend behaves like disabled storage.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger.With("component", "storex")}
}

// SetItem stores value under key and reports success.
func (s *Store) SetItem(ctx context.Context, key string, value any) bool {
	raw, err := encode(value)
	if err != nil {
		s.logger.Warn("storage encode failed", "key", key, "error", err)
		return false
	}

	err = s.guard(func() error { return s.backend.Set(ctx, key, raw) })
	if err != nil {
		s.logger.Warn("storage write failed", "key", key, "error", err)
		return false
	}
	return true
}

// GetString returns the raw stored value.
func (s *Store) GetString(ctx context.Context, key string) (string, bool) {
	var raw string
	err := s.guard(func() error {
		var err error
		raw, err = s.backend.Get(ctx, key)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("storage read failed", "key", key, "error", err)
		return "", false
	}
	return raw, true
}

// RemoveItem deletes key and reports success.
func (s *Store) RemoveItem(ctx context.Context, key string) bool {
	err := s.guard(func() error { return s.backend.Delete(ctx, key) })
	if err != nil {
		s.logger.Warn("storage remove failed", "key", key, "error", err)
		return false
	}
	return true
}

// ClearAppData removes every key in AppDataKeys, continuing past failures.
func (s *Store) ClearAppData(ctx context.Context) {
	for _, key := range AppDataKeys {
		s.RemoveItem(ctx, key)
	}
}

// IsAvailable pings the backend when it supports it, then probes it with a
// throwaway write and delete.
func (s *Store) IsAvailable(ctx context.Context) bool {
	err := s.guard(func() error {
		if p, ok := s.backend.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
		if err := s.backend.Set(ctx, probeKey, probeKey); err != nil {
			return err
		}
		return s.backend.Delete(ctx, probeKey)
	})
	if err != nil {
		s.logger.Warn("storage unavailable", "error", err)
		return false
	}
	return true
}

// GetItem reads key into a T. Missing keys and undecodable values yield def,
// except that a string or any target falls back to the raw stored string.
func GetItem[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, ok := s.GetString(ctx, key)
	if !ok {
		return def
	}

	var out T
	if p, ok := any(&out).(*string); ok {
		*p = raw
		return out
	}

	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		if p, ok := any(&out).(*any); ok {
			*p = raw
			return out
		}
		s.logger.Warn("storage decode failed", "key", key, "error", err)
		return def
	}
	return out
}

// guard runs fn against the backend, converting a missing backend or a
// panicking one into an error.
func (s *Store) guard(fn func() error) (err error) {
	if s.backend == nil {
		return errors.New("storex: no backend configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storex: backend panic: %v", r)
		}
	}()
	return fn()
}

func encode(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
