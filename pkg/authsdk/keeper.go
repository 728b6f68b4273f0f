package authsdk

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reasons passed to Keeper.OnExpired.
const (
	ExpiredSessionTimeout = "session timed out"
	ExpiredCacheAge       = "session cache expired"
	ExpiredRefreshFailed  = "token refresh failed"
)

// Keeper periodically checks the session cache. It refreshes the token
// ahead of expiry through the shared Refresher and logs out sessions that
// have been idle or cached for too long.
type Keeper struct {
	Session   *Session
	Refresher *Refresher
	Logger    *slog.Logger
	Interval  time.Duration

	// OnExpired is called after the keeper ended a session.
	OnExpired func(reason string)

	// Internal channels for lifecycle management
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewKeeper creates a keeper with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewKeeper(session *Session, refresher *Refresher, logger *slog.Logger, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Keeper{
		Session:   session,
		Refresher: refresher,
		Logger:    logger.With("component", "keeper"),
		Interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (k *Keeper) Start() {
	go k.run()
	k.Logger.Info("session keeper started", "interval", k.Interval)
}

// Stop shuts down the worker and waits for an in-progress check.
// Safe to call more than once.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopCh)
		<-k.doneCh
		k.Logger.Info("session keeper stopped")
	})
}

func (k *Keeper) run() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.Check(context.Background())
		case <-k.stopCh:
			return
		}
	}
}

// Check runs one pass. Anonymous sessions are left alone.
func (k *Keeper) Check(ctx context.Context) {
	token := k.Session.AccessToken()
	if token == "" {
		return
	}

	cache := k.Session.Cache()
	switch {
	case !cache.IsCacheValid():
		k.expire(ctx, ExpiredCacheAge)
	case cache.IsSessionTimedOut():
		k.expire(ctx, ExpiredSessionTimeout)
	case cache.NeedsTokenRefresh():
		k.Logger.Debug("token close to expiry, refreshing")
		if _, err := k.Refresher.Do(ctx, token); err != nil {
			k.Logger.Warn("proactive refresh failed", "error", err)
			k.notify(ExpiredRefreshFailed)
		}
	}
}

func (k *Keeper) expire(ctx context.Context, reason string) {
	k.Logger.Info("ending session", "reason", reason)
	k.Session.Logout(ctx)
	k.notify(reason)
}

func (k *Keeper) notify(reason string) {
	if k.OnExpired != nil {
		k.OnExpired(reason)
	}
}
