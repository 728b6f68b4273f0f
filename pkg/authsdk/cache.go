package authsdk

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/saccoesb/pkg/jwtx"
	"github.com/aussiebroadwan/saccoesb/pkg/storex"
)

// Cache defaults.
const (
	DefaultCacheRefreshThreshold = 5 * time.Minute
	DefaultSessionTimeout        = 60 * time.Minute
	DefaultCacheMaxAge           = 24 * time.Hour
	DefaultActivityInterval      = 30 * time.Second
)

// CacheConfig tunes the session cache. Zero values take the defaults.
type CacheConfig struct {
	RefreshThreshold time.Duration
	SessionTimeout   time.Duration
	MaxAge           time.Duration

	// ActivityInterval throttles RecordActivity writes.
	ActivityInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultCacheRefreshThreshold
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultCacheMaxAge
	}
	if c.ActivityInterval <= 0 {
		c.ActivityInterval = DefaultActivityInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CachedUserInfo is the record stored under storex.KeyCachedUserInfo.
type CachedUserInfo struct {
	User         *User     `json:"user"`
	Permissions  []string  `json:"permissions"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
	LastActivity time.Time `json:"lastActivity"`
}

// Cache keeps the signed-in user's permissions and activity clock. It is
// owned by a Session; only the Session writes it.
type Cache struct {
	cfg      CacheConfig
	store    *storex.Store
	activity *rate.Limiter

	mu   sync.RWMutex
	info *CachedUserInfo
}

// NewCache creates an empty cache over store.
func NewCache(store *storex.Store, cfg CacheConfig) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		cfg:      cfg,
		store:    store,
		activity: rate.NewLimiter(rate.Every(cfg.ActivityInterval), 1),
	}
}

// Config returns the effective configuration.
func (c *Cache) Config() CacheConfig { return c.cfg }

// Load reads the persisted record. An invalid or expired record is cleared
// and Load reports false.
func (c *Cache) Load(ctx context.Context) bool {
	info := storex.GetItem[*CachedUserInfo](ctx, c.store, storex.KeyCachedUserInfo, nil)

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info == nil {
		return false
	}
	if !c.IsCacheValid() || c.IsTokenExpired() {
		c.Clear(ctx)
		return false
	}
	return true
}

// Save starts a fresh record for a new login.
func (c *Cache) Save(ctx context.Context, user *User, claims *jwtx.Claims) {
	c.mu.Lock()
	c.info = &CachedUserInfo{
		User:         user,
		Permissions:  slices.Clone(claims.Permissions),
		TokenExpiry:  claims.ExpiresAtTime(),
		LastActivity: c.cfg.Now(),
	}
	info := *c.info
	c.mu.Unlock()

	c.store.SetItem(ctx, storex.KeyCachedUserInfo, info)
}

// UpdateToken records the expiry and permissions of a refreshed token.
func (c *Cache) UpdateToken(ctx context.Context, claims *jwtx.Claims) {
	c.update(ctx, func(info *CachedUserInfo) {
		info.TokenExpiry = claims.ExpiresAtTime()
		info.Permissions = slices.Clone(claims.Permissions)
	})
}

// Touch records activity now.
func (c *Cache) Touch(ctx context.Context) {
	now := c.cfg.Now()
	c.update(ctx, func(info *CachedUserInfo) { info.LastActivity = now })
}

// RecordActivity is Touch throttled to one write per ActivityInterval. It
// reports whether the write happened.
func (c *Cache) RecordActivity(ctx context.Context) bool {
	if !c.activity.AllowN(c.cfg.Now(), 1) {
		return false
	}
	c.Touch(ctx)
	return true
}

// Clear forgets the record in memory and in the store.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()

	c.store.RemoveItem(ctx, storex.KeyCachedUserInfo)
}

// Info returns a copy of the current record, or nil.
func (c *Cache) Info() *CachedUserInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return nil
	}
	info := *c.info
	info.Permissions = slices.Clone(c.info.Permissions)
	return &info
}

func (c *Cache) update(ctx context.Context, fn func(*CachedUserInfo)) {
	c.mu.Lock()
	if c.info == nil {
		c.mu.Unlock()
		return
	}
	fn(c.info)
	info := *c.info
	c.mu.Unlock()

	c.store.SetItem(ctx, storex.KeyCachedUserInfo, info)
}

// NeedsTokenRefresh is tokenExpiry <= now + RefreshThreshold. False when
// nothing is cached.
func (c *Cache) NeedsTokenRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return false
	}
	return !c.info.TokenExpiry.After(c.cfg.Now().Add(c.cfg.RefreshThreshold))
}

// IsTokenExpired is now >= tokenExpiry. True when nothing is cached.
func (c *Cache) IsTokenExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return true
	}
	return !c.cfg.Now().Before(c.info.TokenExpiry)
}

// IsSessionTimedOut is now > lastActivity + SessionTimeout.
func (c *Cache) IsSessionTimedOut() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return false
	}
	return c.cfg.Now().After(c.info.LastActivity.Add(c.cfg.SessionTimeout))
}

// IsCacheValid is now <= lastActivity + MaxAge.
func (c *Cache) IsCacheValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return false
	}
	return !c.cfg.Now().After(c.info.LastActivity.Add(c.cfg.MaxAge))
}

// HasPermission reports whether the cached permissions contain p.
func (c *Cache) HasPermission(p string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.info != nil && slices.Contains(c.info.Permissions, p)
}

// HasAnyPermission reports whether at least one of ps is granted.
func (c *Cache) HasAnyPermission(ps ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil {
		return false
	}
	return slices.ContainsFunc(ps, func(p string) bool {
		return slices.Contains(c.info.Permissions, p)
	})
}

// HasAllPermissions reports whether every one of ps is granted. An empty
// list is trivially satisfied.
func (c *Cache) HasAllPermissions(ps ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range ps {
		if c.info == nil || !slices.Contains(c.info.Permissions, p) {
			return false
		}
	}
	return true
}
