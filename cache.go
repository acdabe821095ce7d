package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultCacheKey is the storage key of the cached profile.
const DefaultCacheKey = "auth.cached_user"

// Cache keeps a best-effort snapshot of the last authenticated user. It is
// only read as a degraded mode source during initialization.
type Cache struct {
	storage Storage
	key     string
	now     func() time.Time
	logger  Logger
}

type cachedProfile struct {
	User     *User     `json:"user"`
	CachedAt time.Time `json:"cached_at"`
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheKey overrides the storage key.
func WithCacheKey(key string) CacheOption {
	return func(c *Cache) {
		if key != "" {
			c.key = key
		}
	}
}

// WithCacheLogger sets the logger used for storage and decode failures.
func WithCacheLogger(logger Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheClock injects the clock used to stamp snapshots.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache returns a Cache writing through storage.
func NewCache(storage Storage, opts ...CacheOption) *Cache {
	c := &Cache{
		storage: storage,
		key:     DefaultCacheKey,
		now:     time.Now,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Store overwrites the snapshot.
func (c *Cache) Store(ctx context.Context, user *User) error {
	if user == nil {
		return c.Clear(ctx)
	}

	if c.storage == nil {
		return ErrStorageUnavailable
	}

	payload, err := json.Marshal(cachedProfile{User: user, CachedAt: c.now().UTC()})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode cached profile")
	}

	if err := c.storage.Set(ctx, c.key, string(payload)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store cached profile")
	}
	return nil
}

// Read returns the cached user, or nil when there is none or it cannot be decoded.
func (c *Cache) Read(ctx context.Context) *User {
	user, _ := c.ReadWithTime(ctx)
	return user
}

// ReadWithTime returns the cached user and when it was stored.
func (c *Cache) ReadWithTime(ctx context.Context) (*User, time.Time) {
	if c.storage == nil {
		return nil, time.Time{}
	}

	raw, err := c.storage.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ErrStorageKeyNotFound) {
			c.logger.Warn("cached profile read failed", "error", err)
		}
		return nil, time.Time{}
	}

	var cp cachedProfile
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		c.logger.Warn("cached profile is corrupt, ignoring", "error", err)
		return nil, time.Time{}
	}

	if cp.User == nil || cp.User.ID == "" {
		return nil, time.Time{}
	}
	return cp.User, cp.CachedAt
}

// Clear removes the snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	if c.storage == nil {
		return nil
	}
	if err := c.storage.Delete(ctx, c.key); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear cached profile")
	}
	return nil
}
