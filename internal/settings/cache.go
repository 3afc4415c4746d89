// Package settings caches runtime-tunable key/value settings for the
// lifetime of the process.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Well-known keys.
const (
	KeyAccessTTL  = "jwt_ttl"
	KeyRefreshTTL = "jwt_ttl_refresh"
)

// Store is the durable source of settings.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	All(ctx context.Context) (map[string]string, error)
}

// Cache is a read-mostly view of Store. Readers may observe values from
// before or after a concurrent Reload.
type Cache struct {
	store  Store
	items  *gocache.Cache
	logger *slog.Logger
}

// New returns an empty cache over store. Call Load to warm it.
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		items:  gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

// Load copies every stored setting into the cache.
func (c *Cache) Load(ctx context.Context) error {
	all, err := c.store.All(ctx)
	if err != nil {
		return err
	}
	for k, v := range all {
		c.items.Set(k, v, gocache.NoExpiration)
	}
	c.logger.Info("settings loaded", slog.Int("count", len(all)))
	return nil
}

// Reload replaces the cache contents with the current stored settings. On
// failure the previous contents are kept.
func (c *Cache) Reload(ctx context.Context) error {
	all, err := c.store.All(ctx)
	if err != nil {
		return err
	}
	c.items.Flush()
	for k, v := range all {
		c.items.Set(k, v, gocache.NoExpiration)
	}
	c.logger.Info("settings reloaded", slog.Int("count", len(all)))
	return nil
}

// Invalidate drops key so the next Get reads it from the store.
func (c *Cache) Invalidate(key string) {
	c.items.Delete(key)
}

// Get returns the value for key, loading it from the store on a miss.
// Store errors are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := c.items.Get(key); ok {
		s, _ := v.(string)
		return s, true
	}

	v, ok, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "settings lookup failed", slog.String("key", key), slog.Any("error", err))
		return "", false
	}
	if !ok {
		return "", false
	}
	c.items.Set(key, v, gocache.NoExpiration)
	return v, true
}

// Int returns the integer value of key, or def when it is missing or invalid.
func (c *Cache) Int(ctx context.Context, key string, def int) int {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		c.logger.WarnContext(ctx, "invalid integer setting", slog.String("key", key), slog.String("value", raw))
		return def
	}
	return n
}

// Duration reads key as a number of seconds. Missing, invalid, and
// non-positive values yield def.
func (c *Cache) Duration(ctx context.Context, key string, def time.Duration) time.Duration {
	secs := c.Int(ctx, key, -1)
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
