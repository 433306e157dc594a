package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
)

// DefaultKeyPrefix namespaces cached dates in Redis.
const DefaultKeyPrefix = "url_date:"

// Remote is the distributed tier.
type Remote interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}

// TwoTier implements checker.Cache. Lookups go local then remote; a remote hit
// is returned without populating the local tier. Writes go to both tiers.
// Remote faults are logged and degrade to misses.
type TwoTier struct {
	local  *LocalStore
	remote Remote
	prefix string
	logger *zap.Logger
}

var _ checker.Cache = (*TwoTier)(nil)

// NewTwoTier builds the cache. Either tier may be nil.
func NewTwoTier(local *LocalStore, remote Remote, prefix string, logger *zap.Logger) *TwoTier {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoTier{
		local:  local,
		remote: remote,
		prefix: prefix,
		logger: logger,
	}
}

// Key derives the cache key for url.
func (c *TwoTier) Key(url string) string {
	normalized, err := checker.NormalizeURL(url)
	if err != nil {
		normalized = url
	}
	return c.prefix + normalized
}

// Get returns the cached date for url.
func (c *TwoTier) Get(ctx context.Context, url string) (string, bool) {
	key := c.Key(url)
	if c.local != nil {
		if val, ok := c.local.Get(key); ok {
			metrics.ObserveCacheLookup("local", true)
			return val, true
		}
		metrics.ObserveCacheLookup("local", false)
	}
	if c.remote == nil {
		return "", false
	}
	val, err := c.remote.Get(ctx, key)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup("redis", true)
		return val, true
	case errors.Is(err, ErrCacheMiss):
		metrics.ObserveCacheLookup("redis", false)
	default:
		metrics.ObserveCacheError("get")
		c.logger.Warn("redis cache read failed", zap.String("url", url), zap.Error(err))
	}
	return "", false
}

// Set stores date for url in both tiers.
func (c *TwoTier) Set(ctx context.Context, url, date string) {
	key := c.Key(url)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, date); err != nil {
			metrics.ObserveCacheError("set")
			c.logger.Warn("redis cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	if c.local != nil {
		c.local.Set(key, date)
	}
}

// Ping checks the remote tier; a cache without one is always ready.
func (c *TwoTier) Ping(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Ping(ctx)
}

// Close releases the remote tier.
func (c *TwoTier) Close() error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Close()
}
