package availability

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/domainwatch/internal/metrics"
	"github.com/ignite/domainwatch/internal/pkg/logger"
)

const cacheKeyPrefix = "domainwatch:availability:"

// CachedChecker memoizes successful lookups in Redis for a short TTL so that
// repeated /check requests for popular labels do not re-spend API quota.
// Failed lookups are never cached, and a Redis outage falls through to the
// wrapped checker. Request path only; the notification poller always uses
// an uncached checker.
type CachedChecker struct {
	next    Checker
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedChecker wraps next. A non-positive ttl disables caching.
func NewCachedChecker(next Checker, rdb redis.Cmdable, ttl time.Duration, m *metrics.Metrics) *CachedChecker {
	return &CachedChecker{next: next, rdb: rdb, ttl: ttl, metrics: m}
}

// Check implements Checker.
func (c *CachedChecker) Check(ctx context.Context, domain string) (bool, error) {
	if c.ttl <= 0 || c.rdb == nil {
		return c.next.Check(ctx, domain)
	}

	key := cacheKeyPrefix + domain
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.metrics.ObserveCache(true)
		return val == "1", nil
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn("availability cache read failed", "domain", domain, "error", err)
	}
	c.metrics.ObserveCache(false)

	available, err := c.next.Check(ctx, domain)
	if err != nil {
		return false, err
	}

	val = "0"
	if available {
		val = "1"
	}
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		logger.Warn("availability cache write failed", "domain", domain, "error", err)
	}
	return available, nil
}
