package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"buildwatch/internal/domain"
)

// StatusChecker is the read side of the oracle.
type StatusChecker interface {
	CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error)
}

// statusCache is the slice of the Redis API the checker uses.
// *redis.Client satisfies it.
type statusCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedChecker wraps a StatusChecker with a short-TTL Redis cache so that
// foreground checks racing the reconciliation loop do not multiply CI
// traffic for the same (job, build) pair. Unknown results are never cached;
// terminal results are cached with a longer TTL since they cannot change.
//
// The cache is best-effort: any Redis error falls through to the inner
// checker.
type CachedChecker struct {
	inner       StatusChecker
	client      statusCache
	runningTTL  time.Duration
	terminalTTL time.Duration
}

func NewCachedChecker(inner StatusChecker, client statusCache, runningTTL time.Duration) *CachedChecker {
	if runningTTL == 0 {
		runningTTL = 30 * time.Second
	}
	return &CachedChecker{
		inner:       inner,
		client:      client,
		runningTTL:  runningTTL,
		terminalTTL: time.Hour,
	}
}

func (c *CachedChecker) CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error) {
	key := cacheKey(jobName, buildNumber)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return domain.BuildStatus(cached), nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("oracle: cache read failed for %s: %v", key, err)
	}

	status, err := c.inner.CheckStatus(ctx, jobName, buildNumber)
	if err != nil {
		return status, err
	}

	switch {
	case status.IsTerminal():
		c.set(ctx, key, status, c.terminalTTL)
	case status == domain.StatusRunning:
		c.set(ctx, key, status, c.runningTTL)
	}

	return status, nil
}

func (c *CachedChecker) set(ctx context.Context, key string, status domain.BuildStatus, ttl time.Duration) {
	if err := c.client.Set(ctx, key, string(status), ttl).Err(); err != nil {
		log.Printf("oracle: cache write failed for %s: %v", key, err)
	}
}

func cacheKey(jobName, buildNumber string) string {
	return fmt.Sprintf("bw:status:%s:%s", jobName, buildNumber)
}
