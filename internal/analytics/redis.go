// Package analytics records build completion counts in Redis.
//
// Counts are bucketed per job, status, and hour so a dashboard can answer
// "how often did nightly-build fail today" without scanning Postgres.
// Writes are best-effort: a Redis outage never blocks notification fanout.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"buildwatch/internal/domain"
)

// DefaultRetention bounds how long completion buckets live. Buckets are
// hourly, so a month of retention keeps the keyspace small.
const DefaultRetention = 30 * 24 * time.Hour

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, retention: DefaultRetention}
}

// WithRetention overrides how long completion buckets are kept.
func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	s.retention = d
	return s
}

// Record increments the completion bucket for the event's job and status.
func (s *RedisSink) Record(ctx context.Context, event domain.BuildEvent) error {
	key := completionKey(event.JobName, event.Status, event.DetectedAt)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func completionKey(jobName string, status domain.BuildStatus, t time.Time) string {
	return fmt.Sprintf("bw:completions:%s:%s:%s", jobName, status, t.UTC().Format("2006010215"))
}
