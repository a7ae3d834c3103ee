// Package fanout turns one detected build completion into notifications for
// every user tracking that build. The database unique index on
// (username, job_name, build_number, status) makes the append exactly-once,
// so the background loop and foreground checks can race safely.
package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"buildwatch/internal/domain"
)

type Store interface {
	// SetTerminalStatus moves all still-running rows for (job, build) to the
	// terminal status with a fresh subject. Implementations MUST leave rows
	// that already reached a terminal status untouched, so replays are harmless.
	SetTerminalStatus(ctx context.Context, jobName, buildNumber string, status domain.BuildStatus, subject string, at time.Time) (int64, error)
	UsersTracking(ctx context.Context, jobName, buildNumber string) ([]domain.UserRef, error)
	// AppendNotification reports false when an identical notification already
	// exists in the user's feed.
	AppendNotification(ctx context.Context, n domain.Notification) (bool, error)
}

// MetricsSink defines the interface for recording fanout metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	NotificationsFanned(count int)
	FanoutError()
}

// AnalyticsSink records completion events for reporting. Failures are
// logged, never propagated: analytics must not block notifications.
type AnalyticsSink interface {
	Record(ctx context.Context, event domain.BuildEvent) error
}

type Fanout struct {
	store     Store
	metrics   MetricsSink   // optional, nil = disabled
	analytics AnalyticsSink // optional, nil = disabled
	newID     func() uuid.UUID
}

func New(store Store) *Fanout {
	return &Fanout{
		store: store,
		newID: uuid.New,
	}
}

// WithMetrics attaches a metrics sink to the fanout worker.
func (f *Fanout) WithMetrics(sink MetricsSink) *Fanout {
	f.metrics = sink
	return f
}

// WithAnalytics attaches an analytics sink recording completions.
func (f *Fanout) WithAnalytics(sink AnalyticsSink) *Fanout {
	f.analytics = sink
	return f
}

// Run processes build events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (f *Fanout) Run(ctx context.Context, ch <-chan domain.BuildEvent) {
	for {
		select {
		case <-ctx.Done():
			f.drain(ch)
			return
		case event := <-ch:
			if _, err := f.NotifyTerminal(ctx, event); err != nil {
				log.Printf("fanout: error: %v", err)
			}
		}
	}
}

// DrainTimeout is the maximum time to wait for buffered events during shutdown.
const DrainTimeout = 30 * time.Second

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (f *Fanout) drain(ch <-chan domain.BuildEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("fanout: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("fanout: drain complete, processed %d events", count)
				return
			}
			if _, err := f.NotifyTerminal(drainCtx, event); err != nil {
				log.Printf("fanout: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("fanout: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// NotifyTerminal applies a detected terminal transition: it marks the tracked
// rows terminal, then appends one notification per interested user. A failure
// for one user never blocks the others. Returns the number of notifications
// actually inserted; replays and already-notified users count zero.
func (f *Fanout) NotifyTerminal(ctx context.Context, event domain.BuildEvent) (int, error) {
	if !event.Status.IsTerminal() {
		return 0, fmt.Errorf("job %s #%s: status %s is not terminal", event.JobName, event.BuildNumber, event.Status)
	}

	subject := domain.CompletionSubject(event.JobName, event.BuildNumber, event.Status)
	transitioned, err := f.store.SetTerminalStatus(ctx, event.JobName, event.BuildNumber, event.Status, subject, event.DetectedAt)
	if err != nil {
		if f.metrics != nil {
			f.metrics.FanoutError()
		}
		return 0, fmt.Errorf("set terminal status: %w", err)
	}
	if transitioned > 0 {
		log.Printf("fanout: job=%s build=%s status=%s rows=%d", event.JobName, event.BuildNumber, event.Status, transitioned)

		// Only the first detection counts; replays transition zero rows.
		if f.analytics != nil {
			if err := f.analytics.Record(ctx, event); err != nil {
				log.Printf("fanout: analytics write failed for job=%s build=%s: %v", event.JobName, event.BuildNumber, err)
			}
		}
	}

	// Notify everyone tracking the pair, not just the rows transitioned above:
	// a user whose row a concurrent caller already flipped may still be
	// missing a notification, and the unique index dedupes the rest.
	users, err := f.store.UsersTracking(ctx, event.JobName, event.BuildNumber)
	if err != nil {
		if f.metrics != nil {
			f.metrics.FanoutError()
		}
		return 0, fmt.Errorf("users tracking: %w", err)
	}

	inserted := 0
	var lastErr error
	for _, user := range users {
		n := domain.Notification{
			ID:          f.newID(),
			Username:    user.Username,
			JobName:     event.JobName,
			BuildNumber: event.BuildNumber,
			Status:      event.Status,
			Type:        user.Type,
			CreatedAt:   event.DetectedAt,
		}
		ok, err := f.store.AppendNotification(ctx, n)
		if err != nil {
			log.Printf("fanout: user=%s job=%s build=%s append failed: %v", user.Username, event.JobName, event.BuildNumber, err)
			if f.metrics != nil {
				f.metrics.FanoutError()
			}
			lastErr = err
			continue
		}
		if ok {
			inserted++
		}
	}

	if f.metrics != nil && inserted > 0 {
		f.metrics.NotificationsFanned(inserted)
	}
	if lastErr != nil {
		return inserted, fmt.Errorf("job %s #%s: %w", event.JobName, event.BuildNumber, lastErr)
	}
	return inserted, nil
}
