// Package tracker reconciles tracked builds against the CI server: a
// background loop sweeps every running entry on an interval, and a per-user
// tracker runs the same check synchronously for foreground requests. Both
// paths feed the same fanout, which dedupes notifications.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"buildwatch/internal/domain"
	"buildwatch/internal/oracle"
)

type Store interface {
	ListRunningJobs(ctx context.Context, listType domain.ListType) ([]domain.TrackedRef, error)
	ListUserRunningJobs(ctx context.Context, username string) ([]domain.TrackedJob, error)
	NotificationsEnabled(ctx context.Context, username string) (bool, error)
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.BuildEvent) error
}

// MetricsSink defines the interface for recording loop metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	CycleStarted()
	CycleCompleted(duration time.Duration, candidates, transitions int, failed bool)
	TransitionDetected(status string)
}

// Schedule yields the next poll time. Used when a cron expression replaces
// the fixed interval.
type Schedule interface {
	Next(after time.Time) time.Time
}

type Config struct {
	PollInterval time.Duration
}

// Loop is the background reconciliation loop. One cycle checks every
// distinct running (job, build) pair exactly once, no matter how many users
// track it, and emits a build event for each terminal transition.
type Loop struct {
	config   Config
	store    Store
	checker  StatusChecker
	emitter  EventEmitter
	metrics  MetricsSink // optional, nil = disabled
	schedule Schedule    // optional, replaces the fixed interval
	clock    func() time.Time
}

func NewLoop(config Config, store Store, checker StatusChecker, emitter EventEmitter) *Loop {
	return &Loop{
		config:  config,
		store:   store,
		checker: checker,
		emitter: emitter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the loop.
func (l *Loop) WithMetrics(sink MetricsSink) *Loop {
	l.metrics = sink
	return l
}

// WithSchedule replaces the fixed poll interval with a cron schedule.
func (l *Loop) WithSchedule(schedule Schedule) *Loop {
	l.schedule = schedule
	return l
}

func (l *Loop) Run(ctx context.Context) error {
	if l.schedule != nil {
		return l.runScheduled(ctx)
	}

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	log.Printf("tracker: loop started, interval=%s", l.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("tracker: loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := l.runCycle(ctx); err != nil {
				log.Printf("tracker: cycle error: %v", err)
			}
		}
	}
}

func (l *Loop) runScheduled(ctx context.Context) error {
	log.Println("tracker: loop started on cron schedule")

	for {
		next := l.schedule.Next(l.clock())
		timer := time.NewTimer(next.Sub(l.clock()))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("tracker: loop stopped")
			return ctx.Err()
		case <-timer.C:
			if err := l.runCycle(ctx); err != nil {
				log.Printf("tracker: cycle error: %v", err)
			}
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	if l.metrics != nil {
		l.metrics.CycleStarted()
	}
	start := l.clock()

	refs, err := l.collectCandidates(ctx)
	if err != nil {
		if l.metrics != nil {
			l.metrics.CycleCompleted(l.clock().Sub(start), 0, 0, true)
		}
		return err
	}

	transitions := 0
	for _, ref := range refs {
		transitioned, err := l.checkCandidate(ctx, ref)
		if err != nil {
			log.Printf("tracker: job=%s build=%s check error: %v", ref.JobName, ref.BuildNumber, err)
			continue
		}
		if transitioned {
			transitions++
		}
	}

	if l.metrics != nil {
		l.metrics.CycleCompleted(l.clock().Sub(start), len(refs), transitions, false)
	}
	if transitions > 0 {
		log.Printf("tracker: cycle done, candidates=%d transitions=%d", len(refs), transitions)
	}
	return nil
}

// collectCandidates merges both lists' running entries into the distinct set
// of (job, build) pairs to check, so a build tracked by many users costs one
// CI call per cycle.
func (l *Loop) collectCandidates(ctx context.Context) ([]domain.BuildKey, error) {
	seen := make(map[domain.BuildKey]bool)
	var refs []domain.BuildKey

	for _, listType := range domain.ListTypes {
		entries, err := l.store.ListRunningJobs(ctx, listType)
		if err != nil {
			return nil, fmt.Errorf("list running %s: %w", listType, err)
		}
		for _, entry := range entries {
			key := domain.BuildKey{JobName: entry.JobName, BuildNumber: entry.BuildNumber}
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, key)
		}
	}

	return refs, nil
}

// checkCandidate asks the CI server about one (job, build) pair and emits a
// build event if it reached a terminal status. Running and Unknown results
// leave the rows alone; a build that vanished from the CI server is treated
// as aborted so it does not get polled forever.
func (l *Loop) checkCandidate(ctx context.Context, ref domain.BuildKey) (bool, error) {
	status, err := l.checker.CheckStatus(ctx, ref.JobName, ref.BuildNumber)
	if err != nil {
		if errors.Is(err, oracle.ErrBuildNotFound) {
			log.Printf("tracker: job=%s build=%s no longer exists, marking aborted", ref.JobName, ref.BuildNumber)
			status = domain.StatusAborted
		} else {
			return false, err
		}
	}

	if !status.IsTerminal() {
		return false, nil
	}

	if l.metrics != nil {
		l.metrics.TransitionDetected(string(status))
	}

	event := domain.BuildEvent{
		JobName:     ref.JobName,
		BuildNumber: ref.BuildNumber,
		Status:      status,
		DetectedAt:  l.clock().UTC(),
	}
	if err := l.emitter.Emit(ctx, event); err != nil {
		// Dropped events are retried on the next cycle since the rows stay running.
		return false, fmt.Errorf("emit: %w", err)
	}

	log.Printf("tracker: job=%s build=%s completed status=%s", ref.JobName, ref.BuildNumber, status)
	return true, nil
}
