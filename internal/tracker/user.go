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

// Notifier applies a terminal transition and fans notifications out to every
// interested user. Implemented by fanout.Fanout.
type Notifier interface {
	NotifyTerminal(ctx context.Context, event domain.BuildEvent) (int, error)
}

// UserTracker runs the reconciliation check for a single user's running
// builds in the foreground. Terminal results go through the same fanout as
// the background loop, so the two paths cannot double-notify.
type UserTracker struct {
	store    Store
	checker  StatusChecker
	notifier Notifier
	clock    func() time.Time
}

func NewUserTracker(store Store, checker StatusChecker, notifier Notifier) *UserTracker {
	return &UserTracker{
		store:    store,
		checker:  checker,
		notifier: notifier,
		clock:    time.Now,
	}
}

// CheckAndNotify checks the user's still-running builds and returns a
// completion message for each one that turned out terminal. Feed writes
// happen for all interested users regardless; only the returned messages are
// suppressed when this user has notifications switched off. A store failure
// is returned as-is so the caller can surface it as transient.
func (t *UserTracker) CheckAndNotify(ctx context.Context, username string) ([]string, error) {
	jobs, err := t.store.ListUserRunningJobs(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list running for %s: %w", username, err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	// A build in both lists is checked once.
	seen := make(map[domain.BuildKey]bool, len(jobs))
	var messages []string
	for _, job := range jobs {
		key := domain.BuildKey{JobName: job.JobName, BuildNumber: job.BuildNumber}
		if seen[key] {
			continue
		}
		seen[key] = true

		status, err := t.checker.CheckStatus(ctx, job.JobName, job.BuildNumber)
		if err != nil {
			if errors.Is(err, oracle.ErrBuildNotFound) {
				status = domain.StatusAborted
			} else {
				log.Printf("tracker: user=%s job=%s build=%s check error: %v", username, job.JobName, job.BuildNumber, err)
				continue
			}
		}
		if !status.IsTerminal() {
			continue
		}

		event := domain.BuildEvent{
			JobName:     job.JobName,
			BuildNumber: job.BuildNumber,
			Status:      status,
			DetectedAt:  t.clock().UTC(),
		}
		if _, err := t.notifier.NotifyTerminal(ctx, event); err != nil {
			log.Printf("tracker: user=%s job=%s build=%s notify error: %v", username, job.JobName, job.BuildNumber, err)
			continue
		}
		messages = append(messages, domain.CompletionSubject(job.JobName, job.BuildNumber, status))
	}

	if len(messages) == 0 {
		return nil, nil
	}

	enabled, err := t.store.NotificationsEnabled(ctx, username)
	if err != nil {
		log.Printf("tracker: user=%s settings lookup failed, defaulting to enabled: %v", username, err)
		enabled = true
	}
	if !enabled {
		return nil, nil
	}
	return messages, nil
}
