package domain

import (
	"fmt"
	"time"
)

// ListType identifies which tracking list an entry belongs to.
type ListType string

const (
	// ListTriggered holds builds the user started themselves.
	ListTriggered ListType = "triggered"
	// ListInquired holds builds the user merely asked about.
	ListInquired ListType = "inquired"
)

// ListTypes enumerates both tracking lists in scan order.
var ListTypes = []ListType{ListTriggered, ListInquired}

// TrackedJob is one build a user is watching. The pair (JobName, BuildNumber)
// is unique per user within each list; re-tracking replaces the entry in place.
type TrackedJob struct {
	Username string
	ListType ListType

	JobName     string
	BuildNumber string // CI-assigned, opaque; may look numeric but is not

	Status    BuildStatus
	Subject   string
	UpdatedAt time.Time
}

// TrackedRef identifies a running tracked entry during reconciliation.
type TrackedRef struct {
	Username    string
	JobName     string
	BuildNumber string
}

// BuildKey is the dedup key for one (job, build) pair. Multiple users
// tracking the same pair collapse to one oracle check per cycle.
type BuildKey struct {
	JobName     string
	BuildNumber string
}

// UserRef names one user affected by a terminal transition, together with
// the notification type owed to them. A user who both triggered and
// inquired about a build is owed a single "triggered" notification.
type UserRef struct {
	Username string
	Type     ListType
}

// RunningSubject is the subject recorded when a build is first tracked.
func RunningSubject(list ListType, jobName, buildNumber string) string {
	if list == ListTriggered {
		return fmt.Sprintf("You triggered build #%s of %s. It is running now.", buildNumber, jobName)
	}
	return fmt.Sprintf("Build #%s of %s is running. You'll be notified when done.", buildNumber, jobName)
}

// CompletionSubject is the subject written on a terminal transition.
func CompletionSubject(jobName, buildNumber string, status BuildStatus) string {
	return fmt.Sprintf("Build #%s of %s completed: %s", buildNumber, jobName, status)
}
