package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one delivered build-completion event in a user's feed.
// Exactly one exists per (user, job, build, status) transition; it is only
// ever mutated by marking it read, and is never deleted automatically.
type Notification struct {
	ID uuid.UUID

	Username    string
	JobName     string
	BuildNumber string

	Status BuildStatus
	Type   ListType

	CreatedAt time.Time
	Read      bool
}

// BuildEvent is emitted when reconciliation observes a terminal transition
// for a (job, build) pair. The fan-out consumer turns one event into one
// notification per tracking user.
type BuildEvent struct {
	JobName     string
	BuildNumber string
	Status      BuildStatus

	DetectedAt time.Time
}
