package metrics

import (
	"strings"
	"time"

	"buildwatch/internal/domain"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Reconciliation loop metrics
	CycleStarted()
	CycleCompleted(duration time.Duration, candidates, transitions int, failed bool)
	TransitionDetected(status string)

	// Oracle metrics
	StatusCheckCompleted(resultClass string, duration time.Duration)

	// Fanout metrics
	NotificationsFanned(count int)
	FanoutError()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// ResultClass constants for StatusCheckCompleted. Bounded cardinality: the
// five statuses plus the two ways a check can fail to produce one.
const (
	ResultClassRunning     = "running"
	ResultClassSuccess     = "success"
	ResultClassFailure     = "failure"
	ResultClassAborted     = "aborted"
	ResultClassUnknown     = "unknown"
	ResultClassNotFound    = "not_found"
	ResultClassCircuitOpen = "circuit_open"
)

// ClassifyResult maps a status check outcome to a result class.
func ClassifyResult(status domain.BuildStatus, err error) string {
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return ResultClassNotFound
		}
		return ResultClassUnknown
	}

	switch status {
	case domain.StatusRunning:
		return ResultClassRunning
	case domain.StatusSuccess:
		return ResultClassSuccess
	case domain.StatusFailure:
		return ResultClassFailure
	case domain.StatusAborted:
		return ResultClassAborted
	default:
		return ResultClassUnknown
	}
}
