package metrics

import (
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	// Reconciliation loop metrics
	s.CycleStarted()
	s.CycleCompleted(100*time.Millisecond, 5, 2, false)
	s.CycleCompleted(100*time.Millisecond, 0, 0, true)
	s.TransitionDetected(ResultClassSuccess)

	// Oracle metrics
	s.StatusCheckCompleted(ResultClassRunning, 50*time.Millisecond)
	s.StatusCheckCompleted(ResultClassNotFound, 30*time.Millisecond)

	// Fanout metrics
	s.NotificationsFanned(3)
	s.FanoutError()

	// EventBus metrics
	s.BufferSizeUpdate(10)
	s.BufferCapacitySet(100)
	s.BufferSaturationUpdate(0.1)
	s.EmitError()

	// Leader election metrics
	s.LeaderStatusChanged(true)
	s.LeaderStatusChanged(false)
	s.LeaderAcquired()
	s.LeaderLost("conn_lost")
}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)
