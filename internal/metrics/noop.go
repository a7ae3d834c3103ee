package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) CycleStarted()                                                          {}
func (n *NoopSink) CycleCompleted(d time.Duration, candidates, transitions int, fail bool) {}
func (n *NoopSink) TransitionDetected(status string)                                       {}
func (n *NoopSink) StatusCheckCompleted(resultClass string, d time.Duration)               {}
func (n *NoopSink) NotificationsFanned(count int)                                          {}
func (n *NoopSink) FanoutError()                                                           {}
func (n *NoopSink) BufferSizeUpdate(size int)                                              {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                         {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                              {}
func (n *NoopSink) EmitError()                                                             {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                      {}
func (n *NoopSink) LeaderAcquired()                                                        {}
func (n *NoopSink) LeaderLost(reason string)                                               {}
