// Package channel carries detected build completions from the reconciliation
// loop to the fanout worker over a buffered in-process channel.
package channel

import (
	"context"
	"errors"
	"time"

	"buildwatch/internal/domain"
)

// DefaultEmitTimeout bounds how long Emit blocks when the buffer is full.
const DefaultEmitTimeout = 5 * time.Second

// ErrBufferFull is returned when an event cannot be enqueued before the emit
// timeout expires. The loop drops the event and retries the build on its next
// cycle, so nothing is lost.
var ErrBufferFull = errors.New("event buffer full")

// MetricsSink defines the interface for recording bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type EventBus struct {
	ch          chan domain.BuildEvent
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

type Option func(*EventBus)

// WithEmitTimeout overrides DefaultEmitTimeout.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.BuildEvent, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit enqueues an event. It blocks for at most the emit timeout when the
// buffer is full, returning ErrBufferFull on expiry.
func (b *EventBus) Emit(ctx context.Context, event domain.BuildEvent) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateBufferMetrics()
		return nil
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

func (b *EventBus) Channel() <-chan domain.BuildEvent {
	return b.ch
}

func (b *EventBus) updateBufferMetrics() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	capacity := cap(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if capacity > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(capacity))
	}
}
