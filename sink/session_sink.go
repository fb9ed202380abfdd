// Package sink provides the outbound side of a participant session.
package sink

import (
	"context"
	"sync"
	"time"

	"voynich/domain/event"
	apperrors "voynich/errors"
)

// SessionSink buffers events bound for a single connection. Consume never
// blocks longer than the configured timeout: a client that cannot drain its
// channel in time is indistinguishable from one that is gone, and the caller
// reacts by removing the session.
type SessionSink struct {
	Events  chan event.Event
	timeout time.Duration
	closed  chan struct{}
	once    sync.Once
}

func NewSessionSink(bufferSize int, timeout time.Duration) *SessionSink {
	return &SessionSink{
		Events:  make(chan event.Event, bufferSize),
		timeout: timeout,
		closed:  make(chan struct{}),
	}
}

func (s *SessionSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-s.closed:
		return apperrors.ErrSinkSaturated
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.Events <- e:
		return nil
	case <-s.closed:
		return apperrors.ErrSinkSaturated
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return apperrors.ErrSinkSaturated
	}
}

// Close marks the sink dead. The events channel itself stays open so a
// concurrent Consume never panics; writers stop via the closed signal.
func (s *SessionSink) Close() {
	s.once.Do(func() { close(s.closed) })
}
