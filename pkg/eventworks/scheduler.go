// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by scheduler and registry lifecycle calls after Close.
var ErrClosed = errors.New("eventworks: closed")

// Scheduler decides when subscriber callbacks run relative to Publish.
type Scheduler interface {
	// Schedule queues fn for execution. It reports false when fn was dropped
	// because the scheduler is closed.
	Schedule(fn func()) bool
	// Flush blocks until every fn scheduled before the call has run.
	Flush(ctx context.Context) error
	// Close stops accepting work and waits for queued work to drain.
	Close(ctx context.Context) error
}

type syncScheduler struct{}

// Synchronous returns a Scheduler that runs callbacks inline, on the
// publisher's goroutine, before Publish returns. A panicking callback unwinds
// into the publisher.
func Synchronous() Scheduler { return syncScheduler{} }

func (syncScheduler) Schedule(fn func()) bool {
	fn()
	return true
}

func (syncScheduler) Flush(context.Context) error { return nil }

func (syncScheduler) Close(context.Context) error { return nil }

// AsyncScheduler runs callbacks on a single worker goroutine in FIFO order,
// deferring each one to a later turn than the Publish that scheduled it.
// The queue is unbounded so callbacks may publish without deadlocking the
// worker.
type AsyncScheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

var _ Scheduler = (*AsyncScheduler)(nil)

// NewAsyncScheduler starts the worker goroutine. Callers must Close it.
func NewAsyncScheduler(logger *slog.Logger) *AsyncScheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &AsyncScheduler{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule appends fn to the queue.
func (s *AsyncScheduler) Schedule(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
	s.signal()
	return true
}

// Flush waits for a marker scheduled behind all queued work. Calling Flush
// from inside a callback blocks until ctx is done.
func (s *AsyncScheduler) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !s.Schedule(func() { close(reached) }) {
		return ErrClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further work and waits for the worker to drain the queue or
// for ctx to expire, whichever comes first.
func (s *AsyncScheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()
	s.signal()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *AsyncScheduler) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.wake
			continue
		}
		for _, fn := range batch {
			s.invoke(fn)
		}
	}
}

func (s *AsyncScheduler) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber callback panicked", "panic", r)
		}
	}()
	fn()
}
