// Package eventloop runs closures one at a time on a single goroutine.
//
// Every component state mutation in the terminal happens on the loop, so
// transport goroutines never touch component state directly: they Post a
// closure and return.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 1024

// ErrStopped is returned by Do once the loop is no longer accepting work.
var ErrStopped = errors.New("eventloop: stopped")

// Loop is a serial executor.
type Loop struct {
	queue  chan func()
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	runOnce  sync.Once
}

// New creates a loop with the given queue capacity.
func New(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		queue:  make(chan func(), size),
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run executes posted closures until ctx is cancelled or Stop is called.
// Closures still queued at that point are dropped. Run may only be called once.
func (l *Loop) Run(ctx context.Context) {
	ran := false
	l.runOnce.Do(func() { ran = true })
	if !ran {
		return
	}

	defer close(l.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.stopCh:
			return
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("eventloop task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Post enqueues fn. It blocks while the queue is full and returns false if
// the loop stops before fn could be enqueued.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopCh:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.stopCh:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from a closure already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		// fn may have run just before the stop.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop makes the loop exit after the closure currently running, if any.
// It is safe to call more than once and from any goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}
