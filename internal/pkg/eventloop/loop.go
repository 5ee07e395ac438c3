// Package eventloop runs closures one at a time on a dedicated goroutine.
//
// Every piece of map-bridge state is owned by a Loop: callers never lock, they
// Post work. Blocking operations run elsewhere and Post their result back.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrStopped = errors.New("event loop stopped")

// Loop is a single-consumer task queue.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a loop with room for size queued tasks before Post blocks.
func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		tasks: make(chan func(), size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.startOnce.Do(func() { go l.run() })
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		default:
		}
		select {
		case task := <-l.tasks:
			l.exec(task)
		case <-l.quit:
			return
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Post queues task. It returns false once the loop has been stopped.
func (l *Loop) Post(task func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs task on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task queued before the call has run.
func (l *Loop) Flush() {
	_ = l.Do(context.Background(), func() {})
}

// Stop terminates the loop after the running task, if any, returns. Tasks
// still queued are discarded and never run.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	l.startOnce.Do(func() { close(l.done) })
	<-l.done
}
