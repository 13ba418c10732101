// Package supervisor runs the single logical thread of control that owns the
// build state, the scheduler and the worker.
package supervisor

import (
	"context"
	"time"
)

// Loop serializes work into turns. Every task runs on the goroutine calling
// Run, one at a time.
type Loop struct {
	inbox    chan func() error
	deferred []func() error
	done     chan struct{}

	// afterTurn runs on the loop goroutine after every task.
	afterTurn func()
}

// NewLoop creates a loop whose inbox holds up to buffer pending tasks before
// Post blocks.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		inbox: make(chan func() error, buffer),
		done:  make(chan struct{}),
	}
}

// Post queues task for a future turn. Safe from any goroutine. Tasks posted
// after Run has returned are dropped.
func (l *Loop) Post(task func() error) {
	select {
	case l.inbox <- task:
	case <-l.done:
	}
}

// Defer runs task after every task already waiting in the inbox. Only call
// from inside a turn.
func (l *Loop) Defer(task func() error) {
	l.deferred = append(l.deferred, task)
}

// AfterFunc posts task once d has elapsed. The timer is never cancelled.
func (l *Loop) AfterFunc(d time.Duration, task func() error) {
	time.AfterFunc(d, func() {
		l.Post(task)
	})
}

// Run processes turns until ctx is cancelled (returns nil) or a task fails
// (returns its error).
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-l.inbox:
			if err := l.turn(task); err != nil {
				return err
			}
		}

		for len(l.deferred) > 0 {
			// Everything that was already waiting goes first.
			for n := len(l.inbox); n > 0; n-- {
				if err := l.turn(<-l.inbox); err != nil {
					return err
				}
			}
			batch := l.deferred
			l.deferred = nil
			for _, task := range batch {
				if err := l.turn(task); err != nil {
					return err
				}
			}
		}
	}
}

func (l *Loop) turn(task func() error) error {
	err := task()
	if l.afterTurn != nil {
		l.afterTurn()
	}
	return err
}
