package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func TestLoopDeferRunsAfterQueuedTasks(t *testing.T) {
	l := NewLoop(16)
	var order []string
	finished := make(chan struct{})
	gate := make(chan struct{})

	// Hold the loop so that everything below is queued before it runs.
	l.Post(func() error {
		<-gate
		return nil
	})
	l.Post(func() error {
		order = append(order, "complete")
		l.Defer(func() error {
			order = append(order, "settle")
			l.Defer(func() error {
				order = append(order, "nested")
				close(finished)
				return nil
			})
			return nil
		})
		return nil
	})
	l.Post(func() error {
		order = append(order, "invalidate")
		return nil
	})

	runLoop(t, l)
	close(gate)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("deferred tasks did not run")
	}
	assert.Equal(t, []string{"complete", "invalidate", "settle", "nested"}, order)
}

func TestLoopAfterFunc(t *testing.T) {
	l := NewLoop(0)
	fired := make(chan time.Time, 1)
	start := time.Now()

	l.Post(func() error {
		l.AfterFunc(50*time.Millisecond, func() error {
			fired <- time.Now()
			return nil
		})
		return nil
	})
	runLoop(t, l)

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopStopsOnTaskError(t *testing.T) {
	l := NewLoop(0)
	boom := errors.New("boom")
	l.Post(func() error {
		l.Defer(func() error { return boom })
		return nil
	})

	_, errc := runLoop(t, l)
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	// Posting after the loop stopped must not block.
	done := make(chan struct{})
	go func() {
		for range 200 {
			l.Post(func() error { return nil })
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Post blocked after loop exit")
	}
}

func TestLoopCancel(t *testing.T) {
	l := NewLoop(0)
	cancel, errc := runLoop(t, l)
	cancel()
	require.NoError(t, <-errc)
}

func TestLoopAfterTurn(t *testing.T) {
	l := NewLoop(0)
	turns := make(chan struct{}, 8)
	l.afterTurn = func() { turns <- struct{}{} }

	l.Post(func() error {
		l.Defer(func() error { return nil })
		return nil
	})
	runLoop(t, l)

	for range 2 {
		select {
		case <-turns:
		case <-time.After(5 * time.Second):
			t.Fatal("afterTurn not called for every turn")
		}
	}
}
