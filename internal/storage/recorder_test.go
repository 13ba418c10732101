package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/devrunner/internal/events"
)

func TestRecorderStoresPublishedBuilds(t *testing.T) {
	h := openTestDB(t)
	hub := events.NewHub(16)
	rec := NewRecorder(h, hub, "api", 2, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	// Published before Run starts; the subscription already exists.
	hub.Publish(events.BuildCompleted, map[string]any{
		"build": 1, "outcome": "clean", "artifact": "/w/app", "digest": "d1", "duration_ms": 40,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	hub.Publish(events.ExecutionSkipped, map[string]any{"build": 1, "reason": "stale"})
	hub.Publish(events.BuildFailed, map[string]any{"error": "build tool exited"})
	hub.Publish(events.BuildInvalidated, nil)
	hub.Publish(events.BuildCompleted, map[string]any{"build": 2, "outcome": "errors", "errors": 3})
	hub.Publish(events.ExecutionSkipped, map[string]any{"build": 2, "reason": "compilation_errors"})

	var recs []BuildRecord
	require.Eventually(t, func() bool {
		var err error
		recs, err = h.Recent(context.Background(), "api", 10)
		return err == nil && len(recs) == 2 && recs[0].SkipReason != ""
	}, 5*time.Second, 20*time.Millisecond)

	// keep=2 pruned the first build.
	assert.Equal(t, 2, recs[0].Build)
	assert.Equal(t, "errors", recs[0].Outcome)
	assert.Equal(t, 3, recs[0].Errors)
	assert.Equal(t, "compilation_errors", recs[0].SkipReason)
	assert.Equal(t, "fatal", recs[1].Outcome)
	assert.Equal(t, "build tool exited", recs[1].Error)

	cancel()
	require.NoError(t, <-done)
}
