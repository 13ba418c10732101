package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mattjoyce/devrunner/internal/events"
)

// Recorder writes build outcomes published on the hub into the history.
type Recorder struct {
	history *History
	runner  string
	keep    int
	logger  *slog.Logger

	events      <-chan events.Event
	unsubscribe func()

	// build number -> row id, for attaching skip reasons
	rows map[int]int64
}

// NewRecorder subscribes to hub right away so no build published before Run
// starts is missed.
func NewRecorder(history *History, hub *events.Hub, runner string, keep int, logger *slog.Logger) *Recorder {
	ch, unsubscribe := hub.Subscribe(events.BuildCompleted, events.BuildFailed, events.ExecutionSkipped)
	return &Recorder{
		history:     history,
		runner:      runner,
		keep:        keep,
		logger:      logger.With("component", "history"),
		events:      ch,
		unsubscribe: unsubscribe,
		rows:        make(map[int]int64),
	}
}

type buildPayload struct {
	Build      int    `json:"build"`
	Outcome    string `json:"outcome"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	Artifact   string `json:"artifact"`
	Digest     string `json:"digest"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error"`
	Reason     string `json:"reason"`
}

// Run consumes events until ctx is done. Storage failures are logged and
// never stop supervision.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev events.Event) {
	switch ev.Type {
	case events.BuildCompleted, events.BuildFailed, events.ExecutionSkipped:
	default:
		return
	}

	var p buildPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		r.logger.Warn("Undecodable event payload", "type", ev.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch ev.Type {
	case events.BuildCompleted:
		r.insert(ctx, BuildRecord{
			Build:       p.Build,
			Outcome:     p.Outcome,
			Errors:      p.Errors,
			Warnings:    p.Warnings,
			Artifact:    p.Artifact,
			Digest:      p.Digest,
			DurationMs:  p.DurationMs,
			CompletedAt: ev.At,
		})
	case events.BuildFailed:
		r.insert(ctx, BuildRecord{Outcome: "fatal", Error: p.Error, CompletedAt: ev.At})
	case events.ExecutionSkipped:
		id, ok := r.rows[p.Build]
		if !ok {
			return
		}
		if err := r.history.MarkSkipped(ctx, id, p.Reason); err != nil {
			r.logger.Warn("Failed to record skipped execution", "build", p.Build, "error", err)
		}
	}
}

func (r *Recorder) insert(ctx context.Context, rec BuildRecord) {
	rec.Runner = r.runner
	id, err := r.history.Insert(ctx, rec)
	if err != nil {
		r.logger.Warn("Failed to record build", "build", rec.Build, "error", err)
		return
	}
	if rec.Build != 0 {
		r.rows[rec.Build] = id
		delete(r.rows, rec.Build-r.keep)
	}

	if r.keep > 0 {
		if n, err := r.history.Prune(ctx, r.runner, r.keep); err != nil {
			r.logger.Warn("Failed to prune build history", "error", err)
		} else if n > 0 {
			r.logger.Debug("Pruned build history", "rows", n)
		}
	}
}
