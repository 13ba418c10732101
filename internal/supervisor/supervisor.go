package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/dispatch"
	"github.com/mattjoyce/devrunner/internal/events"
	"github.com/mattjoyce/devrunner/internal/pipeline"
	"github.com/mattjoyce/devrunner/internal/scheduler"
	"github.com/mattjoyce/devrunner/internal/state"
)

// Worker is the process lifecycle manager as seen by the supervisor.
type Worker interface {
	scheduler.Executor
	Stop(ctx context.Context) error
	Current() *dispatch.Worker
}

// Config holds the supervisor settings.
type Config struct {
	Name       string
	Kind       string
	ConfigHash string
	Delay      time.Duration
	StopGrace  time.Duration
}

// Status is a point-in-time view of the supervisor for the status API.
type Status struct {
	Name       string           `json:"name"`
	Pipeline   string           `json:"pipeline"`
	Artifact   string           `json:"artifact"`
	DelayMs    int64            `json:"delay_ms"`
	ConfigHash string           `json:"config_hash,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	Build      state.Snapshot   `json:"build"`
	Worker     *dispatch.Worker `json:"worker,omitempty"`
}

// Supervisor wires a pipeline to the scheduler and the worker through one
// turn loop.
type Supervisor struct {
	cfg      Config
	loop     *Loop
	tracker  *state.Tracker
	sched    *scheduler.Scheduler
	pipeline pipeline.Pipeline
	worker   Worker
	logger   *slog.Logger

	startedAt time.Time
	snapshot  atomic.Pointer[state.Snapshot]
}

// New creates a supervisor. hub may be nil.
func New(cfg Config, p pipeline.Pipeline, worker Worker, reporter scheduler.Reporter, hub *events.Hub, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		loop:      NewLoop(0),
		tracker:   state.NewTracker(),
		pipeline:  p,
		worker:    worker,
		logger:    logger.With("component", "supervisor"),
		startedAt: time.Now(),
	}
	s.sched = scheduler.New(scheduler.Config{Delay: cfg.Delay}, s.tracker, worker, reporter, s.loop, hub, logger)

	snap := s.tracker.Snapshot()
	s.snapshot.Store(&snap)
	s.loop.afterTurn = func() {
		snap := s.tracker.Snapshot()
		s.snapshot.Store(&snap)
	}

	p.OnInvalidate(func() {
		s.loop.Post(func() error {
			s.sched.HandleInvalidate()
			return nil
		})
	})
	p.OnBuildStarted(func(cycle int) {
		s.loop.Post(func() error {
			s.sched.HandleBuildStarted(cycle)
			return nil
		})
	})
	p.OnBuildComplete(func(err error, stats *build.Stats) {
		raw := build.RawResult{Err: err, Stats: stats}
		s.loop.Post(func() error {
			s.sched.HandleBuildComplete(raw)
			return nil
		})
	})
	return s
}

// Run supervises until ctx is cancelled or a fatal error occurs: a spawn
// failure or a dead pipeline. The worker is stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("Supervisor starting", "name", s.cfg.Name, "pipeline", s.cfg.Kind, "delay", s.cfg.Delay)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		if err := s.pipeline.Run(gctx); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		return nil
	})
	err := g.Wait()

	grace := s.cfg.StopGrace
	if grace <= 0 {
		grace = dispatch.DefaultStopGrace
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()
	if stopErr := s.worker.Stop(stopCtx); stopErr != nil {
		s.logger.Warn("Failed to stop worker cleanly", "error", stopErr)
	}

	if err != nil {
		s.logger.Error("Supervisor stopped", "error", err)
		return err
	}
	s.logger.Info("Supervisor stopped")
	return nil
}

// Status returns the latest snapshot. Safe from any goroutine.
func (s *Supervisor) Status() Status {
	return Status{
		Name:       s.cfg.Name,
		Pipeline:   s.cfg.Kind,
		Artifact:   s.pipeline.ArtifactPath(),
		DelayMs:    s.cfg.Delay.Milliseconds(),
		ConfigHash: s.cfg.ConfigHash,
		StartedAt:  s.startedAt,
		Build:      *s.snapshot.Load(),
		Worker:     s.worker.Current(),
	}
}
