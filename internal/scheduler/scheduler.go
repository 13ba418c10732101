package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/events"
	"github.com/mattjoyce/devrunner/internal/state"
)

// Skip reasons published with execution.skipped.
const (
	SkipCompilationErrors = "compilation_errors"
	SkipInvalidated       = "invalidated"
	SkipStale             = "stale"
)

// Config controls when executions fire.
type Config struct {
	// Delay is the debounce window between a valid build completing and
	// the worker (re)start. Zero executes in the completing turn.
	Delay time.Duration
}

// Execution is a pending (re)start of the worker for a given build.
type Execution struct {
	Build        int       `json:"build"`
	ArtifactPath string    `json:"artifact"`
	FireAt       time.Time `json:"fire_at"`
}

// Scheduler decides, per completed build, whether and when the worker gets
// (re)started. All methods must be called from the supervisor loop.
type Scheduler struct {
	cfg      Config
	tracker  *state.Tracker
	executor Executor
	reporter Reporter
	turns    Turns
	events   *events.Hub
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new Scheduler instance.
func New(cfg Config, tracker *state.Tracker, executor Executor, reporter Reporter, turns Turns, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Scheduler{
		cfg:      cfg,
		tracker:  tracker,
		executor: executor,
		reporter: reporter,
		turns:    turns,
		events:   hub,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// HandleInvalidate revokes validity. Any completion not yet re-checked and any
// armed execution will be discarded.
func (s *Scheduler) HandleInvalidate() {
	s.tracker.MarkInvalid()
	s.events.Publish(events.BuildInvalidated, nil)
	s.logger.Debug("Build invalidated")
}

// HandleBuildStarted records a new pipeline cycle.
func (s *Scheduler) HandleBuildStarted(cycle int) {
	s.tracker.MarkBuildStarted(cycle)
	s.events.Publish(events.BuildStarted, map[string]any{"cycle": cycle})
	s.logger.Debug("Build started", "cycle", cycle)
}

// HandleBuildComplete accepts a finished build. Validity is assumed, then the
// result is settled one turn later so that an invalidation racing with this
// completion is observed first.
func (s *Scheduler) HandleBuildComplete(raw build.RawResult) {
	s.tracker.MarkFinished()
	s.turns.Defer(func() error {
		return s.settle(raw)
	})
}

// settle runs in the turn after a completion.
func (s *Scheduler) settle(raw build.RawResult) error {
	// Silently discard the build if it became invalid meanwhile.
	if !s.tracker.IsValid() {
		return nil
	}

	res := build.Classify(raw)
	if res.Outcome() == build.OutcomeFatal {
		// No usable output: an execution armed for an earlier build must not fire.
		s.tracker.MarkInvalid()
		s.logger.Error("Build failed", "error", res.FatalError)
		s.events.Publish(events.BuildFailed, map[string]any{
			"error": res.FatalError.Error(),
		})
		s.reporter.BuildFailed(res.FatalError)
		return nil
	}

	n := s.tracker.CompleteBuild()
	s.events.Publish(events.BuildCompleted, map[string]any{
		"build":       n,
		"outcome":     res.Outcome().String(),
		"errors":      len(res.Errors),
		"warnings":    len(res.Warnings),
		"artifact":    res.ArtifactPath,
		"digest":      res.Digest,
		"duration_ms": res.Duration.Milliseconds(),
	})
	s.logger.Info(
		"Build complete",
		"build", n,
		"outcome", res.Outcome().String(),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"duration", res.Duration,
	)
	s.reporter.BuildCompleted(n, res)

	if !res.Runnable() {
		s.skip(Execution{Build: n, ArtifactPath: res.ArtifactPath}, SkipCompilationErrors)
		return nil
	}

	return s.schedule(Execution{Build: n, ArtifactPath: res.ArtifactPath})
}

// schedule executes immediately without a delay, otherwise arms a timer whose
// effect is re-validated when it fires. Superseded timers are never
// cancelled; they fire and no-op.
func (s *Scheduler) schedule(exec Execution) error {
	if s.cfg.Delay == 0 {
		return s.execute(exec)
	}

	exec.FireAt = s.now().Add(s.cfg.Delay)
	s.events.Publish(events.ExecutionScheduled, exec)
	s.logger.Debug("Execution scheduled", "build", exec.Build, "fire_at", exec.FireAt)

	s.turns.AfterFunc(s.cfg.Delay, func() error {
		return s.fire(exec)
	})
	return nil
}

// fire runs when a scheduled execution's delay has elapsed.
func (s *Scheduler) fire(exec Execution) error {
	// Don't run the artifact if it became invalid or was superseded meanwhile.
	if !s.tracker.IsValid() {
		s.skip(exec, SkipInvalidated)
		return nil
	}
	if s.tracker.IsStale(exec.Build) {
		s.skip(exec, SkipStale)
		return nil
	}
	return s.execute(exec)
}

func (s *Scheduler) execute(exec Execution) error {
	s.logger.Debug("Executing build", "build", exec.Build, "artifact", exec.ArtifactPath)
	if err := s.executor.Execute(exec.ArtifactPath); err != nil {
		return fmt.Errorf("execute build %d: %w", exec.Build, err)
	}
	return nil
}

func (s *Scheduler) skip(exec Execution, reason string) {
	s.events.Publish(events.ExecutionSkipped, map[string]any{
		"build":  exec.Build,
		"reason": reason,
	})
	s.logger.Debug("Execution skipped", "build", exec.Build, "reason", reason)
}
