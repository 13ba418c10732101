package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/devrunner/internal/events"
)

// DefaultStopGrace is the time we wait after SIGTERM before sending SIGKILL.
const DefaultStopGrace = 5 * time.Second

// Config controls how workers are spawned.
type Config struct {
	Args      []string
	Env       map[string]string // overrides applied on top of os.Environ()
	StopGrace time.Duration
	Stdout    io.Writer // defaults to os.Stdout
	Stderr    io.Writer // defaults to os.Stderr
}

// Worker describes a spawned worker process. It is a copy; the manager never
// mutates a Worker after handing it out.
type Worker struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Artifact  string    `json:"artifact"`
	Env       []string  `json:"env,omitempty"` // overrides only
	StartedAt time.Time `json:"started_at"`
}

// Observer is told about worker lifecycle changes.
type Observer interface {
	ProcessStarting(artifact string, prev *Worker)
	ProcessStarted(w Worker)
	// ProcessExited is only called for workers that exit without being asked to.
	ProcessExited(w Worker, err error)
}

// SpawnError reports that the worker process could not be started.
type SpawnError struct {
	Artifact string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker %s: %v", e.Artifact, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

type process struct {
	worker   Worker
	cmd      *exec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

// Manager holds the single worker process handle.
type Manager struct {
	cfg       Config
	overrides []string
	observer  Observer
	events    *events.Hub
	logger    *slog.Logger

	mu      sync.Mutex
	current *process
}

// New creates a Manager. observer and hub may be nil.
func New(cfg Config, observer Observer, hub *events.Hub, logger *slog.Logger) *Manager {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	overrides := make([]string, 0, len(cfg.Env))
	for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
		overrides = append(overrides, k+"="+cfg.Env[k])
	}

	return &Manager{
		cfg:       cfg,
		overrides: overrides,
		observer:  observer,
		events:    hub,
		logger:    logger.With("component", "dispatch"),
	}
}

// Execute terminates the current worker, if any, and starts artifactPath as
// the new one. Termination is requested, not awaited.
func (m *Manager) Execute(artifactPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := filepath.Abs(artifactPath)
	if err != nil {
		return &SpawnError{Artifact: artifactPath, Err: err}
	}

	prev := m.current
	var prevWorker *Worker
	if prev != nil {
		w := prev.worker
		prevWorker = &w
	}
	if m.observer != nil {
		m.observer.ProcessStarting(path, prevWorker)
	}
	m.events.Publish(events.ProcessStarting, map[string]any{"artifact": path})

	if prev != nil {
		m.logger.Info("Stopping worker", "worker_id", prev.worker.ID, "pid", prev.worker.PID)
		m.events.Publish(events.ProcessReplaced, prev.worker)
		m.terminate(prev)
		m.current = nil
	}

	p, err := m.spawn(path)
	if err != nil {
		return &SpawnError{Artifact: path, Err: err}
	}
	m.current = p

	m.logger.Info("Worker started", "worker_id", p.worker.ID, "pid", p.worker.PID, "artifact", path)
	m.events.Publish(events.ProcessStarted, p.worker)
	if m.observer != nil {
		m.observer.ProcessStarted(p.worker)
	}
	return nil
}

// Current returns a copy of the live worker, or nil.
func (m *Manager) Current() *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	w := m.current.worker
	return &w
}

// Stop terminates the current worker and waits for it to exit, escalating to
// SIGKILL after the grace period or when ctx is done.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	p := m.current
	m.current = nil
	m.mu.Unlock()

	if p == nil {
		return nil
	}

	m.logger.Info("Stopping worker", "worker_id", p.worker.ID, "pid", p.worker.PID)
	p.stopping.Store(true)
	signal(p, syscall.SIGTERM, m.logger)

	grace := time.NewTimer(m.cfg.StopGrace)
	defer grace.Stop()

	select {
	case <-p.done:
		return nil
	case <-grace.C:
		m.logger.Warn("Worker did not exit after SIGTERM, sending SIGKILL", "pid", p.worker.PID)
		signal(p, syscall.SIGKILL, m.logger)
		<-p.done
		return nil
	case <-ctx.Done():
		signal(p, syscall.SIGKILL, m.logger)
		<-p.done
		return ctx.Err()
	}
}

func (m *Manager) spawn(path string) (*process, error) {
	cmd := exec.Command(path, m.cfg.Args...)
	cmd.Env = append(os.Environ(), m.overrides...)
	cmd.Stdin = nil
	cmd.Stdout = m.cfg.Stdout
	cmd.Stderr = m.cfg.Stderr

	m.logger.Debug("Spawning worker", "artifact", path, "args", m.cfg.Args)
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		worker: Worker{
			ID:        uuid.New().String(),
			PID:       cmd.Process.Pid,
			Artifact:  path,
			Env:       slices.Clone(m.overrides),
			StartedAt: time.Now(),
		},
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go m.wait(p)
	return p, nil
}

// wait reaps the process and reports exits nobody asked for.
func (m *Manager) wait(p *process) {
	err := p.cmd.Wait()
	close(p.done)

	if p.stopping.Load() {
		m.logger.Debug("Worker stopped", "worker_id", p.worker.ID, "pid", p.worker.PID)
		return
	}

	logger := m.logger.With("worker_id", p.worker.ID, "pid", p.worker.PID)
	data := map[string]any{"worker": p.worker, "exit_code": 0}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		data["exit_code"] = exitErr.ExitCode()
		logger.Warn("Worker exited", "exit_code", exitErr.ExitCode())
	} else if err != nil {
		logger.Error("Worker wait failed", "error", err)
	} else {
		logger.Info("Worker exited", "exit_code", 0)
	}
	m.events.Publish(events.ProcessExited, data)
	if m.observer != nil {
		m.observer.ProcessExited(p.worker, err)
	}
}

// terminate sends SIGTERM without blocking; a reaper escalates to SIGKILL once
// the grace period has elapsed.
func (m *Manager) terminate(p *process) {
	p.stopping.Store(true)
	signal(p, syscall.SIGTERM, m.logger)

	grace := m.cfg.StopGrace
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			m.logger.Warn("Worker did not exit after SIGTERM, sending SIGKILL", "pid", p.worker.PID)
			signal(p, syscall.SIGKILL, m.logger)
		}
	}()
}

func signal(p *process, sig syscall.Signal, logger *slog.Logger) {
	if p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Error("Failed to signal worker", "signal", sig.String(), "pid", p.worker.PID, "error", err)
	}
}
