package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/protocol"
)

// maxLineBytes bounds a single message line from the build tool.
const maxLineBytes = 1024 * 1024

// Stream runs a long-lived watch-mode build tool and translates the messages
// it prints on stdout.
type Stream struct {
	hooks

	cfg     config.PipelineConfig
	details bool
	logger  *slog.Logger

	cycle   int
	started time.Time
}

// NewStream creates a stream pipeline.
func NewStream(cfg config.PipelineConfig, opts Options, logger *slog.Logger) *Stream {
	return &Stream{
		cfg:     cfg,
		details: opts.DisplayErrorDetails,
		logger:  logger.With("component", "pipeline", "kind", config.KindStream),
	}
}

// ArtifactPath returns the configured fallback artifact.
func (s *Stream) ArtifactPath() string {
	return s.cfg.Artifact
}

// Run starts the build tool and reads its output until it exits. The tool
// exiting before ctx is cancelled is an error.
func (s *Stream) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Dir = s.cfg.Dir
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start build tool %q: %w", s.cfg.Command[0], err)
	}
	s.logger.Info("Build tool started", "pid", cmd.Process.Pid, "command", s.cfg.Command)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			msg, err = protocol.DecodeLenient(line)
			if err != nil {
				s.logger.Warn("Skipping malformed build tool output", "error", err, "line", truncate(string(line), 200))
				continue
			}
		}
		s.handle(msg)
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("read build tool output: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("build tool exited: %w", waitErr)
	}
	return errors.New("build tool exited")
}

func (s *Stream) handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeInvalid:
		s.emitInvalidate()

	case protocol.TypeStart:
		if msg.Cycle > s.cycle {
			s.cycle = msg.Cycle
		} else {
			s.cycle++
		}
		s.started = time.Now()
		s.emitStarted(s.cycle)

	case protocol.TypeDone:
		if msg.Error != "" {
			s.emitComplete(errors.New(msg.Error), nil)
			return
		}
		s.emitComplete(nil, s.stats(msg))
	}
}

func (s *Stream) stats(msg *protocol.Message) *build.Stats {
	stats := &build.Stats{ArtifactPath: s.cfg.Artifact}
	if msg.Artifact != "" {
		stats.ArtifactPath = msg.Artifact
		if !filepath.IsAbs(stats.ArtifactPath) {
			stats.ArtifactPath = filepath.Join(s.cfg.Dir, stats.ArtifactPath)
		}
	}

	for _, e := range msg.Errors {
		info := build.ErrorInfo{Message: e.Message, File: e.File, Line: e.Line}
		if s.details {
			info.Details = e.Details
		}
		stats.Errors = append(stats.Errors, info)
	}
	for _, w := range msg.Warnings {
		stats.Warnings = append(stats.Warnings, build.WarningInfo{Message: w.Message, File: w.File, Line: w.Line})
	}

	switch {
	case msg.DurationMs > 0:
		stats.Duration = time.Duration(msg.DurationMs) * time.Millisecond
	case !s.started.IsZero():
		stats.Duration = time.Since(s.started)
	}

	if len(stats.Errors) == 0 && stats.ArtifactPath != "" {
		if digest, err := build.Digest(stats.ArtifactPath); err == nil {
			stats.Digest = digest
		}
	}
	return stats
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
