package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/config"
)

// maxOutputBytes caps the amount of build output captured per cycle.
const maxOutputBytes = 64 * 1024

// Command watches sources itself and runs a one-shot build command after each
// burst of changes.
type Command struct {
	hooks

	cfg     config.PipelineConfig
	details bool
	warn    *regexp.Regexp
	logger  *slog.Logger
	cycle   int
}

// NewCommand creates a command pipeline. warn selects warning lines from a
// successful build's output and may be nil.
func NewCommand(cfg config.PipelineConfig, opts Options, warn *regexp.Regexp, logger *slog.Logger) *Command {
	return &Command{
		cfg:     cfg,
		details: opts.DisplayErrorDetails,
		warn:    warn,
		logger:  logger.With("component", "pipeline", "kind", config.KindCommand),
	}
}

// ArtifactPath returns the configured artifact.
func (c *Command) ArtifactPath() string {
	return c.cfg.Artifact
}

type cycleResult struct {
	err   error
	stats *build.Stats
}

// Run builds once at start, then again after every burst of relevant source
// changes. Builds never overlap; a change during a build drops that build's
// result and triggers another build.
func (c *Command) Run(ctx context.Context) error {
	w, err := newSourceWatcher(c.cfg.Watch, c.cfg.Ignore, c.cfg.Extensions, c.cfg.Artifact, c.logger)
	if err != nil {
		return fmt.Errorf("watch sources: %w", err)
	}
	defer w.Close()

	results := make(chan cycleResult, 1)
	aggregate := time.NewTimer(0)
	defer aggregate.Stop()

	var (
		building bool
		dirty    bool // a change landed while building
		rerun    bool // a build was due while building
	)

	start := func() {
		c.cycle++
		building = true
		c.emitStarted(c.cycle)
		go func(cycle int) {
			results <- c.build(ctx, cycle)
		}(c.cycle)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			c.logger.Debug("Source changed", "path", ev.Name, "op", ev.Op.String())
			c.emitInvalidate()
			if building {
				dirty = true
			}
			aggregate.Reset(c.cfg.AggregateTimeout)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Watcher error", "error", err)

		case <-aggregate.C:
			if building {
				rerun = true
				continue
			}
			start()

		case res := <-results:
			building = false
			if dirty {
				dirty = false
				c.logger.Debug("Dropping result of superseded build", "cycle", c.cycle)
			} else {
				c.emitComplete(res.err, res.stats)
			}
			if rerun {
				rerun = false
				start()
			}
		}
	}
}

// build runs the build command once and turns its outcome into a raw result.
func (c *Command) build(ctx context.Context, cycle int) cycleResult {
	logger := c.logger.With("cycle", cycle)
	logger.Debug("Running build command", "command", c.cfg.Command, "dir", c.cfg.Dir)

	began := time.Now()
	out := &limitedBuffer{limit: maxOutputBytes}
	cmd := exec.CommandContext(ctx, c.cfg.Command[0], c.cfg.Command[1:]...)
	cmd.Dir = c.cfg.Dir
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	duration := time.Since(began)
	output := out.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		logger.Debug("Build command failed", "exit_code", exitErr.ExitCode(), "duration", duration)
		return cycleResult{stats: &build.Stats{
			Errors:       build.ErrorsFromOutput(output, exitErr.ExitCode(), c.details),
			ArtifactPath: c.cfg.Artifact,
			Duration:     duration,
			Output:       output,
		}}
	default:
		return cycleResult{err: fmt.Errorf("run build command %q: %w", c.cfg.Command[0], err)}
	}

	if _, err := os.Stat(c.cfg.Artifact); err != nil {
		return cycleResult{err: fmt.Errorf("build succeeded but artifact is missing: %w", err)}
	}
	digest, err := build.Digest(c.cfg.Artifact)
	if err != nil {
		logger.Warn("Failed to hash artifact", "path", c.cfg.Artifact, "error", err)
	}

	return cycleResult{stats: &build.Stats{
		Warnings:     build.WarningsFromOutput(output, c.warn),
		ArtifactPath: c.cfg.Artifact,
		Digest:       digest,
		Duration:     duration,
		Output:       output,
	}}
}

// limitedBuffer keeps the first limit bytes written to it and discards the
// rest without failing the writer.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
