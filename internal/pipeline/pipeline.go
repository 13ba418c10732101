// Package pipeline adapts external build pipelines to two event streams:
// invalidation and build completion.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/config"
)

// Pipeline is a build pipeline devrunner observes. Hooks must be registered
// before Run; they are called from the pipeline's own goroutine.
type Pipeline interface {
	OnInvalidate(fn func())
	OnBuildStarted(fn func(cycle int))
	OnBuildComplete(fn func(err error, stats *build.Stats))
	ArtifactPath() string
	// Run drives the pipeline until ctx is cancelled. It returns nil on
	// cancellation.
	Run(ctx context.Context) error
}

// Options are runtime switches that do not come from the config file.
type Options struct {
	// DisplayErrorDetails keeps the full build output on reported errors.
	DisplayErrorDetails bool
}

// New selects the adapter for cfg.Kind. An unknown kind is a configuration
// error.
func New(cfg config.PipelineConfig, opts Options, logger *slog.Logger) (Pipeline, error) {
	var warn *regexp.Regexp
	if cfg.WarningPattern != "" {
		re, err := regexp.Compile(cfg.WarningPattern)
		if err != nil {
			return nil, &config.Error{Field: "pipeline.warning_pattern", Err: err}
		}
		warn = re
	}

	switch cfg.Kind {
	case config.KindCommand:
		return NewCommand(cfg, opts, warn, logger), nil
	case config.KindStream:
		return NewStream(cfg, opts, logger), nil
	default:
		return nil, &config.Error{Field: "pipeline.kind", Err: fmt.Errorf("unknown pipeline kind %q", cfg.Kind)}
	}
}

type hooks struct {
	invalidate func()
	started    func(int)
	complete   func(error, *build.Stats)
}

func (h *hooks) OnInvalidate(fn func()) {
	h.invalidate = fn
}

func (h *hooks) OnBuildStarted(fn func(cycle int)) {
	h.started = fn
}

func (h *hooks) OnBuildComplete(fn func(err error, stats *build.Stats)) {
	h.complete = fn
}

func (h *hooks) emitInvalidate() {
	if h.invalidate != nil {
		h.invalidate()
	}
}

func (h *hooks) emitStarted(cycle int) {
	if h.started != nil {
		h.started(cycle)
	}
}

func (h *hooks) emitComplete(err error, stats *build.Stats) {
	if h.complete != nil {
		h.complete(err, stats)
	}
}
