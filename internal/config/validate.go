package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/mattjoyce/devrunner/internal/log"
)

// Validate checks a decoded configuration. The first problem found is returned
// as *Error.
func Validate(cfg *Config) error {
	if cfg.DelayMs < 0 {
		return fieldError("delay_ms", "must be >= 0 (got %d)", cfg.DelayMs)
	}

	p := cfg.Pipeline
	switch p.Kind {
	case KindCommand, KindStream:
	default:
		return fieldError("pipeline.kind", "must be one of: command, stream (got %q)", p.Kind)
	}
	if len(p.Command) == 0 || strings.TrimSpace(p.Command[0]) == "" {
		return fieldError("pipeline.command", "is required")
	}
	if p.Kind == KindCommand {
		if p.Artifact == "" {
			return fieldError("pipeline.artifact", "is required for kind %q", KindCommand)
		}
		if len(p.Watch) == 0 {
			return fieldError("pipeline.watch", "must name at least one directory")
		}
		if p.AggregateTimeout <= 0 {
			return fieldError("pipeline.aggregate_timeout", "must be positive")
		}
	}
	if p.WarningPattern != "" {
		if _, err := regexp.Compile(p.WarningPattern); err != nil {
			return fieldError("pipeline.warning_pattern", "invalid regular expression: %v", err)
		}
	}
	for _, ext := range p.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fieldError("pipeline.extensions", "%q must start with a dot", ext)
		}
	}

	if cfg.Worker.StopGrace < 0 {
		return fieldError("worker.stop_grace", "must be >= 0")
	}
	for _, k := range sortedKeys(cfg.Worker.Env) {
		if name, ok := unresolvedVar(cfg.Worker.Env[k]); ok {
			return fieldError("worker.env."+k, "environment variable ${%s} is not set", name)
		}
	}

	if cfg.History.Path != "" && cfg.History.Keep <= 0 {
		return fieldError("history.keep", "must be positive")
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fieldError("api.listen", "invalid address %q: %v", cfg.API.Listen, err)
		}
		if name, ok := unresolvedVar(cfg.API.Token); ok {
			return fieldError("api.token", "environment variable ${%s} is not set", name)
		}
	}

	if !log.ValidLevel(cfg.Log.Level) {
		return fieldError("log.level", "must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}
	if f := strings.ToLower(cfg.Log.Format); f != "json" && f != "text" {
		return fieldError("log.format", "must be json or text (got %q)", cfg.Log.Format)
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String summarises the pipeline for startup logs.
func (p PipelineConfig) String() string {
	return fmt.Sprintf("%s: %s", p.Kind, strings.Join(p.Command, " "))
}
