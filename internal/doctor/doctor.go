// Package doctor checks a devrunner configuration against the machine it will
// run on: tools on PATH, directories on disk, patterns and addresses.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/log"
)

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateRunner(r)
	d.validateCommand(r)
	d.validateDirs(r)
	d.validatePatterns(r)
	d.validateWorker(r)
	d.validateAPI(r)
	d.validateLog(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateRunner(r *Result) {
	if d.cfg.DelayMs < 0 {
		d.addError(r, "runner", "delay_ms", "delay_ms must be >= 0")
	}
	if d.cfg.DelayMs > 60_000 {
		d.addWarning(r, "runner", "delay_ms",
			fmt.Sprintf("delay_ms is %d; the worker will wait over a minute after each build", d.cfg.DelayMs))
	}
}

// validateCommand checks that the build tool can be started.
func (d *Doctor) validateCommand(r *Result) {
	p := d.cfg.Pipeline
	if p.Kind != config.KindCommand && p.Kind != config.KindStream {
		d.addError(r, "pipeline", "pipeline.kind",
			fmt.Sprintf("unknown pipeline kind %q (expected command or stream)", p.Kind))
	}
	if len(p.Command) == 0 {
		d.addError(r, "pipeline", "pipeline.command", "pipeline.command is required")
		return
	}

	tool := p.Command[0]
	if strings.ContainsRune(tool, filepath.Separator) {
		if !filepath.IsAbs(tool) {
			tool = filepath.Join(p.Dir, tool)
		}
		info, err := os.Stat(tool)
		switch {
		case err != nil:
			d.addError(r, "pipeline", "pipeline.command",
				fmt.Sprintf("build tool %q not found", p.Command[0]))
		case info.IsDir() || info.Mode()&0o111 == 0:
			d.addError(r, "pipeline", "pipeline.command",
				fmt.Sprintf("build tool %q is not executable", p.Command[0]))
		}
		return
	}
	if _, err := d.lookPath(tool); err != nil {
		d.addError(r, "pipeline", "pipeline.command",
			fmt.Sprintf("build tool %q not found on PATH", tool))
	}
}

func (d *Doctor) validateDirs(r *Result) {
	p := d.cfg.Pipeline
	if !isDir(p.Dir) {
		d.addError(r, "pipeline", "pipeline.dir",
			fmt.Sprintf("working directory %q does not exist", p.Dir))
	}
	if p.Kind == config.KindCommand {
		for i, root := range p.Watch {
			if !isDir(root) {
				d.addError(r, "pipeline", fmt.Sprintf("pipeline.watch[%d]", i),
					fmt.Sprintf("watch root %q does not exist", root))
			}
		}
	}
	if p.Artifact != "" {
		dir := filepath.Dir(p.Artifact)
		if !isDir(dir) {
			d.addWarning(r, "pipeline", "pipeline.artifact",
				fmt.Sprintf("artifact directory %q does not exist yet; the build must create it", dir))
		}
		for i, root := range p.Watch {
			if p.Artifact == root {
				d.addError(r, "pipeline", fmt.Sprintf("pipeline.watch[%d]", i),
					"the artifact itself is a watch root; every build would trigger another")
			}
		}
	}
}

func (d *Doctor) validatePatterns(r *Result) {
	p := d.cfg.Pipeline
	if p.WarningPattern != "" {
		if _, err := regexp.Compile(p.WarningPattern); err != nil {
			d.addError(r, "pipeline", "pipeline.warning_pattern",
				fmt.Sprintf("invalid regular expression: %v", err))
		}
	}
	for i, ext := range p.Extensions {
		if !strings.HasPrefix(ext, ".") {
			d.addWarning(r, "pipeline", fmt.Sprintf("pipeline.extensions[%d]", i),
				fmt.Sprintf("extension %q has no leading dot and will never match", ext))
		}
	}
	if p.Kind == config.KindCommand && p.AggregateTimeout <= 0 {
		d.addError(r, "pipeline", "pipeline.aggregate_timeout", "aggregate_timeout must be positive")
	}
}

func (d *Doctor) validateWorker(r *Result) {
	w := d.cfg.Worker
	if w.StopGrace <= 0 {
		d.addError(r, "worker", "worker.stop_grace", "stop_grace must be positive")
	}
	for key, val := range w.Env {
		if strings.Contains(val, "${") {
			d.addWarning(r, "worker", "worker.env."+key,
				fmt.Sprintf("value of %s references an unset environment variable", key))
		}
	}
}

func (d *Doctor) validateAPI(r *Result) {
	a := d.cfg.API
	if !a.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(a.Listen); err != nil {
		d.addError(r, "api", "api.listen",
			fmt.Sprintf("invalid listen address %q: %v", a.Listen, err))
		return
	}
	if a.Token == "" && !isLoopback(a.Listen) {
		d.addWarning(r, "api", "api.token",
			"API listens beyond loopback without a token")
	}
}

func (d *Doctor) validateLog(r *Result) {
	if !log.ValidLevel(d.cfg.Log.Level) {
		d.addError(r, "log", "log.level", fmt.Sprintf("unknown log level %q", d.cfg.Log.Level))
	}
	switch d.cfg.Log.Format {
	case "json", "text":
	default:
		d.addError(r, "log", "log.format", fmt.Sprintf("unknown log format %q", d.cfg.Log.Format))
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns the report printed by `devrunner check`.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	for _, is := range issues {
		if is.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, is.Category, is.Field, is.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, is.Category, is.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
