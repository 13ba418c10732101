// Package output writes the operator-facing console messages: build results
// and worker lifecycle, prefixed with the runner name.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/dispatch"
)

const bullet = "  ● "

// Console formats messages as paragraphs: a prefixed header line, optionally
// followed by a bullet list body set apart by blank lines.
type Console struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	colors bool

	title        string
	errorBadge   string
	warningBadge string
	errorText    lipgloss.Style
	warningText  lipgloss.Style

	// margin is true when the last message ended with a blank line.
	margin bool
}

// New creates a Console for the runner called name. Without colors the output
// is plain text. Nil writers default to os.Stdout and os.Stderr.
func New(name string, colors bool, stdout, stderr io.Writer) *Console {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	c := &Console{stdout: stdout, stderr: stderr, colors: colors}

	if !colors {
		c.title = fmt.Sprintf("[devRunner:%s]", name)
		c.errorBadge = " ERROR "
		c.warningBadge = " WARNING "
		return c
	}

	r := lipgloss.NewRenderer(stdout)
	r.SetColorProfile(termenv.ANSI256)

	gray := lipgloss.Color("245")
	black := lipgloss.Color("0")
	name = r.NewStyle().Foreground(lipgloss.Color("12")).Render(name)
	c.title = r.NewStyle().Bold(true).Foreground(gray).Render("[devRunner:") +
		name +
		r.NewStyle().Bold(true).Foreground(gray).Render("]")
	c.errorBadge = r.NewStyle().Foreground(black).Background(lipgloss.Color("1")).Render(" ERROR ")
	c.warningBadge = r.NewStyle().Foreground(black).Background(lipgloss.Color("3")).Render(" WARNING ")
	c.errorText = r.NewStyle().Foreground(lipgloss.Color("1"))
	c.warningText = r.NewStyle().Foreground(lipgloss.Color("3"))
	return c
}

// Info writes a plain message to stdout.
func (c *Console) Info(message string, items ...string) {
	c.write(c.stdout, c.title+" "+message, items, nil)
}

// Error writes an error message to stderr.
func (c *Console) Error(message string, items ...string) {
	c.write(c.stderr, c.title+" "+c.errorBadge+" "+message, items, &c.errorText)
}

// Warning writes a warning message to stderr.
func (c *Console) Warning(message string, items ...string) {
	c.write(c.stderr, c.title+" "+c.warningBadge+" "+message, items, &c.warningText)
}

func (c *Console) write(w io.Writer, header string, items []string, style *lipgloss.Style) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := header
	if len(items) > 0 {
		if !c.margin {
			text = "\n" + text
		}
		body := formatBody(items)
		if c.colors && style != nil {
			body = style.Render(body)
		}
		text += "\n\n" + body + "\n"
		c.margin = true
	} else {
		c.margin = false
	}
	fmt.Fprintln(w, text)
}

// formatBody renders items as a bullet list. Continuation lines are indented
// under their bullet.
func formatBody(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = bullet + strings.ReplaceAll(item, "\n", "\n    ")
	}
	return strings.Join(lines, "\n")
}

// BuildFailed reports a fatal pipeline error.
func (c *Console) BuildFailed(err error) {
	c.Error("Build failed", err.Error())
}

// BuildCompleted reports a classified build that advanced the build counter.
func (c *Console) BuildCompleted(n int, res build.Result) {
	if len(res.Errors) > 0 {
		items := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			items[i] = e.String()
			if e.Details != "" {
				items[i] += "\n" + e.Details
			}
		}
		c.Error(fmt.Sprintf("Build #%d has %s, not running it", n, plural(len(res.Errors), "error")), items...)
		return
	}

	if len(res.Warnings) > 0 {
		items := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			items[i] = w.String()
		}
		c.Warning(fmt.Sprintf("Build #%d has %s", n, plural(len(res.Warnings), "warning")), items...)
	}

	summary := []string{"artifact: " + res.ArtifactPath}
	if res.Digest != "" {
		summary = append(summary, "digest: "+build.ShortDigest(res.Digest))
	}
	if res.Duration > 0 {
		summary = append(summary, "took: "+res.Duration.Round(time.Millisecond).String())
	}
	c.Info(fmt.Sprintf("Build #%d complete", n), summary...)
}

// ProcessStarting announces a worker (re)start.
func (c *Console) ProcessStarting(_ string, prev *dispatch.Worker) {
	if prev != nil {
		c.Info("Replacing running process...")
		return
	}
	c.Info("Starting process...")
}

// ProcessStarted reports the new worker's pid.
func (c *Console) ProcessStarted(w dispatch.Worker) {
	c.Info(fmt.Sprintf("Process started (pid %d)", w.PID))
}

// ProcessExited reports a worker that exited on its own.
func (c *Console) ProcessExited(w dispatch.Worker, err error) {
	if err != nil {
		c.Warning(fmt.Sprintf("Process %d exited", w.PID), err.Error())
		return
	}
	c.Info(fmt.Sprintf("Process %d exited", w.PID))
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
