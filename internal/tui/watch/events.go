package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/devrunner/internal/events"
)

func renderEventStream(body string, theme Theme, width int) string {
	innerWidth := width - 4

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(body),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

// eventLines renders the log newest first.
func eventLines(eventLog []events.Event, theme Theme) string {
	if len(eventLog) == 0 {
		return theme.Dim.Render("Waiting for events...")
	}
	lines := make([]string, 0, len(eventLog))
	for _, e := range eventLog {
		lines = append(lines, formatEvent(e, theme))
	}
	return strings.Join(lines, "\n")
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.BuildCompleted, events.ProcessStarted:
		typeStyle = theme.StatusOK
	case events.BuildFailed, events.ProcessExited:
		typeStyle = theme.StatusFailed
	case events.BuildStarted, events.ProcessStarting, events.ProcessReplaced:
		typeStyle = theme.StatusRunning
	case events.ExecutionScheduled:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	// process.exited nests the worker.
	if w, ok := data["worker"].(map[string]any); ok {
		for k, v := range w {
			if _, exists := data[k]; !exists {
				data[k] = v
			}
		}
	}

	var parts []string

	if n, ok := number(data, "build"); ok {
		parts = append(parts, fmt.Sprintf("#%d", n))
	}
	if n, ok := number(data, "cycle"); ok {
		parts = append(parts, fmt.Sprintf("cycle %d", n))
	}
	if outcome, ok := data["outcome"].(string); ok {
		parts = append(parts, outcome)
	}
	if n, ok := number(data, "errors"); ok && n > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", n))
	}
	if n, ok := number(data, "warnings"); ok && n > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", n))
	}
	if reason, ok := data["reason"].(string); ok {
		parts = append(parts, reason)
	}
	if pid, ok := number(data, "pid"); ok {
		parts = append(parts, fmt.Sprintf("pid %d", pid))
	}
	if code, ok := number(data, "exit_code"); ok {
		parts = append(parts, fmt.Sprintf("exit %d", code))
	}
	if artifact, ok := data["artifact"].(string); ok && artifact != "" && len(parts) == 0 {
		parts = append(parts, filepath.Base(artifact))
	}
	if msg, ok := data["error"].(string); ok {
		parts = append(parts, msg)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if raw == "{}" {
			return ""
		}
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}

func number(data map[string]any, key string) (int, bool) {
	v, ok := data[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}
