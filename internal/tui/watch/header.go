package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/devrunner/internal/api"
)

// RunnerState is what the header shows, refreshed from /status polling.
type RunnerState struct {
	Status    api.StatusResponse
	Connected bool
	LastCheck time.Time
}

func renderHeader(rs RunnerState, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4
	s := rs.Status

	// Title line with ticker and clock
	name := s.Name
	if name == "" {
		name = "devrunner"
	}
	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" DEVRUNNER %s %s", strings.ToUpper(name), tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	// Build line
	var buildText string
	switch {
	case !rs.Connected:
		buildText = theme.StatusFailed.Render("CONNECTING")
	case s.Build.Valid:
		buildText = theme.StatusOK.Render("VALID")
	default:
		buildText = theme.StatusRunning.Render("BUILDING")
	}
	buildLine := fmt.Sprintf(" Build: %s  #%d  cycle %d  pipeline %s  delay %s",
		buildText, s.Build.Build, s.Build.Cycle, s.Pipeline,
		time.Duration(s.DelayMs)*time.Millisecond,
	)

	// Worker line
	workerLine := " Worker: " + theme.Dim.Render("not running")
	if w := s.Worker; w != nil {
		workerLine = fmt.Sprintf(" Worker: %s pid %d  %s  up %s",
			theme.StatusOK.Render("RUNNING"),
			w.PID,
			filepath.Base(w.Artifact),
			formatDuration(time.Since(w.StartedAt)),
		)
	}

	// Activity line
	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		ago := time.Since(spinner.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}
	activityLine := fmt.Sprintf(" Last event: %s %s",
		lastEventStr,
		spinner.Render(theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		buildLine,
		workerLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
