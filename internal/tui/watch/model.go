package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/devrunner/internal/api"
	"github.com/mattjoyce/devrunner/internal/events"
)

const (
	maxEventLog     = 200
	statusInterval  = 2 * time.Second
	reconnectDelay  = 3 * time.Second
	headerRows      = 8
	chromeRows      = 6
	minStreamHeight = 3
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	client *Client

	width  int
	height int

	runner   RunnerState
	eventLog []events.Event
	lastID   int64

	ticker  Ticker
	spinner Spinner

	theme    Theme
	viewport viewport.Model

	hubEvents chan events.Event

	lastError string
}

// New creates a watch model for the supervisor API at apiURL.
func New(apiURL, token string) *Model {
	vp := viewport.Model{}
	vp.KeyMap = viewport.DefaultKeyMap()

	return &Model{
		client:    NewClient(apiURL, token),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		viewport:  vp,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchStatus(m.client),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.eventLog = nil
			m.refreshStream()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(m.width-8, 0)
		m.viewport.Height = max(m.height-headerRows-chromeRows, minStreamHeight)
		m.refreshStream()

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(time.Time(msg))
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		// newest first
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.refreshStream()
		m.spinner.OnEvent(time.Now())

		m.runner.Connected = true
		m.lastError = ""

		// Lifecycle events change what /status reports.
		return m, tea.Batch(receiveNextEvent(m.hubEvents), fetchStatus(m.client))

	case statusMsg:
		m.runner.Status = api.StatusResponse(msg)
		m.runner.Connected = true
		m.runner.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg {
			return fetchStatus(m.client)()
		})

	case sseDisconnectedMsg:
		m.runner.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps waiting on the channel and picks
		// up events from the new subscription.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.runner.Connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
			return fetchStatus(m.client)()
		})
	}

	return m, nil
}

func (m *Model) refreshStream() {
	m.viewport.SetContent(eventLines(m.eventLog, m.theme))
	m.viewport.GotoTop()
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to devrunner..."
	}

	header := renderHeader(m.runner, m.ticker, m.spinner, m.theme, m.width)
	stream := renderEventStream(m.viewport.View(), m.theme, m.width)

	parts := []string{header, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Help.Render(" [q] Quit • [↑/↓] Scroll • [c] Clear"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Run starts the dashboard and blocks until the user quits.
func Run(apiURL, token string) error {
	_, err := tea.NewProgram(New(apiURL, token)).Run()
	return err
}
