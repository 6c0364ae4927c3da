package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	trackingdto "jogtrack/internal/modules/tracking/dto"
	apperrors "jogtrack/internal/platform/errors"
	"jogtrack/internal/ui/components"
	"jogtrack/internal/ui/theme"
	historyview "jogtrack/internal/ui/views/history"
	sessionview "jogtrack/internal/ui/views/session"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type trackingPort interface {
	Start(ctx context.Context) (trackingdto.StartOutput, error)
	Stop(ctx context.Context) (trackingdto.StopOutput, error)
	Pause(ctx context.Context) (trackingdto.SnapshotOutput, error)
	Resume(ctx context.Context) (trackingdto.SnapshotOutput, error)
	Snapshot(ctx context.Context) trackingdto.SnapshotOutput
	Health(ctx context.Context) trackingdto.HealthOutput
	History(ctx context.Context, limit int) ([]trackingdto.StopOutput, error)
}

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabSession tabID = iota
	tabHistory
	tabCount
)

var tabLabels = [tabCount]string{"Session", "History"}

// ─── async messages ───────────────────────────────────────────────────────────

type startedMsg struct {
	out trackingdto.StartOutput
	err error
}

type stoppedMsg struct {
	out trackingdto.StopOutput
	err error
}

type toggledMsg struct {
	out trackingdto.SnapshotOutput
	err error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Tab     key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
	Start   key.Binding
	Pause   key.Binding
	Stop    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Palette, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Stop},
		{k.Tab, k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns tab routing, the help overlay and the
// command palette; tracking calls go through the port and rendering through sub-views.
type Model struct {
	tracking trackingPort

	sessionView sessionview.Model
	historyView historyview.Model

	activeTab tabID
	keys      keyMap
	help      help.Model
	showHelp  bool
	palette   components.Palette
	status    string
	width     int
	height    int
}

func NewModel(tracking trackingPort) Model {
	return Model{
		tracking:    tracking,
		sessionView: sessionview.New(tracking),
		historyView: historyview.New(tracking),
		activeTab:   tabSession,
		keys:        defaultKeys(),
		help:        help.New(),
		palette:     components.NewPalette(),
		status:      "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.sessionView.Init(), m.historyView.Init())
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 60))
		m.help.Width = m.width
		m.propagateSize()
		return m, nil

	case startedMsg:
		switch {
		case msg.out.SessionID == "":
			m.status = "start failed: " + msg.err.Error()
		case msg.err != nil:
			m.status = "started with warnings: " + msg.err.Error()
		default:
			m.status = "session started"
		}
		return m, m.sessionView.Refresh()

	case stoppedMsg:
		if msg.out.SessionID == "" {
			m.status = "stop failed: " + msg.err.Error()
			return m, m.sessionView.Refresh()
		}
		m.status = fmt.Sprintf("session stopped: %d steps, %.2f km", msg.out.TotalSteps, msg.out.TotalDistanceMeters/1000)
		if msg.err != nil {
			m.status += " (not archived yet: " + msg.err.Error() + ")"
		}
		return m, tea.Batch(m.sessionView.Refresh(), m.historyView.Reload())

	case toggledMsg:
		switch {
		case msg.out.SessionID == "":
			m.status = "failed: " + msg.err.Error()
		case msg.err != nil:
			m.status = msg.out.State + " with warnings: " + msg.err.Error()
		default:
			m.status = "session " + msg.out.State
		}
		return m, m.sessionView.Refresh()

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"
		return m, nil

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.activeTab == tabHistory && m.historyView.Filtering() {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
			return m, nil
		case "?":
			m.showHelp = true
			return m, nil
		case ":":
			return m, m.palette.Open()
		case "s":
			if m.activeTab == tabSession {
				return m, m.startCmd()
			}
		case "p":
			if m.activeTab == tabSession {
				return m, m.togglePauseCmd()
			}
		case "x":
			if m.activeTab == tabSession {
				return m, m.stopCmd()
			}
		}
	}

	// the session view polls on its own ticks, so it sees every message
	var cmd tea.Cmd
	m.sessionView, cmd = m.sessionView.Update(msg)
	cmds = append(cmds, cmd)
	if m.activeTab == tabHistory {
		m.historyView, cmd = m.historyView.Update(msg)
		cmds = append(cmds, cmd)
	} else if _, ok := msg.(historyview.LoadedMsg); ok {
		m.historyView, cmd = m.historyView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(tabBar) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	case m.activeTab == tabHistory:
		content = m.historyView.View()
	default:
		content = m.sessionView.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		label := " " + tabLabels[i] + " "
		if i == m.activeTab {
			parts[i] = theme.Hot.Render(label)
		} else {
			parts[i] = theme.Muted.Render(label)
		}
	}
	bar := "jogtrack  " + strings.Join(parts, theme.Muted.Render(" │ "))
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	if state := m.sessionView.State(); state == "tracking" || state == "paused" {
		left = theme.Hot.Render("● "+state) + "  " + left
	}
	right := theme.Muted.Render("?:help  tab:switch  :::palette  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	if input == "" {
		return m, nil
	}
	switch strings.Fields(input)[0] {
	case "track:start":
		m.activeTab = tabSession
		return m, m.startCmd()
	case "track:pause":
		return m, m.pauseCmd()
	case "track:resume":
		return m, m.resumeCmd()
	case "track:stop":
		m.activeTab = tabSession
		return m, m.stopCmd()
	case "history:refresh":
		m.activeTab = tabHistory
		m.status = "history refreshed"
		return m, m.historyView.Reload()
	default:
		m.status = "unknown command: " + input
	}
	return m, nil
}

// ─── async commands ───────────────────────────────────────────────────────────

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracking.Start(context.Background())
		return startedMsg{out: out, err: err}
	}
}

func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracking.Stop(context.Background())
		if errors.Is(err, apperrors.ErrNothingToStop) {
			return stoppedMsg{err: errors.New("no session is running")}
		}
		return stoppedMsg{out: out, err: err}
	}
}

func (m Model) pauseCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracking.Pause(context.Background())
		return toggledMsg{out: out, err: err}
	}
}

func (m Model) resumeCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.tracking.Resume(context.Background())
		return toggledMsg{out: out, err: err}
	}
}

func (m Model) togglePauseCmd() tea.Cmd {
	if m.sessionView.State() == "paused" {
		return m.resumeCmd()
	}
	return m.pauseCmd()
}

func (m *Model) propagateSize() {
	sz := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
	m.sessionView, _ = m.sessionView.Update(sz)
	m.historyView, _ = m.historyView.Update(sz)
}
