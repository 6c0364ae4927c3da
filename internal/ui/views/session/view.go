package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	trackingdto "jogtrack/internal/modules/tracking/dto"
	"jogtrack/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type SessionPort interface {
	Snapshot(ctx context.Context) trackingdto.SnapshotOutput
	Health(ctx context.Context) trackingdto.HealthOutput
}

// ─── messages ────────────────────────────────────────────────────────────────

type RefreshedMsg struct {
	Snapshot trackingdto.SnapshotOutput
	Health   trackingdto.HealthOutput
}

type tickMsg time.Time

const refreshEvery = time.Second

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port     SessionPort
	snapshot trackingdto.SnapshotOutput
	health   trackingdto.HealthOutput
	spinner  spinner.Model
	now      func() time.Time
	width    int
	height   int
}

func New(port SessionPort) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Pulse
	sp.Style = lipgloss.NewStyle().Foreground(theme.Green)
	return Model{port: port, spinner: sp, now: time.Now, snapshot: trackingdto.SnapshotOutput{State: "idle"}}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Refresh(), m.spinner.Tick, tick())
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.Refresh(), tick())

	case RefreshedMsg:
		m.snapshot = msg.Snapshot
		m.health = msg.Health

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	s := m.snapshot
	var sb strings.Builder

	header := theme.Title.Render("Session")
	if s.State == "tracking" {
		header += "  " + m.spinner.View()
	}
	sb.WriteString(header + "\n\n")
	sb.WriteString(theme.Muted.Render("state:    ") + stateStyle(s.State).Render(s.State) + "\n")
	if s.SessionID != "" {
		sb.WriteString(theme.Muted.Render("id:       ") + s.SessionID + "\n")
		sb.WriteString(theme.Muted.Render("started:  ") + s.StartedAt.Local().Format("15:04:05") + "\n")
		sb.WriteString(theme.Muted.Render("elapsed:  ") + formatDuration(m.elapsed()) + "\n")
	}
	sb.WriteString("\n")

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("steps", fmt.Sprintf("%d", s.TotalSteps)),
		card("distance", fmt.Sprintf("%.2f km", s.TotalDistanceMeters/1000)),
		card("paused", formatDuration(time.Duration(s.PausedSeconds)*time.Second)),
	)
	sb.WriteString(cards + "\n\n")

	for _, warning := range m.warnings() {
		sb.WriteString(theme.Danger.Render("! "+warning) + "\n")
	}
	sb.WriteString(theme.Muted.Render(fmt.Sprintf("samples: %d accepted, %d dropped", m.health.AcceptedSamples, m.health.DroppedSamples)) + "\n\n")
	sb.WriteString(theme.Muted.Render("s: start  p: pause/resume  x: stop"))

	return lipgloss.NewStyle().Width(m.width).Height(m.height).Padding(1, 2).Render(sb.String())
}

// State returns the last polled session state.
func (m Model) State() string { return m.snapshot.State }

// Refresh polls the tracker once.
func (m Model) Refresh() tea.Cmd {
	return func() tea.Msg {
		if m.port == nil {
			return RefreshedMsg{Snapshot: trackingdto.SnapshotOutput{State: "idle"}}
		}
		ctx := context.Background()
		return RefreshedMsg{Snapshot: m.port.Snapshot(ctx), Health: m.port.Health(ctx)}
	}
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m Model) elapsed() time.Duration {
	s := m.snapshot
	end := m.now()
	if !s.StoppedAt.IsZero() {
		end = s.StoppedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

func (m Model) warnings() []string {
	var out []string
	if m.health.SensorUnavailable {
		out = append(out, "sensor unavailable, no samples are being counted")
	}
	if m.health.PersistenceDegraded {
		out = append(out, fmt.Sprintf("saving failed %d times in a row", m.health.ConsecutiveFailures))
	}
	if m.health.PendingArchive {
		out = append(out, "last session not archived yet")
	}
	return out
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func card(label, value string) string {
	return theme.Pane.Width(18).Render(theme.Muted.Render(label) + "\n" + theme.Hot.Render(value))
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "tracking":
		return lipgloss.NewStyle().Foreground(theme.Green).Bold(true)
	case "paused":
		return lipgloss.NewStyle().Foreground(theme.Peach)
	default:
		return theme.Muted
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}
