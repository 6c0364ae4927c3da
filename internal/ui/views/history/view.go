package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	trackingdto "jogtrack/internal/modules/tracking/dto"
	"jogtrack/internal/ui/theme"
)

const pageSize = 200

// ─── port ────────────────────────────────────────────────────────────────────

type HistoryPort interface {
	History(ctx context.Context, limit int) ([]trackingdto.StopOutput, error)
}

// ─── messages ────────────────────────────────────────────────────────────────

type LoadedMsg struct {
	Sessions []trackingdto.StopOutput
	Err      error
}

// ─── list item ───────────────────────────────────────────────────────────────

type sessionItem struct {
	session trackingdto.StopOutput
}

func (i sessionItem) Title() string {
	return i.session.StartedAt.Local().Format("Mon 02 Jan 2006 15:04")
}

func (i sessionItem) Description() string {
	return fmt.Sprintf("%d steps  %.2f km", i.session.TotalSteps, i.session.TotalDistanceMeters/1000)
}

func (i sessionItem) FilterValue() string { return i.session.StartedAt.Format("2006-01-02") }

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port    HistoryPort
	list    list.Model
	detail  viewport.Model
	spinner spinner.Model
	loading bool
	width   int
	height  int
}

func New(port HistoryPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "History"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().
		Background(theme.Mantle).
		Foreground(theme.Text).
		Padding(1)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)

	return Model{port: port, list: l, detail: vp, spinner: sp, loading: true}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Reload(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.list.Title = "History: " + msg.Err.Error()
			return m, nil
		}
		m.list.Title = "History"
		items := make([]list.Item, len(msg.Sessions))
		for i, s := range msg.Sessions {
			items[i] = sessionItem{session: s}
		}
		cmds = append(cmds, m.list.SetItems(items))
		m.renderSelected()

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.loading {
		var lCmd tea.Cmd
		prevIdx := m.list.Index()
		m.list, lCmd = m.list.Update(msg)
		cmds = append(cmds, lCmd)
		if m.list.Index() != prevIdx {
			m.renderSelected()
		}

		var vCmd tea.Cmd
		m.detail, vCmd = m.detail.Update(msg)
		cmds = append(cmds, vCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" Loading history…")
	}

	listW := m.width * 4 / 10
	detailW := m.width - listW

	listPane := lipgloss.NewStyle().
		Width(listW).
		Height(m.height).
		Render(m.list.View())

	detailPane := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Surface1).
		Background(theme.Mantle).
		Width(detailW - 2).
		Height(m.height - 2).
		Render(m.detail.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

// Reload fetches the most recent sessions from the history index.
func (m Model) Reload() tea.Cmd {
	return func() tea.Msg {
		if m.port == nil {
			return LoadedMsg{Err: fmt.Errorf("history not configured")}
		}
		sessions, err := m.port.History(context.Background(), pageSize)
		return LoadedMsg{Sessions: sessions, Err: err}
	}
}

// Filtering reports whether the list's search filter is currently active.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m *Model) resize() {
	listW := m.width * 4 / 10
	detailW := m.width - listW
	m.list.SetSize(listW, m.height)
	m.detail.Width = detailW - 4
	m.detail.Height = m.height - 4
}

func (m *Model) renderSelected() {
	item, ok := m.list.SelectedItem().(sessionItem)
	if !ok {
		m.detail.SetContent(theme.Muted.Render("No archived sessions yet"))
		return
	}
	s := item.session
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Jog "+s.StartedAt.Local().Format("2006-01-02 15:04")) + "\n\n")
	sb.WriteString(theme.Muted.Render("id:       ") + s.SessionID + "\n")
	sb.WriteString(fmt.Sprintf("%s%d\n", theme.Muted.Render("steps:    "), s.TotalSteps))
	sb.WriteString(fmt.Sprintf("%s%.2f km\n", theme.Muted.Render("distance: "), s.TotalDistanceMeters/1000))
	sb.WriteString(theme.Muted.Render("duration: ") + (time.Duration(s.DurationSeconds) * time.Second).String() + "\n")
	sb.WriteString(theme.Muted.Render("moving:   ") + (time.Duration(s.ActiveSeconds) * time.Second).String() + "\n")
	sb.WriteString(fmt.Sprintf("%s%.2f m/s\n", theme.Muted.Render("speed:    "), s.AverageSpeedMPS))
	if pace := paceText(s.AverageSpeedMPS); pace != "" {
		sb.WriteString(theme.Muted.Render("pace:     ") + pace + "\n")
	}
	m.detail.SetContent(sb.String())
}

// paceText renders minutes per kilometre.
func paceText(mps float64) string {
	if mps <= 0 {
		return ""
	}
	perKM := time.Duration(1000 / mps * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d /km", int(perKM.Minutes()), int(perKM.Seconds())%60)
}
