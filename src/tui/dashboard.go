// Package tui implements the terminal dashboard over the relay's build
// memory. The top panel lists tracked builds, the bottom panel shows the
// job records behind the selected one.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"checkrelay/src/contracts"
	"checkrelay/src/reconcile"
	"checkrelay/src/store"
)

const (
	// refreshInterval is how often the dashboard re-reads the store.
	refreshInterval = 5 * time.Second

	// loadTimeout bounds one store read.
	loadTimeout = 5 * time.Second

	// chromeLines is title + divider + help.
	chromeLines = 3
)

// snapshotsMsg delivers the result of a store read.
type snapshotsMsg struct {
	snapshots []store.Snapshot
	err       error
}

// tickMsg triggers the periodic refresh.
type tickMsg struct{}

// Model is the Bubble Tea model for the build dashboard.
type Model struct {
	memory store.Store
	list   list.Model
	styles *StyleConfig

	width  int
	height int
	loaded bool
	err    error
}

// NewModel creates a dashboard over the given snapshot store.
func NewModel(memory store.Store) Model {
	delegate := NewDelegate()

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return Model{
		memory: memory,
		list:   l,
		styles: DefaultStyles(),
	}
}

// Init performs the initial load and starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.reload(), m.tick())
}

// reload reads the store off the event loop.
func (m Model) reload() tea.Cmd {
	memory := m.memory
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		snapshots, err := memory.List(ctx)
		return snapshotsMsg{snapshots: snapshots, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, m.listHeight())
		return m, nil

	case snapshotsMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err == nil {
			items := make([]list.Item, len(msg.snapshots))
			for i, snap := range msg.snapshots {
				items[i] = Item{Snapshot: snap}
			}
			m.list.SetItems(items)
		}
		return m, nil

	case tickMsg:
		// The tick chain re-arms itself so a manual reload never doubles it.
		return m, tea.Batch(m.reload(), m.tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.reload()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// listHeight gives the build list two fifths of the usable rows.
func (m Model) listHeight() int {
	h := (m.height - chromeLines) * 2 / 5
	if h < 4 {
		h = 4
	}
	return h
}

// View renders the dashboard.
func (m Model) View() string {
	if m.height == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.styles.TitleStyle().Render("checkrelay · tracked builds"))
	b.WriteString("\n")

	// A read failure keeps the last good list on screen under a banner.
	if m.err != nil {
		b.WriteString(m.styles.ErrorStyle().Render(fmt.Sprintf("store error: %v", m.err)))
		b.WriteString("\n")
	}

	switch {
	case !m.loaded:
		b.WriteString(m.styles.HelpStyle().Render("Loading builds..."))
		b.WriteString("\n")
	case len(m.list.Items()) == 0:
		b.WriteString(m.styles.HelpStyle().Render("No builds tracked. Waiting for webhook deliveries."))
		b.WriteString("\n")
	default:
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}

	b.WriteString(m.styles.DividerStyle().Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteString("\n")

	detailHeight := m.height - chromeLines - m.listHeight()
	for i, line := range m.renderDetail() {
		if i >= detailHeight {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.styles.HelpStyle().Render("↑/↓ navigate · r reload · q quit"))

	return b.String()
}

// renderDetail builds the job record panel for the selected build.
func (m Model) renderDetail() []string {
	entry, ok := m.list.SelectedItem().(Item)
	if !ok {
		return []string{m.styles.HelpStyle().Render("No build selected")}
	}

	snap := entry.Snapshot
	header := fmt.Sprintf("%s · %d jobs · updated %s",
		snap.Key, len(snap.Records), snap.UpdatedAt.Format(time.RFC3339))

	lines := []string{m.styles.TitleStyle().Render(header)}

	for _, rec := range snap.Records {
		status := reconcile.CheckStatus(rec.State)
		stateText := rec.State
		if conclusion := reconcile.CheckConclusion(rec); conclusion != "" {
			stateText = fmt.Sprintf("%s → %s", rec.State, conclusion)
		}

		runCol := "unpublished"
		if rec.CheckRunID != 0 {
			runCol = fmt.Sprintf("run #%d", rec.CheckRunID)
		}

		row := fmt.Sprintf(" %s %s %s %s",
			TruncateAndPad(rec.Name, 28, true),
			TruncateAndPad(stateText, 20, false),
			TruncateAndPad(status, 12, false),
			runCol)
		lines = append(lines, stateStyle(m.styles, rec).Render(row))
	}

	// Long provider URLs wrap instead of spilling off narrow panes.
	if len(snap.Records) > 0 && snap.Records[0].URL != "" {
		wrapped := Wrap("provider: "+snap.Records[0].URL, max(m.width-2, 20))
		for _, line := range SplitLines(wrapped) {
			lines = append(lines, m.styles.HelpStyle().Render(line))
		}
	}

	return lines
}

// stateStyle colors a job row by its derived check state.
func stateStyle(styles *StyleConfig, rec contracts.JobRecord) lipgloss.Style {
	base := lipgloss.NewStyle()
	switch reconcile.CheckStatus(rec.State) {
	case reconcile.StatusCompleted:
		switch reconcile.CheckConclusion(rec) {
		case reconcile.ConclusionSuccess:
			return base.Foreground(styles.SuccessColor)
		case reconcile.ConclusionFailure:
			return base.Foreground(styles.FailureColor)
		default:
			return base.Foreground(styles.NeutralColor)
		}
	case reconcile.StatusInProgress:
		return base.Foreground(styles.RunningColor)
	default:
		return base.Foreground(styles.TextSecondary)
	}
}

// Start runs the dashboard until the user quits.
func Start(memory store.Store) error {
	p := tea.NewProgram(NewModel(memory), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
