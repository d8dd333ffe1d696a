package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list
	// around each row. Determined empirically by measuring rendered output.
	listRenderingOverhead = 4

	// minKeyWidth keeps the build key column readable on narrow terminals.
	minKeyWidth = 12
)

// Delegate renders tracked builds as table rows.
type Delegate struct {
	styles *StyleConfig
	// now is injected in tests for stable age columns.
	now func() time.Time
}

// NewDelegate creates a new build table delegate with default styles
func NewDelegate() Delegate {
	return Delegate{
		styles: DefaultStyles(),
		now:    time.Now,
	}
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	isSelected := index == m.Index()

	queued, running, completed := entry.Progress()
	countsCol := fmt.Sprintf("%2dq %2dr %2dc", queued, running, completed)
	ageCol := fmt.Sprintf("%4s", Age(d.now().Sub(entry.Snapshot.UpdatedAt)))

	// Fixed columns: counts + age + separators (6)
	fixedWidth := VisualWidth(countsCol) + VisualWidth(ageCol) + 6
	keyWidth := m.Width() - fixedWidth - listRenderingOverhead
	if keyWidth < minKeyWidth {
		keyWidth = minKeyWidth
	}
	keyCol := TruncateAndPad(entry.Snapshot.Key, keyWidth, true)

	line := fmt.Sprintf("%s │ %s │ %s", keyCol, countsCol, ageCol)

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	switch {
	case entry.Failed():
		style = style.Foreground(d.styles.FailureColor)
	case entry.Settled():
		style = style.Foreground(d.styles.SuccessColor)
	case running > 0:
		style = style.Foreground(d.styles.TextPrimary)
	}
	if isSelected {
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(d.styles.SelectedColor)
	}

	fmt.Fprint(w, style.Render(line))
}
