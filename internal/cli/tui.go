package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/romega/certforge/pkg/batch"
)

// =============================================================================
// BatchModel - Live batch progress
// =============================================================================

// progressMsg carries one progress snapshot from the batch runner.
type progressMsg batch.Progress

// batchDoneMsg signals that the runner has returned and the event channel
// is closed.
type batchDoneMsg struct{}

// BatchModel is the bubbletea model showing live batch progress.
type BatchModel struct {
	events   <-chan batch.Progress
	last     batch.Progress
	aborted  bool
	barWidth int
}

// NewBatchModel creates a progress model reading from events. The channel
// must be closed when the run finishes.
func NewBatchModel(events <-chan batch.Progress) BatchModel {
	return BatchModel{events: events, barWidth: 30}
}

func (m BatchModel) Init() tea.Cmd {
	return m.waitForEvent()
}

// waitForEvent blocks on the next progress snapshot.
func (m BatchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-m.events
		if !ok {
			return batchDoneMsg{}
		}
		return progressMsg(p)
	}
}

func (m BatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.aborted = true
			return m, tea.Quit
		}
	case progressMsg:
		m.last = batch.Progress(msg)
		return m, m.waitForEvent()
	case batchDoneMsg:
		return m, tea.Quit
	case tea.WindowSizeMsg:
		if w := msg.Width - 30; w > 10 && w < 60 {
			m.barWidth = w
		}
	}
	return m, nil
}

func (m BatchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Generating Certificates"))
	b.WriteString("\n\n")

	switch m.last.Status {
	case batch.StatusError:
		b.WriteString(styleIconError.Render(iconError) + " ")
		if m.last.Err != nil {
			b.WriteString(m.last.Err.Error())
		} else {
			b.WriteString("batch failed")
		}
		b.WriteString("\n")
	case batch.StatusComplete:
		b.WriteString(m.bar())
		b.WriteString("\n")
		b.WriteString(StyleSuccess.Render(fmt.Sprintf("%s %d certificates processed", iconSuccess, m.last.Total)))
		b.WriteString("\n")
	default:
		b.WriteString(m.bar())
		b.WriteString("\n")
		if m.last.CurrentName != "" {
			b.WriteString(StyleDim.Render("rendering ") + StyleValue.Render(m.last.CurrentName))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(StyleDim.Render("ctrl+c to abort"))
	b.WriteString("\n")
	return b.String()
}

// bar renders the progress bar with a current/total counter.
func (m BatchModel) bar() string {
	if m.last.Total == 0 {
		return ""
	}
	filled := m.last.Current * m.barWidth / m.last.Total
	if filled > m.barWidth {
		filled = m.barWidth
	}
	bar := StyleHighlight.Render(strings.Repeat("█", filled)) +
		StyleDim.Render(strings.Repeat("░", m.barWidth-filled))
	return fmt.Sprintf("%s %d/%d", bar, m.last.Current, m.last.Total)
}

// Aborted reports whether the user cancelled the run from the TUI.
func (m BatchModel) Aborted() bool {
	return m.aborted
}
