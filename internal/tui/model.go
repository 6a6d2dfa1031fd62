// Package tui renders live run progress in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/warehouse"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// Progress messages, sent by Observer.
type (
	PhaseMsg struct {
		RunID string
		Phase runner.Phase
	}
	DirectiveStartMsg struct {
		Number, Total int
		Name          string
		Statement     string
		At            time.Time
	}
	DirectiveDoneMsg struct {
		Total  int
		Result runner.ExecutionResult
	}
	RunDoneMsg struct {
		Result *runner.Result
	}
)

// Model is the bubbletea model for a single run.
type Model struct {
	spinner   spinner.Model
	locator   string
	runID     string
	phase     runner.Phase
	total     int
	current   *DirectiveStartMsg
	results   []runner.ExecutionResult
	final     *runner.Result
	aborted bool
	width     int
	now       func() time.Time
}

// NewModel creates a model for a run of the manifest at locator.
func NewModel(locator string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = highlightStyle
	return Model{
		spinner: s,
		locator: locator,
		width:   100,
		now:     time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.final != nil {
				return m, tea.Quit
			}
			m.aborted = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.final != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PhaseMsg:
		if msg.RunID != m.runID {
			m.runID = msg.RunID
			m.results = nil
			m.current = nil
		}
		m.phase = msg.Phase

	case DirectiveStartMsg:
		m.total = msg.Total
		m.current = &msg

	case DirectiveDoneMsg:
		m.total = msg.Total
		m.current = nil
		m.results = append(m.results, msg.Result)

	case RunDoneMsg:
		m.final = msg.Result
		m.current = nil
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("callrunner"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  Manifest: %s\n", dimStyle.Render(m.locator)))
	if m.phase != "" {
		b.WriteString(fmt.Sprintf("  Phase:    %s\n", highlightStyle.Render(string(m.phase))))
	}

	if m.total > 0 {
		done := len(m.results)
		pct := float64(done) / float64(m.total) * 100
		b.WriteString(fmt.Sprintf("  %s %d/%d\n", renderProgressBar(pct, m.width-20), done, m.total))
	}

	if len(m.results) > 0 {
		b.WriteString("\n")
		for _, er := range m.results {
			line := fmt.Sprintf("  %s %3d %-40s", statusIcon(er.Status), er.ProcedureNumber, er.ProcedureName)
			if er.Error != "" {
				line += " " + errStyle.Render(truncate(er.Error, 60))
			}
			b.WriteString(line + "\n")
		}
	}

	if m.current != nil {
		elapsed := m.now().Sub(m.current.At).Truncate(time.Second)
		b.WriteString(fmt.Sprintf("\n  %s %3d %s %s\n", m.spinner.View(), m.current.Number,
			m.current.Name, dimStyle.Render(elapsed.String())))
		b.WriteString(dimStyle.Render("      "+m.current.Statement) + "\n")
	}

	switch {
	case m.final != nil && m.final.Failed():
		b.WriteString("\n")
		b.WriteString(errStyle.Render("  " + m.final.Error))
		b.WriteString("\n")
	case m.final != nil && m.final.Succeeded():
		b.WriteString("\n")
		b.WriteString(successStyle.Render(fmt.Sprintf("  All %d procedures finished.", len(m.final.Results))))
		b.WriteString("\n")
	case m.final != nil:
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("  %d of %d procedures finished.", m.final.Successful(), len(m.final.Results))))
		b.WriteString("\n")
	case m.aborted:
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("  Abandoned. Submitted statements keep running in the warehouse."))
		b.WriteString("\n")
	default:
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  q: abandon run"))
		b.WriteString("\n")
	}

	return b.String()
}

// Aborted reports whether the user quit before the run finished.
func (m Model) Aborted() bool {
	return m.aborted
}

// Result returns the finished run, or nil while running.
func (m Model) Result() *runner.Result {
	return m.final
}

func statusIcon(s warehouse.Status) string {
	switch s {
	case warehouse.StatusFinished:
		return successStyle.Render("OK")
	case warehouse.StatusTimeout:
		return warnStyle.Render("TO")
	default:
		return errStyle.Render("XX")
	}
}

func renderProgressBar(pct float64, width int) string {
	if width < 10 {
		width = 10
	}
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
