package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/runner"
)

// Sender is implemented by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards runner callbacks to a bubbletea program.
type Observer struct {
	program Sender
}

var _ runner.Observer = Observer{}

// NewObserver creates an Observer sending to p.
func NewObserver(p Sender) Observer {
	return Observer{program: p}
}

func (o Observer) OnPhase(runID string, phase runner.Phase) {
	o.program.Send(PhaseMsg{RunID: runID, Phase: phase})
}

func (o Observer) OnDirectiveStart(_ string, number, total int, d directive.Directive) {
	o.program.Send(DirectiveStartMsg{
		Number:    number,
		Total:     total,
		Name:      d.ProcedureName,
		Statement: d.Statement,
		At:        time.Now(),
	})
}

func (o Observer) OnDirectiveDone(_ string, total int, er runner.ExecutionResult) {
	o.program.Send(DirectiveDoneMsg{Total: total, Result: er})
}

func (o Observer) OnRunDone(r *runner.Result) {
	o.program.Send(RunDoneMsg{Result: r})
}
