package runner

import "github.com/callrunner/callrunner/internal/directive"

// Phase is a coarse step of a run.
type Phase string

const (
	PhaseDiscover  Phase = "discover"
	PhaseFetch     Phase = "fetch"
	PhaseExecute   Phase = "execute"
	PhaseAggregate Phase = "aggregate"
)

// Observer receives progress callbacks. Calls happen on the run's goroutine.
type Observer interface {
	OnPhase(runID string, phase Phase)
	OnDirectiveStart(runID string, number, total int, d directive.Directive)
	OnDirectiveDone(runID string, total int, result ExecutionResult)
	OnRunDone(result *Result)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnPhase(string, Phase)                                  {}
func (NopObserver) OnDirectiveStart(string, int, int, directive.Directive) {}
func (NopObserver) OnDirectiveDone(string, int, ExecutionResult)           {}
func (NopObserver) OnRunDone(*Result)                                      {}

// Observers fans callbacks out in order.
type Observers []Observer

func (o Observers) OnPhase(runID string, phase Phase) {
	for _, obs := range o {
		obs.OnPhase(runID, phase)
	}
}

func (o Observers) OnDirectiveStart(runID string, number, total int, d directive.Directive) {
	for _, obs := range o {
		obs.OnDirectiveStart(runID, number, total, d)
	}
}

func (o Observers) OnDirectiveDone(runID string, total int, result ExecutionResult) {
	for _, obs := range o {
		obs.OnDirectiveDone(runID, total, result)
	}
}

func (o Observers) OnRunDone(result *Result) {
	for _, obs := range o {
		obs.OnRunDone(result)
	}
}
