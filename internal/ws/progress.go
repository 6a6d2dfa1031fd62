package ws

import (
	"encoding/json"
	"sync"

	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/runner"
)

// Snapshot is the latest known state of the current or last run.
type Snapshot struct {
	RunID   string                   `json:"run_id,omitempty"`
	Phase   runner.Phase             `json:"phase,omitempty"`
	Total   int                      `json:"total_procedures"`
	Current *DirectivePayload        `json:"current,omitempty"`
	Results []runner.ExecutionResult `json:"execution_results"`
	Done    *RunDonePayload          `json:"done,omitempty"`
}

// Progress implements runner.Observer by broadcasting every callback
// through the hub and keeping a snapshot for late joiners.
type Progress struct {
	hub *Hub

	mu   sync.Mutex
	snap Snapshot
}

var _ runner.Observer = (*Progress)(nil)

// NewProgress creates a Progress and installs its snapshot on hub.
func NewProgress(hub *Hub) *Progress {
	p := &Progress{hub: hub}
	hub.SetSnapshot(p.SnapshotJSON)
	return p
}

// SnapshotJSON encodes the current snapshot.
func (p *Progress) SnapshotJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snap
	if snap.Results == nil {
		snap.Results = []runner.ExecutionResult{}
	}
	return json.Marshal(snap)
}

func (p *Progress) OnPhase(runID string, phase runner.Phase) {
	p.mu.Lock()
	if p.snap.RunID != runID {
		p.snap = Snapshot{RunID: runID}
	}
	p.snap.Phase = phase
	p.mu.Unlock()

	p.hub.BroadcastJSON(MsgPhase, PhasePayload{RunID: runID, Phase: phase})
}

func (p *Progress) OnDirectiveStart(runID string, number, total int, d directive.Directive) {
	payload := DirectivePayload{
		RunID:         runID,
		Number:        number,
		Total:         total,
		ProcedureName: d.ProcedureName,
		Statement:     d.Statement,
	}

	p.mu.Lock()
	p.snap.Total = total
	p.snap.Current = &payload
	p.mu.Unlock()

	p.hub.BroadcastJSON(MsgDirectiveStarted, payload)
}

func (p *Progress) OnDirectiveDone(runID string, total int, er runner.ExecutionResult) {
	p.mu.Lock()
	p.snap.Current = nil
	p.snap.Results = append(p.snap.Results, er)
	p.mu.Unlock()

	p.hub.BroadcastJSON(MsgDirectiveDone, DirectiveDonePayload{RunID: runID, Total: total, Result: er})
}

func (p *Progress) OnRunDone(r *runner.Result) {
	payload := RunDonePayload{
		RunID:                r.RunID,
		StatusCode:           r.StatusCode(),
		TotalProcedures:      len(r.Results),
		SuccessfulProcedures: r.Successful(),
		Key:                  r.Key,
		Error:                r.Error,
	}

	p.mu.Lock()
	p.snap.Done = &payload
	p.mu.Unlock()

	p.hub.BroadcastJSON(MsgRunDone, payload)
	if r.Failed() {
		p.hub.BroadcastError(r.Error)
	}
}
