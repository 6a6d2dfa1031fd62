package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// MockWarehouse is a test double for the Warehouse interface.
//
// Each submitted statement walks through Script (or DefaultScript) one entry
// per DescribeStatement call; the last entry repeats once reached.
type MockWarehouse struct {
	Script        map[string][]Status // sql → describe sequence
	DefaultScript []Status
	Errors        map[string]string // sql → error detail reported on FAILED/ABORTED
	ExecuteErr    map[string]error  // sql → submission failure
	DescribeErr   error
	CancelErr     error

	// Track calls
	Executed      []StatementInput
	DescribeCalls int
	Cancelled     []string

	mu    sync.Mutex
	sqlOf map[string]string
	step  map[string]int
}

// NewMockWarehouse creates a warehouse that finishes every statement on the first describe.
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{
		Script:        make(map[string][]Status),
		DefaultScript: []Status{StatusFinished},
		Errors:        make(map[string]string),
		ExecuteErr:    make(map[string]error),
		sqlOf:         make(map[string]string),
		step:          make(map[string]int),
	}
}

func (m *MockWarehouse) ExecuteStatement(ctx context.Context, in StatementInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Executed = append(m.Executed, in)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.ExecuteErr[in.SQL]; err != nil {
		return "", err
	}
	id := fmt.Sprintf("q-%d", len(m.Executed))
	m.sqlOf[id] = in.SQL
	return id, nil
}

func (m *MockWarehouse) DescribeStatement(ctx context.Context, id string) (*StatementStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DescribeCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	sql, ok := m.sqlOf[id]
	if !ok {
		return nil, fmt.Errorf("statement %s not found", id)
	}

	script := m.Script[sql]
	if len(script) == 0 {
		script = m.DefaultScript
	}
	i := m.step[id]
	if i >= len(script) {
		i = len(script) - 1
	}
	m.step[id]++

	st := &StatementStatus{ID: id, Status: script[i]}
	if st.Status == StatusFailed || st.Status == StatusAborted {
		st.Error = m.Errors[sql]
	}
	return st, nil
}

func (m *MockWarehouse) CancelStatement(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Cancelled = append(m.Cancelled, id)
	return m.CancelErr
}
