// Package execution submits a statement and polls it to completion.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/callrunner/callrunner/internal/warehouse"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 300 * time.Second

	unknownError = "Unknown error"
)

// Outcome is the recorded result of one statement.
type Outcome struct {
	QueryID  string           `json:"query_id,omitempty"`
	Status   warehouse.Status `json:"status"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
	Polls    int              `json:"polls"`
}

// Succeeded reports whether the statement finished.
func (o Outcome) Succeeded() bool {
	return o.Status == warehouse.StatusFinished
}

// Executor runs statements one at a time against a warehouse.
type Executor struct {
	warehouse       warehouse.Warehouse
	pollInterval    time.Duration
	maxWait         time.Duration
	cancelOnTimeout bool
	logger          *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) { e.pollInterval = d }
}

// WithMaxWait sets how long a statement may stay non-terminal.
func WithMaxWait(d time.Duration) Option {
	return func(e *Executor) { e.maxWait = d }
}

// WithCancelOnTimeout sends a cancel request when the wait budget runs out.
func WithCancelOnTimeout(enabled bool) Option {
	return func(e *Executor) { e.cancelOnTimeout = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor with the default 2s interval and 300s budget.
func New(wh warehouse.Warehouse, opts ...Option) *Executor {
	e := &Executor{
		warehouse:    wh,
		pollInterval: DefaultPollInterval,
		maxWait:      DefaultMaxWait,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.maxWait <= 0 {
		e.maxWait = DefaultMaxWait
	}
	return e
}

// Run submits in and blocks until the statement is terminal or the wait
// budget is spent. It never returns an error: submission and polling
// failures are reported as StatusError. Cancelling ctx does not end the
// wait; only the budget does.
func (e *Executor) Run(ctx context.Context, in warehouse.StatementInput) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	id, err := e.warehouse.ExecuteStatement(ctx, in)
	if err != nil {
		return Outcome{
			Status:   warehouse.StatusError,
			Error:    fmt.Sprintf("submitting statement: %v", err),
			Duration: time.Since(start),
		}
	}
	e.logger.Debug("statement submitted", "query_id", id)

	out := e.poll(ctx, id)
	out.QueryID = id
	out.Duration = time.Since(start)
	return out
}

// poll starts the wait budget once the statement has been accepted.
func (e *Executor) poll(ctx context.Context, id string) Outcome {
	deadline := time.Now().Add(e.maxWait)
	polls := 0

	for {
		st, err := e.warehouse.DescribeStatement(ctx, id)
		polls++
		if err != nil {
			return Outcome{
				Status: warehouse.StatusError,
				Error:  fmt.Sprintf("describing statement %s: %v", id, err),
				Polls:  polls,
			}
		}

		if st.Status.Terminal() {
			out := Outcome{Status: st.Status, Polls: polls}
			if st.Status != warehouse.StatusFinished {
				out.Error = st.Error
				if out.Error == "" {
					out.Error = unknownError
				}
			}
			return out
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return e.timeout(ctx, id, polls, st.Status)
		}

		e.logger.Debug("statement pending", "query_id", id, "status", st.Status)

		timer := time.NewTimer(min(e.pollInterval, remaining))
		<-timer.C
	}
}

func (e *Executor) timeout(ctx context.Context, id string, polls int, last warehouse.Status) Outcome {
	e.logger.Warn("statement did not complete in time",
		"query_id", id, "last_status", last, "max_wait", e.maxWait)

	if e.cancelOnTimeout {
		if err := e.warehouse.CancelStatement(ctx, id); err != nil {
			e.logger.Warn("cancelling timed out statement failed", "query_id", id, "error", err)
		} else {
			e.logger.Info("cancelled timed out statement", "query_id", id)
		}
	}

	return Outcome{
		Status: warehouse.StatusTimeout,
		Error:  fmt.Sprintf("no terminal status after %s (last %s)", e.maxWait, last),
		Polls:  polls,
	}
}
