// Package postgres runs statements over the Postgres wire protocol. It backs
// the warehouse port when procedures live in PostgreSQL, or in Redshift
// reached directly rather than through the Data API.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callrunner/callrunner/internal/warehouse"
)

// execer is the part of pgxpool.Pool used to run statements.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type statement struct {
	status warehouse.Status
	err    string
	cancel context.CancelFunc
}

// Warehouse implements warehouse.Warehouse on a pgx pool. Each statement
// runs on its own goroutine so submission returns immediately.
type Warehouse struct {
	connStr string
	pool    *pgxpool.Pool
	db      execer

	mu         sync.Mutex
	statements map[string]*statement
	closed     bool
	wg         sync.WaitGroup
}

// NewWarehouse creates a Warehouse for connStr. Call Connect before use.
func NewWarehouse(connStr string) *Warehouse {
	return &Warehouse{connStr: connStr, statements: make(map[string]*statement)}
}

func newWithExecer(db execer) *Warehouse {
	return &Warehouse{db: db, statements: make(map[string]*statement)}
}

// Connect opens and pings the pool.
func (w *Warehouse) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(w.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	w.pool = pool
	w.db = pool
	return nil
}

// Close cancels statements still running, including ones abandoned after a
// timeout, waits for their goroutines to return and closes the pool.
func (w *Warehouse) Close() {
	w.mu.Lock()
	w.closed = true
	for _, st := range w.statements {
		st.cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()
	if w.pool != nil {
		w.pool.Close()
	}
}

// ExecuteStatement starts in.SQL in the background. Database and user come
// from the connection string.
func (w *Warehouse) ExecuteStatement(_ context.Context, in warehouse.StatementInput) (string, error) {
	if w.db == nil {
		return "", errors.New("postgres warehouse is not connected")
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	st := &statement{status: warehouse.StatusStarted, cancel: cancel}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return "", errors.New("postgres warehouse is closed")
	}
	w.statements[id] = st
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer cancel()

		_, err := w.db.Exec(runCtx, in.SQL)

		w.mu.Lock()
		defer w.mu.Unlock()
		switch {
		case err == nil:
			st.status = warehouse.StatusFinished
		case errors.Is(err, context.Canceled):
			st.status = warehouse.StatusAborted
			st.err = "statement cancelled"
		default:
			st.status = warehouse.StatusFailed
			st.err = err.Error()
		}
	}()

	return id, nil
}

// DescribeStatement reports the statement's status. Terminal statements are
// forgotten once described.
func (w *Warehouse) DescribeStatement(_ context.Context, id string) (*warehouse.StatementStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.statements[id]
	if !ok {
		return nil, fmt.Errorf("statement %s not found", id)
	}
	if st.status.Terminal() {
		delete(w.statements, id)
	}
	return &warehouse.StatementStatus{ID: id, Status: st.status, Error: st.err}, nil
}

// CancelStatement cancels the statement's context, which makes pgx send a
// cancel request to the server.
func (w *Warehouse) CancelStatement(_ context.Context, id string) error {
	w.mu.Lock()
	st, ok := w.statements[id]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("statement %s not found", id)
	}
	st.cancel()
	return nil
}
