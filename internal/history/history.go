// Package history keeps finished runs so they can be inspected later
// through the HTTP API.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callrunner/callrunner/internal/runner"
)

// ErrNotFound is returned by Get for unknown or expired runs.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit bounds List when the caller passes limit <= 0.
const DefaultListLimit = 50

// Summary is the compact form of a run used in listings.
type Summary struct {
	RunID      string    `json:"run_id" bson:"run_id"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`
	Bucket     string    `json:"bucket" bson:"bucket"`
	Key        string    `json:"key" bson:"key"`
	Total      int       `json:"total_procedures" bson:"total_procedures"`
	Successful int       `json:"successful_procedures" bson:"successful_procedures"`
	StatusCode int       `json:"status_code" bson:"status_code"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
}

// Summarize builds the listing entry for r.
func Summarize(r *runner.Result) Summary {
	return Summary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Bucket:     r.Bucket,
		Key:        r.Key,
		Total:      len(r.Results),
		Successful: r.Successful(),
		StatusCode: r.StatusCode(),
		Error:      r.Error,
	}
}

// Store persists runs. It satisfies runner.Recorder.
type Store interface {
	Record(ctx context.Context, r *runner.Result) error
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Summary, error)
	Get(ctx context.Context, runID string) (*runner.Result, error)
	Close(ctx context.Context) error
}

// Backend names.
const (
	BackendNone    = "none"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendMongoDB = "mongodb"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string
	TTL           time.Duration
	MemoryLimit   int
}

// Open connects the configured backend. BackendNone yields a nil Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(cfg.MemoryLimit), nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMongoDB:
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
