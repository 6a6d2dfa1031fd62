package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callrunner/callrunner/internal/runner"
)

const (
	redisKeyPrefix = "callrunner:run:"
	redisIndexKey  = "callrunner:runs"
)

// RedisStore keeps runs as JSON values with a sorted-set index by start time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to addr and pings it.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func runKey(runID string) string {
	return redisKeyPrefix + runID
}

func (s *RedisStore) Record(ctx context.Context, r *runner.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", r.RunID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKey(r.RunID), data, s.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(r.StartedAt.UnixMilli()), Member: r.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}
	return nil
}

// List walks the index newest first. Index entries whose value has expired
// are removed as they are found.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	limit = listLimit(limit)
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading run index: %w", err)
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.ZRem(ctx, redisIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(r))
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, runID string) (*runner.Result, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}

	var r runner.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", runID, err)
	}
	return &r, nil
}

func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
