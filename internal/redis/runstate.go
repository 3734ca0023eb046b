package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/db"
)

// RunStateKey holds the JSON-encoded day of the last reminder sweep.
const RunStateKey = "shelflife:run_state"

// RunStateStore keeps the reminder run state in Redis. The key carries no
// TTL; it is overwritten once per day.
type RunStateStore struct {
	client *Client
	key    string
	logger *zap.Logger
}

func NewRunStateStore(client *Client, logger *zap.Logger) *RunStateStore {
	return &RunStateStore{client: client, key: RunStateKey, logger: logger}
}

// GetRunState returns (nil, nil) if no sweep was ever recorded.
func (s *RunStateStore) GetRunState(ctx context.Context) (*db.RunState, error) {
	val, err := s.client.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var state db.RunState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		s.logger.Error("failed to unmarshal run state", zap.String("key", s.key), zap.Error(err))
		return nil, fmt.Errorf("invalid run state: %w", err)
	}
	return &state, nil
}

func (s *RunStateStore) SetRunState(ctx context.Context, state db.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := s.client.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
