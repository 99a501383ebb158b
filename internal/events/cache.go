package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nidhogg/overseer/internal/task"
)

const executionKeyPrefix = "overseer:execution:"

// ExecutionCache keeps recently served execution cursors in Redis with
// TTL expiry. A miss is not an error; callers fall through to the
// store.
type ExecutionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// ExecutionCache builds a cache sharing this stream's connection.
func (s *Stream) ExecutionCache(ttl time.Duration) *ExecutionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ExecutionCache{rdb: s.rdb, ttl: ttl}
}

func executionKey(taskID string) string {
	return executionKeyPrefix + taskID
}

// Put stores the execution under its task ID.
func (c *ExecutionCache) Put(ctx context.Context, exec *task.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution: %w", err)
	}
	if err := c.rdb.Set(ctx, executionKey(exec.TaskID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching execution: %w", err)
	}
	return nil
}

// Get returns the cached execution for a task. Returns nil, nil on a
// miss.
func (c *ExecutionCache) Get(ctx context.Context, taskID string) (*task.Execution, error) {
	data, err := c.rdb.Get(ctx, executionKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached execution: %w", err)
	}

	var exec task.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshaling execution: %w", err)
	}
	return &exec, nil
}

// Invalidate drops the cached execution after a transition.
func (c *ExecutionCache) Invalidate(ctx context.Context, taskID string) error {
	if err := c.rdb.Del(ctx, executionKey(taskID)).Err(); err != nil {
		return fmt.Errorf("invalidating execution: %w", err)
	}
	return nil
}
