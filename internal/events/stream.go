// Package events publishes workflow events over Redis Streams and
// caches hot execution state with TTL expiry.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

const streamKey = "overseer:workflow:events"

// Stream is the Redis-backed workflow event bus.
type Stream struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and returns the event stream.
func New(redisURL string, logger *zap.Logger) (*Stream, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Stream{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to the workflow stream.
func (s *Stream) Publish(ctx context.Context, ev *task.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("publish to %s: %w", streamKey, err)
	}

	s.logger.Debug("published event",
		zap.String("type", string(ev.Type)),
		zap.String("task_id", ev.TaskID))
	return nil
}

// Subscribe listens for workflow events published after the call.
// Returns a channel that emits events. Cancel the context to stop.
func (s *Stream) Subscribe(ctx context.Context) <-chan *task.Event {
	ch := make(chan *task.Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := s.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{streamKey, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev task.Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (s *Stream) Close() error {
	return s.rdb.Close()
}
