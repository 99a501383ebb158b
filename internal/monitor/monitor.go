// Package monitor watches for tasks that have stopped moving and
// raises stale events so someone picks them back up.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Publisher receives the stale events the monitor raises.
type Publisher interface {
	Publish(ctx context.Context, ev *task.Event) error
}

// Monitor periodically sweeps the store for quiet tasks.
type Monitor struct {
	store      task.Store
	sink       Publisher
	staleAfter time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	flagged map[string]time.Time // task ID -> UpdatedAt at flag time
}

// New creates a monitor. staleAfter is how long an active task may sit
// untouched before it is flagged.
func New(store task.Store, sink Publisher, staleAfter time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		store:      store,
		sink:       sink,
		staleAfter: staleAfter,
		logger:     logger,
		flagged:    make(map[string]time.Time),
	}
}

// Run sweeps on the given interval until the context ends.
func (m *Monitor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Warn("stale sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("flagged stale tasks", zap.Int("count", n))
			}
		}
	}
}

// Sweep flags every active task whose last update is older than the
// stale threshold. A task is flagged once per quiet period: new
// activity rearms it.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	if m.staleAfter <= 0 {
		return 0, nil
	}

	tasks, err := m.store.ListTasks(ctx, task.TaskFilter{})
	if err != nil {
		return 0, fmt.Errorf("listing tasks: %w", err)
	}

	cutoff := time.Now().Add(-m.staleAfter)
	flagged := 0
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			m.mu.Lock()
			delete(m.flagged, t.ID)
			m.mu.Unlock()
			continue
		}
		if !active(t.Status) || t.UpdatedAt.After(cutoff) {
			continue
		}

		m.mu.Lock()
		seen, done := m.flagged[t.ID], false
		if seen.Equal(t.UpdatedAt) {
			done = true
		} else {
			m.flagged[t.ID] = t.UpdatedAt
		}
		m.mu.Unlock()
		if done {
			continue
		}

		idle := time.Since(t.UpdatedAt).Round(time.Minute)
		ev := &task.Event{
			ID:        uuid.NewString(),
			Type:      task.EventTaskStale,
			TaskID:    t.ID,
			TaskName:  t.Name,
			ToRole:    t.Owner,
			Message:   fmt.Sprintf("no activity for %s while owned by %s", idle, t.Owner),
			Detail:    map[string]any{"owner": string(t.Owner), "idle_minutes": int(idle.Minutes())},
			Timestamp: time.Now().UTC(),
		}
		if err := m.sink.Publish(ctx, ev); err != nil {
			m.logger.Warn("stale event publish failed",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		flagged++
	}
	return flagged, nil
}

// active reports whether a status counts as work in flight.
func active(s task.Status) bool {
	switch s {
	case task.StatusInProgress, task.StatusNeedsReview, task.StatusNeedsChanges:
		return true
	}
	return false
}
