// Package notify pushes workflow events to chat platforms. Delivery is
// best-effort: a failed send is logged and never blocks the workflow.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Notifier delivers one workflow event to a single platform.
type Notifier interface {
	Platform() string
	Notify(ctx context.Context, ev *task.Event) error
	Close() error
}

// Record tracks a delivered notification for history.
type Record struct {
	Event   *task.Event `json:"event"`
	SentAt  time.Time   `json:"sent_at"`
	Targets []string    `json:"targets"`
}

// Broadcaster fans workflow events out to every registered platform.
type Broadcaster struct {
	notifiers map[string]Notifier
	history   []Record
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		notifiers: make(map[string]Notifier),
		logger:    logger,
	}
}

// Register adds a platform notifier.
func (b *Broadcaster) Register(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifiers[n.Platform()] = n
	b.logger.Info("registered notifier", zap.String("platform", n.Platform()))
}

// Platforms returns the registered platform names.
func (b *Broadcaster) Platforms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.notifiers))
	for p := range b.notifiers {
		names = append(names, p)
	}
	return names
}

// Notify sends one event to every platform. Individual failures are
// logged and do not stop the fanout.
func (b *Broadcaster) Notify(ctx context.Context, ev *task.Event) {
	b.mu.RLock()
	targets := make([]Notifier, 0, len(b.notifiers))
	for _, n := range b.notifiers {
		targets = append(targets, n)
	}
	b.mu.RUnlock()

	var sent []string
	for _, n := range targets {
		if err := n.Notify(ctx, ev); err != nil {
			b.logger.Warn("notification failed",
				zap.String("platform", n.Platform()),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
			continue
		}
		sent = append(sent, n.Platform())
	}

	if len(sent) == 0 {
		return
	}
	b.mu.Lock()
	b.history = append(b.history, Record{Event: ev, SentAt: time.Now(), Targets: sent})
	b.mu.Unlock()
}

// Watch consumes events until the channel closes or the context ends.
func (b *Broadcaster) Watch(ctx context.Context, events <-chan *task.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.Notify(ctx, ev)
		}
	}
}

// History returns the most recent delivery records.
func (b *Broadcaster) History(limit int) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	out := make([]Record, limit)
	copy(out, b.history[start:])
	return out
}

// Close shuts down all notifiers.
func (b *Broadcaster) Close() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for platform, n := range b.notifiers {
		if err := n.Close(); err != nil {
			b.logger.Error("notifier close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// headline renders an event as a one-line, platform-neutral summary.
// Platform notifiers add their own markup around it.
func headline(ev *task.Event) string {
	name := ev.TaskName
	if name == "" {
		name = ev.TaskID
	}
	switch ev.Type {
	case task.EventTaskCreated:
		return fmt.Sprintf("New task %q accepted by the coordinator", name)
	case task.EventTaskDelegated:
		return fmt.Sprintf("Task %q handed from %s to %s", name, ev.FromRole, ev.ToRole)
	case task.EventRoleTransition:
		return fmt.Sprintf("Task %q moved from %s to %s", name, ev.FromRole, ev.ToRole)
	case task.EventTaskEscalated:
		return fmt.Sprintf("Task %q escalated from %s to %s", name, ev.FromRole, ev.ToRole)
	case task.EventTaskCompleted:
		return fmt.Sprintf("Task %q completed", name)
	case task.EventBatchCompleted:
		return fmt.Sprintf("Subtask batch finished on task %q", name)
	case task.EventTaskStale:
		return fmt.Sprintf("Task %q has gone quiet", name)
	default:
		return fmt.Sprintf("%s on task %q", ev.Type, name)
	}
}
