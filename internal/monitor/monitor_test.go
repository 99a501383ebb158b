package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/store"
	"github.com/nidhogg/overseer/internal/task"
)

type captureSink struct {
	mu     sync.Mutex
	events []*task.Event
}

func (c *captureSink) Publish(_ context.Context, ev *task.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func seedTask(t *testing.T, st *store.Memory, id string, status task.Status, age time.Duration) {
	t.Helper()
	stamp := time.Now().Add(-age)
	err := st.CreateTask(context.Background(), &task.Task{
		ID: id, Name: id, Slug: id,
		Status: status, Owner: task.RoleSeniorDeveloper,
		Priority:  task.PriorityMedium,
		CreatedAt: stamp, UpdatedAt: stamp,
	})
	if err != nil {
		t.Fatalf("seed task %s: %v", id, err)
	}
}

func TestSweepFlagsQuietTasks(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	m := New(st, sink, time.Hour, zap.NewNop())
	ctx := context.Background()

	seedTask(t, st, "quiet", task.StatusInProgress, 2*time.Hour)
	seedTask(t, st, "fresh", task.StatusInProgress, time.Minute)
	seedTask(t, st, "done", task.StatusCompleted, 3*time.Hour)
	seedTask(t, st, "parked", task.StatusPaused, 3*time.Hour)

	n, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("flagged %d tasks, want 1", n)
	}
	ev := sink.events[0]
	if ev.Type != task.EventTaskStale || ev.TaskID != "quiet" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.ToRole != task.RoleSeniorDeveloper {
		t.Errorf("event owner = %q, want the owning role", ev.ToRole)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Error("event not stamped")
	}

	// A second sweep over the same quiet period stays silent.
	n, err = m.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("re-flagged %d tasks in the same quiet period", n)
	}
}

func TestSweepDisabledWithoutThreshold(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	m := New(st, sink, 0, zap.NewNop())

	seedTask(t, st, "quiet", task.StatusInProgress, 48*time.Hour)

	n, err := m.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 || sink.count() != 0 {
		t.Errorf("disabled monitor still flagged %d tasks", n)
	}
}

func TestRunSweepsOnInterval(t *testing.T) {
	st := store.NewMemory()
	sink := &captureSink{}
	m := New(st, sink, time.Hour, zap.NewNop())

	seedTask(t, st, "quiet", task.StatusNeedsChanges, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("run loop never swept")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
