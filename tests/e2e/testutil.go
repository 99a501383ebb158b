package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/events"
	"github.com/nidhogg/overseer/internal/graph"
	"github.com/nidhogg/overseer/internal/store"
	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/workflow"
)

// Suppress unused import warning for testcontainers base package.
var _ = testcontainers.GenericContainerRequest{}

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testStore    *store.Store
	testRedisURL string
	testNeo4jURI string
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("overseer_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// newStream connects an event stream to the test Redis.
func newStream(t *testing.T) *events.Stream {
	t.Helper()
	stream, err := events.New(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("connect stream: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

// newFlow connects a flow graph to the test Neo4j.
func newFlow(t *testing.T) *graph.Flow {
	t.Helper()
	flow, err := graph.New(testNeo4jURI, "", "", testLogger)
	if err != nil {
		t.Fatalf("connect flow graph: %v", err)
	}
	if err := flow.Ping(context.Background()); err != nil {
		t.Fatalf("ping neo4j: %v", err)
	}
	t.Cleanup(func() { flow.Close(context.Background()) })
	return flow
}

// newEngine builds a workflow engine on the shared Postgres store.
// sink and flow may be nil when the test does not observe them.
func newEngine(sink workflow.EventSink, flow workflow.FlowRecorder) *workflow.Engine {
	return workflow.New(testStore, sink, flow, workflow.PolicyCoordinatorReset, testLogger)
}

// bootstrapTask creates a task and returns the bootstrap body.
func bootstrapTask(t *testing.T, ctx context.Context, engine *workflow.Engine, name string) *workflow.BootstrapBody {
	t.Helper()
	env, err := engine.Bootstrap(ctx, workflow.BootstrapRequest{
		Name:        name,
		Description: "end to end exercise: " + name,
		Priority:    task.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("bootstrap %q: %v", name, err)
	}
	body, ok := env.Envelope.(*workflow.BootstrapBody)
	if !ok {
		t.Fatalf("bootstrap envelope = %T, want *BootstrapBody", env.Envelope)
	}
	return body
}

// transitionOf unwraps a transition envelope.
func transitionOf(t *testing.T, env *workflow.Envelope, err error) *workflow.TransitionBody {
	t.Helper()
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	body, ok := env.Envelope.(*workflow.TransitionBody)
	if !ok {
		t.Fatalf("envelope = %T, want *TransitionBody", env.Envelope)
	}
	return body
}

// executeOp runs one service operation and unwraps the execution body.
func executeOp(t *testing.T, ctx context.Context, engine *workflow.Engine, r workflow.ExecuteRequest) *workflow.ExecutionBody {
	t.Helper()
	env, err := engine.Execute(ctx, r)
	if err != nil {
		t.Fatalf("execute %s.%s: %v", r.Service, r.Operation, err)
	}
	body, ok := env.Envelope.(*workflow.ExecutionBody)
	if !ok {
		t.Fatalf("execute %s.%s envelope = %T, want *ExecutionBody", r.Service, r.Operation, env.Envelope)
	}
	return body
}

// resultMap asserts an execution result is the map shape planning and
// subtask operations return.
func resultMap(t *testing.T, body *workflow.ExecutionBody) map[string]any {
	t.Helper()
	m, ok := body.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map[string]any", body.Result)
	}
	return m
}

// collectEvents drains the subscription until total events arrived or
// the deadline passed, returning counts per event type.
func collectEvents(ch <-chan *task.Event, total int, deadline time.Duration) map[task.EventType]int {
	counts := make(map[task.EventType]int)
	seen := 0
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for seen < total {
		select {
		case ev, ok := <-ch:
			if !ok {
				return counts
			}
			counts[ev.Type]++
			seen++
		case <-timer.C:
			return counts
		}
	}
	return counts
}
