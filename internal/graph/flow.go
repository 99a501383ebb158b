// Package graph mirrors role handoffs into Neo4j. The graph is an
// analytics view over the workflow; the relational store stays the
// source of truth.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Handoff is one recorded role transition on a task.
type Handoff struct {
	From   task.Role `json:"from"`
	To     task.Role `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Flow records handoffs between role nodes.
type Flow struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates a flow graph backed by Neo4j.
func New(uri, user, password string, logger *zap.Logger) (*Flow, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Flow{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (f *Flow) Ping(ctx context.Context) error {
	return f.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (f *Flow) Close(ctx context.Context) error {
	return f.driver.Close(ctx)
}

// RecordHandoff writes one handoff edge between two role nodes and
// keeps the task node pointed at its current owner.
func (f *Flow) RecordHandoff(ctx context.Context, taskID string, from, to task.Role, reason string) error {
	session := f.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Role {id: $from})
		 MERGE (b:Role {id: $to})
		 MERGE (t:Task {id: $taskId})
		 SET t.last_role = $to, t.updated_at = datetime()
		 CREATE (a)-[:HANDS_OFF {task_id: $taskId, reason: $reason, at_ms: timestamp()}]->(b)`,
		map[string]interface{}{
			"from":   string(from),
			"to":     string(to),
			"taskId": taskID,
			"reason": reason,
		})
	if err != nil {
		return fmt.Errorf("record handoff: %w", err)
	}
	return nil
}

// TaskFlow returns the handoff sequence for one task in order.
func (f *Flow) TaskFlow(ctx context.Context, taskID string) ([]*Handoff, error) {
	session := f.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Role)-[h:HANDS_OFF {task_id: $taskId}]->(b:Role)
		 RETURN a.id, b.id, h.reason, h.at_ms
		 ORDER BY h.at_ms`,
		map[string]interface{}{"taskId": taskID})
	if err != nil {
		return nil, fmt.Errorf("task flow: %w", err)
	}

	var handoffs []*Handoff
	for result.Next(ctx) {
		rec := result.Record()
		from, _ := rec.Get("a.id")
		to, _ := rec.Get("b.id")
		reason, _ := rec.Get("h.reason")
		atMs, _ := rec.Get("h.at_ms")

		handoffs = append(handoffs, &Handoff{
			From:   task.Role(from.(string)),
			To:     task.Role(to.(string)),
			Reason: reason.(string),
			At:     time.UnixMilli(atMs.(int64)).UTC(),
		})
	}
	return handoffs, nil
}

// RoleLoad returns how many handoffs each role has received.
func (f *Flow) RoleLoad(ctx context.Context) (map[task.Role]int, error) {
	session := f.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (:Role)-[h:HANDS_OFF]->(b:Role)
		 RETURN b.id, count(h) AS received`,
		map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("role load: %w", err)
	}

	load := make(map[task.Role]int)
	for result.Next(ctx) {
		rec := result.Record()
		role, _ := rec.Get("b.id")
		received, _ := rec.Get("received")
		load[task.Role(role.(string))] = int(received.(int64))
	}
	return load, nil
}
