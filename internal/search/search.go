// Package search maintains a semantic index over the step catalog.
// Agents query it in natural language to find which step of which role
// covers a piece of work.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/embedding"
	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/vectorstore"
)

// DefaultCollection is the Qdrant collection holding step vectors.
const DefaultCollection = "guidance_steps"

// VectorStore is the slice of the Qdrant client the index uses.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, points []*vectorstore.Point) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*vectorstore.SearchResult, error)
}

// Hit is one search result pointing back into the catalog.
type Hit struct {
	StepID  string    `json:"stepId"`
	Role    task.Role `json:"role"`
	Name    string    `json:"name"`
	Content string    `json:"content"`
	Score   float32   `json:"score"`
}

// Index embeds catalog steps and serves similarity queries over them.
type Index struct {
	embedder embedding.Provider
	store    VectorStore
	coll     string
	logger   *zap.Logger
}

// New creates a guidance search index.
func New(embedder embedding.Provider, store VectorStore, collection string, logger *zap.Logger) *Index {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Index{embedder: embedder, store: store, coll: collection, logger: logger}
}

// Init ensures the collection exists, sized to the embedder.
func (ix *Index) Init(ctx context.Context) error {
	dim := uint64(ix.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	if err := ix.store.EnsureCollection(ctx, ix.coll, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", ix.coll, err)
	}
	return nil
}

// IndexSteps embeds the steps and writes them to the collection in one
// batch. Point IDs are derived from step IDs, so reindexing the same
// catalog overwrites points instead of duplicating them.
func (ix *Index) IndexSteps(ctx context.Context, steps []*task.WorkflowStep) (int, error) {
	if len(steps) == 0 {
		return 0, nil
	}

	texts := make([]string, len(steps))
	for i, s := range steps {
		texts[i] = renderStep(s)
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed steps: %w", err)
	}
	if len(vectors) != len(steps) {
		return 0, fmt.Errorf("got %d vectors for %d steps", len(vectors), len(steps))
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]*vectorstore.Point, len(steps))
	for i, s := range steps {
		points[i] = &vectorstore.Point{
			ID:     pointID(s.ID),
			Vector: vectors[i],
			Payload: map[string]string{
				"step_id":    s.ID,
				"role":       string(s.RoleID),
				"name":       s.DisplayName,
				"content":    texts[i],
				"indexed_at": indexedAt,
			},
		}
	}

	if err := ix.store.Upsert(ctx, ix.coll, points); err != nil {
		return 0, err
	}
	ix.logger.Info("indexed catalog steps",
		zap.Int("count", len(points)), zap.String("collection", ix.coll))
	return len(points), nil
}

// Query embeds the query and returns the closest steps.
func (ix *Index) Query(ctx context.Context, query string, topK int) ([]*Hit, error) {
	if topK <= 0 {
		topK = 5
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	results, err := ix.store.Search(ctx, ix.coll, vectors[0], uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ix.coll, err)
	}

	hits := make([]*Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &Hit{
			StepID:  r.Payload["step_id"],
			Role:    task.Role(r.Payload["role"]),
			Name:    r.Payload["name"],
			Content: r.Payload["content"],
			Score:   r.Score,
		})
	}
	return hits, nil
}

// pointID maps a step ID onto a stable UUID. Qdrant point IDs must be
// UUIDs, and catalog IDs are human-readable slugs.
func pointID(stepID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(stepID)).String()
}

// renderStep flattens a step into the text that gets embedded.
func renderStep(s *task.WorkflowStep) string {
	var b strings.Builder
	b.WriteString(s.DisplayName)
	if s.Description != "" {
		b.WriteString("\n")
		b.WriteString(s.Description)
	}
	if s.Behavioral != nil && s.Behavioral.Approach != "" {
		b.WriteString("\n")
		b.WriteString(s.Behavioral.Approach)
	}
	if s.Approach != nil {
		for _, line := range s.Approach.StepByStep {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	for _, item := range s.Checklist {
		b.WriteString("\n")
		b.WriteString(item)
	}
	return b.String()
}
