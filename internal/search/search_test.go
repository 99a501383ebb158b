package search

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/vectorstore"
)

type fakeEmbedder struct {
	dim   int
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeStore struct {
	collections map[string]uint64
	upserts     map[string][]*vectorstore.Point
	results     []*vectorstore.SearchResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]uint64),
		upserts:     make(map[string][]*vectorstore.Point),
	}
}

func (f *fakeStore) EnsureCollection(_ context.Context, name string, dimension uint64) error {
	f.collections[name] = dimension
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, collection string, points []*vectorstore.Point) error {
	f.upserts[collection] = append(f.upserts[collection], points...)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, _ uint64) ([]*vectorstore.SearchResult, error) {
	return f.results, nil
}

func sampleSteps() []*task.WorkflowStep {
	return []*task.WorkflowStep{
		{
			ID: "architect-plan", RoleID: task.RoleArchitect,
			Name: "plan", DisplayName: "Write the Plan", Sequence: 2,
			Description: "Write the implementation plan the developer will execute.",
			Approach: &task.ApproachGuidance{
				StepByStep: []string{"Outline the phases and their order"},
			},
		},
		{
			ID: "review-verify", RoleID: task.RoleCodeReview,
			Name: "verify", DisplayName: "Verify Against Criteria", Sequence: 2,
			Checklist: []string{"Every acceptance criterion is verified, not assumed"},
		},
	}
}

func TestInitSizesCollectionToEmbedder(t *testing.T) {
	st := newFakeStore()
	ix := New(&fakeEmbedder{dim: 7}, st, "", zap.NewNop())

	if err := ix.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if st.collections[DefaultCollection] != 7 {
		t.Errorf("collection dimension = %d, want 7", st.collections[DefaultCollection])
	}

	// Unknown dimension falls back to a usable default.
	st2 := newFakeStore()
	ix2 := New(&fakeEmbedder{dim: 0}, st2, "custom", zap.NewNop())
	if err := ix2.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if st2.collections["custom"] != 1024 {
		t.Errorf("fallback dimension = %d, want 1024", st2.collections["custom"])
	}
}

func TestIndexStepsWritesCatalog(t *testing.T) {
	st := newFakeStore()
	ix := New(&fakeEmbedder{dim: 2}, st, "", zap.NewNop())

	n, err := ix.IndexSteps(context.Background(), sampleSteps())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if n != 2 {
		t.Fatalf("indexed %d steps, want 2", n)
	}

	points := st.upserts[DefaultCollection]
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	first := points[0]
	if first.Payload["step_id"] != "architect-plan" {
		t.Errorf("step_id payload = %q", first.Payload["step_id"])
	}
	if first.Payload["role"] != string(task.RoleArchitect) {
		t.Errorf("role payload = %q", first.Payload["role"])
	}
	if !strings.Contains(first.Payload["content"], "Outline the phases") {
		t.Errorf("content payload missing guidance text: %q", first.Payload["content"])
	}
}

func TestReindexKeepsStablePointIDs(t *testing.T) {
	st := newFakeStore()
	ix := New(&fakeEmbedder{dim: 2}, st, "", zap.NewNop())

	ctx := context.Background()
	if _, err := ix.IndexSteps(ctx, sampleSteps()); err != nil {
		t.Fatalf("first index: %v", err)
	}
	if _, err := ix.IndexSteps(ctx, sampleSteps()); err != nil {
		t.Fatalf("second index: %v", err)
	}

	points := st.upserts[DefaultCollection]
	if len(points) != 4 {
		t.Fatalf("got %d upserted points, want 4", len(points))
	}
	if points[0].ID != points[2].ID {
		t.Errorf("point ID changed across reindex: %q vs %q", points[0].ID, points[2].ID)
	}
	if points[0].ID == points[1].ID {
		t.Error("distinct steps share a point ID")
	}
}

func TestQueryMapsHits(t *testing.T) {
	st := newFakeStore()
	st.results = []*vectorstore.SearchResult{
		{
			ID:    "b2c3",
			Score: 0.91,
			Payload: map[string]string{
				"step_id": "developer-pick",
				"role":    string(task.RoleSeniorDeveloper),
				"name":    "Pick Up the Next Subtask",
				"content": "Ask the subtask service which unit is ready",
			},
		},
	}
	ix := New(&fakeEmbedder{dim: 2}, st, "", zap.NewNop())

	hits, err := ix.Query(context.Background(), "what should I work on next", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	h := hits[0]
	if h.StepID != "developer-pick" || h.Role != task.RoleSeniorDeveloper {
		t.Errorf("hit mapping wrong: %+v", h)
	}
	if h.Score != 0.91 {
		t.Errorf("score = %v, want 0.91", h.Score)
	}
}

func TestRenderStepFlattensGuidance(t *testing.T) {
	text := renderStep(sampleSteps()[1])
	if !strings.Contains(text, "Verify Against Criteria") {
		t.Errorf("missing display name: %q", text)
	}
	if !strings.Contains(text, "acceptance criterion is verified") {
		t.Errorf("missing checklist entry: %q", text)
	}
}
