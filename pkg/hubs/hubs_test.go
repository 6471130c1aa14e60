package hubs

import (
	"context"
	"fmt"
	"testing"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store/memory"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()

	nodes := []graph.Node{
		{ID: "hub", Type: graph.NodeEntity, Attrs: map[string]any{"name": "Hub Corp", "pagerank_score": 0.9}},
		{ID: "mid", Type: graph.NodeEntity, Attrs: map[string]any{"name": "Mid Corp", "pagerank_score": 0.5}},
		{ID: "tie", Type: graph.NodeEntity, Attrs: map[string]any{"name": "Tie Corp", "pagerank_score": 0.5}},
		{ID: "officer", Type: graph.NodeOfficer, Attrs: map[string]any{"name": "Busy Officer"}},
		{ID: "isolated", Type: graph.NodeEntity, Attrs: map[string]any{"name": "Island Ltd"}},
	}
	if err := s.UpsertNodes(ctx, nodes); err != nil {
		t.Fatal(err)
	}

	edges := []graph.Edge{
		{ID: "e1", SourceID: "hub", TargetID: "mid", Type: graph.RelOwns},
		{ID: "e2", SourceID: "hub", TargetID: "tie", Type: graph.RelOwns},
		{ID: "e3", SourceID: "officer", TargetID: "hub", Type: graph.RelControls},
		{ID: "e4", SourceID: "mid", TargetID: "tie", Type: graph.RelOwns},
	}
	if err := s.UpsertEdges(ctx, edges); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTopByDegree(t *testing.T) {
	r := NewRanker(seedStore(t))

	got, err := r.TopByDegree(context.Background(), graph.NodeEntity, nil, 10)
	if err != nil {
		t.Fatal(err)
	}

	// hub has degree 3, mid and tie have 2 each, isolated is excluded.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Node.ID != "hub" || got[0].Score != 3 {
		t.Errorf("first = %s (%v), want hub (3)", got[0].Node.ID, got[0].Score)
	}
	// Equal degrees break ties by node id ascending.
	if got[1].Node.ID != "mid" || got[2].Node.ID != "tie" {
		t.Errorf("tie order = %s, %s; want mid, tie", got[1].Node.ID, got[2].Node.ID)
	}
	for i, rn := range got {
		if rn.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, rn.Rank)
		}
	}
	if got[0].Degree.In != 1 || got[0].Degree.Out != 2 {
		t.Errorf("hub degree in/out = %d/%d, want 1/2", got[0].Degree.In, got[0].Degree.Out)
	}
}

func TestTopByDegreeFiltersRelType(t *testing.T) {
	r := NewRanker(seedStore(t))

	got, err := r.TopByDegree(context.Background(), graph.NodeEntity, []graph.RelType{graph.RelControls}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Node.ID != "hub" {
		t.Fatalf("CONTROLS degree should rank only hub, got %v", got)
	}
	if got[0].Degree.ByRel[graph.RelControls] != 1 {
		t.Errorf("by_relationship[CONTROLS] = %d, want 1", got[0].Degree.ByRel[graph.RelControls])
	}
}

func TestTopByDegreeLimit(t *testing.T) {
	r := NewRanker(seedStore(t))

	got, err := r.TopByDegree(context.Background(), graph.NodeEntity, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Node.ID != "hub" {
		t.Fatalf("limit 1 should keep only hub, got %v", got)
	}
}

func TestTopByAttribute(t *testing.T) {
	r := NewRanker(seedStore(t))

	got, err := r.TopByAttribute(context.Background(), graph.NodeEntity, "pagerank_score", 10)
	if err != nil {
		t.Fatal(err)
	}
	// isolated has no pagerank_score and is excluded.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Node.ID != "hub" {
		t.Errorf("first = %s, want hub", got[0].Node.ID)
	}
	if got[1].Node.ID != "mid" || got[2].Node.ID != "tie" {
		t.Errorf("equal scores break ties by id, got %s then %s", got[1].Node.ID, got[2].Node.ID)
	}
	if got[0].Degree != nil {
		t.Error("attribute rankings carry no degree breakdown")
	}
}

func TestTopByDegreeDeterministic(t *testing.T) {
	r := NewRanker(seedStore(t))
	ctx := context.Background()

	first, err := r.TopByDegree(ctx, graph.NodeEntity, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.TopByDegree(ctx, graph.NodeEntity, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Error("ranking is not deterministic across runs")
	}
}
