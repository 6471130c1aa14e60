package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/riskflag"
	"github.com/offshore-atlas/backend/pkg/store"
	"github.com/offshore-atlas/backend/pkg/store/memory"
)

func newEngine(t *testing.T, nodes []graph.Node, edges []graph.Edge) *Engine {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()
	if err := s.UpsertNodes(ctx, nodes); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEdges(ctx, edges); err != nil {
		t.Fatal(err)
	}
	return NewEngine(s, riskflag.DefaultConfig())
}

func entity(id string, attrs map[string]any) graph.Node {
	return graph.Node{ID: id, Type: graph.NodeEntity, Attrs: attrs}
}

func owns(id, from, to string, pct float64) graph.Edge {
	return graph.Edge{
		ID: id, SourceID: from, TargetID: to, Type: graph.RelOwns,
		Props: map[string]any{"ownership_percentage": pct},
	}
}

func TestTracePathsCompoundsOwnership(t *testing.T) {
	// holding owns mid at 50%, mid owns target at 50%; holding also owns
	// target directly at 10%.
	e := newEngine(t,
		[]graph.Node{
			entity("holding", map[string]any{"name": "Holding SA"}),
			entity("mid", map[string]any{"name": "Mid BV"}),
			entity("target", map[string]any{"name": "Target Ltd"}),
		},
		[]graph.Edge{
			owns("e1", "holding", "mid", 50),
			owns("e2", "mid", "target", 50),
			owns("e3", "holding", "target", 10),
		},
	)

	trace, err := e.TracePaths(context.Background(), "target", TraceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if trace.Target.ID != "target" {
		t.Errorf("target = %s", trace.Target.ID)
	}
	if len(trace.Results) != 3 {
		t.Fatalf("got %d ownership paths, want 3", len(trace.Results))
	}

	// mid->target (50) ranks first, then holding->mid->target (25),
	// then holding->target (10).
	r0 := trace.Results[0]
	if r0.Owner.ID != "mid" || r0.EffectiveOwnership != 50.0 {
		t.Errorf("first = %s at %v, want mid at 50", r0.Owner.ID, r0.EffectiveOwnership)
	}
	r1 := trace.Results[1]
	if r1.Owner.ID != "holding" || r1.EffectiveOwnership != 25.0 || r1.Depth != 2 {
		t.Errorf("second = %s at %v depth %d, want holding at 25 depth 2", r1.Owner.ID, r1.EffectiveOwnership, r1.Depth)
	}
	r2 := trace.Results[2]
	if r2.EffectiveOwnership != 10.0 || r2.Depth != 1 {
		t.Errorf("third = %v depth %d, want 10 depth 1", r2.EffectiveOwnership, r2.Depth)
	}
	for _, r := range trace.Results {
		if r.Target.ID != "target" {
			t.Errorf("owner %s: target = %s, want target", r.Owner.ID, r.Target.ID)
		}
	}
}

func TestTracePathsMissingPercentage(t *testing.T) {
	e := newEngine(t,
		[]graph.Node{entity("owner", nil), entity("target", nil)},
		[]graph.Edge{{ID: "e1", SourceID: "owner", TargetID: "target", Type: graph.RelOwns}},
	)

	trace, err := e.TracePaths(context.Background(), "target", TraceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(trace.Results) != 1 {
		t.Fatalf("got %d results", len(trace.Results))
	}
	if trace.Results[0].EffectiveOwnership != 100.0 {
		t.Errorf("missing percentage = %v, want 100", trace.Results[0].EffectiveOwnership)
	}
	if trace.Results[0].PercentageChain[0] != nil {
		t.Error("chain entry for a missing percentage must be nil")
	}
}

func TestTracePathsUnknownEntity(t *testing.T) {
	e := newEngine(t, []graph.Node{entity("a", nil)}, nil)

	_, err := e.TracePaths(context.Background(), "nope", TraceOptions{})
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestClassifyRiskCircularOwnership(t *testing.T) {
	// A -> B -> C -> A, each OWNS the next.
	e := newEngine(t,
		[]graph.Node{entity("A", nil), entity("B", nil), entity("C", nil)},
		[]graph.Edge{
			owns("e1", "A", "B", 100),
			owns("e2", "B", "C", 100),
			owns("e3", "C", "A", 100),
		},
	)

	a, err := e.ClassifyRisk(context.Background(), "A")
	if err != nil {
		t.Fatal(err)
	}
	var circular *riskflag.Flag
	for i := range a.Flags {
		if a.Flags[i].Type == riskflag.FlagCircularOwnership {
			circular = &a.Flags[i]
		}
	}
	if circular == nil {
		t.Fatalf("no CIRCULAR_OWNERSHIP flag in %v", a.Flags)
	}
	if circular.Evidence["cycle_length"] != 3 {
		t.Errorf("cycle_length = %v, want 3", circular.Evidence["cycle_length"])
	}
	if circular.Severity != riskflag.SeverityMedium {
		t.Errorf("severity = %s, want MEDIUM", circular.Severity)
	}
}

func TestClassifyRiskDeepLayering(t *testing.T) {
	// Five-hop upstream chain into the assessed entity.
	nodes := []graph.Node{entity("target", nil)}
	var edges []graph.Edge
	prev := "target"
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("up%d", i)
		nodes = append(nodes, entity(id, nil))
		edges = append(edges, owns(fmt.Sprintf("e%d", i), id, prev, 100))
		prev = id
	}
	e := newEngine(t, nodes, edges)

	a, err := e.ClassifyRisk(context.Background(), "target")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range a.Flags {
		if f.Type == riskflag.FlagDeepLayering {
			found = true
			if f.Severity != riskflag.SeverityHigh {
				t.Errorf("severity = %s, want HIGH for 5 hops", f.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("no DEEP_LAYERING flag in %v", a.Flags)
	}
}

func TestClassifyRiskMassRegistration(t *testing.T) {
	addr := graph.Node{ID: "addr", Type: graph.NodeAddress, Attrs: map[string]any{"name": "24 De Castro St"}}
	nodes := []graph.Node{addr}
	var edges []graph.Edge
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("ent%02d", i)
		nodes = append(nodes, entity(id, nil))
		edges = append(edges, graph.Edge{
			ID: fmt.Sprintf("ha%02d", i), SourceID: id, TargetID: "addr", Type: graph.RelHasAddress,
		})
	}
	e := newEngine(t, nodes, edges)

	a, err := e.ClassifyRisk(context.Background(), "ent00")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range a.Flags {
		if f.Type == riskflag.FlagMassRegistrationAddress {
			found = true
			if f.Severity != riskflag.SeverityMedium {
				t.Errorf("severity = %s, want MEDIUM at exactly the threshold", f.Severity)
			}
			if f.Evidence["entity_count"] != 10 {
				t.Errorf("entity_count = %v, want 10", f.Evidence["entity_count"])
			}
		}
	}
	if !found {
		t.Fatalf("no MASS_REGISTRATION_ADDRESS flag in %v", a.Flags)
	}
}

func TestClassifyRiskPEPConnection(t *testing.T) {
	pep := graph.Node{ID: "pep", Type: graph.NodePerson, Attrs: map[string]any{
		"full_name": "Some Minister",
		"is_pep":    true,
	}}
	e := newEngine(t,
		[]graph.Node{entity("target", nil), entity("mid", nil), pep},
		[]graph.Edge{
			owns("e1", "mid", "target", 100),
			{ID: "e2", SourceID: "pep", TargetID: "mid", Type: graph.RelControls},
		},
	)

	a, err := e.ClassifyRisk(context.Background(), "target")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range a.Flags {
		if f.Type == riskflag.FlagPEPConnection {
			found = true
			if f.Severity != riskflag.SeverityHigh {
				t.Errorf("severity = %s, want HIGH", f.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("no PEP_CONNECTION flag in %v", a.Flags)
	}
}

func TestClassifyRiskBulkFormation(t *testing.T) {
	im := graph.Node{ID: "im", Type: graph.NodeIntermediary, Attrs: map[string]any{"name": "Fast Formations"}}
	nodes := []graph.Node{im}
	var edges []graph.Edge
	// Five entities incorporated in the same ISO week.
	days := []string{"2015-06-01", "2015-06-02", "2015-06-03", "2015-06-04", "2015-06-05"}
	for i, d := range days {
		id := fmt.Sprintf("formed%d", i)
		nodes = append(nodes, entity(id, map[string]any{"incorporation_date": d}))
		edges = append(edges, graph.Edge{
			ID: fmt.Sprintf("cb%d", i), SourceID: id, TargetID: "im", Type: graph.RelCreatedBy,
		})
	}
	e := newEngine(t, nodes, edges)

	a, err := e.ClassifyRisk(context.Background(), "im")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range a.Flags {
		if f.Type == riskflag.FlagBulkFormation {
			found = true
			if f.Evidence["entity_count"] != 5 {
				t.Errorf("entity_count = %v, want 5", f.Evidence["entity_count"])
			}
		}
	}
	if !found {
		t.Fatalf("no BULK_FORMATION flag in %v", a.Flags)
	}
}

func TestClassifyRiskSkipsRulesWithMissingData(t *testing.T) {
	// Entities without dates: the bulk-formation rule skips, it does not
	// fire and it does not error.
	im := graph.Node{ID: "im", Type: graph.NodeIntermediary, Attrs: nil}
	nodes := []graph.Node{im}
	var edges []graph.Edge
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("formed%d", i)
		nodes = append(nodes, entity(id, nil))
		edges = append(edges, graph.Edge{
			ID: fmt.Sprintf("cb%d", i), SourceID: id, TargetID: "im", Type: graph.RelCreatedBy,
		})
	}
	e := newEngine(t, nodes, edges)

	a, err := e.ClassifyRisk(context.Background(), "im")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range a.Flags {
		if f.Type == riskflag.FlagBulkFormation {
			t.Error("bulk-formation fired without incorporation dates")
		}
	}
}

func TestClassifyRiskCleanEntity(t *testing.T) {
	e := newEngine(t,
		[]graph.Node{entity("solo", map[string]any{"name": "Clean Ltd"})},
		nil,
	)

	a, err := e.ClassifyRisk(context.Background(), "solo")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Flags) != 0 {
		t.Errorf("clean entity flagged: %v", a.Flags)
	}
	if a.Score != 0 || a.Level != riskflag.SeverityLow {
		t.Errorf("score/level = %d/%s, want 0/LOW", a.Score, a.Level)
	}
}

func TestNetwork(t *testing.T) {
	e := newEngine(t,
		[]graph.Node{entity("a", nil), entity("b", nil), entity("c", nil), entity("far", nil)},
		[]graph.Edge{
			owns("e1", "a", "b", 100),
			owns("e2", "b", "c", 100),
			owns("e3", "c", "far", 100),
		},
	)

	sg, err := e.Network(context.Background(), "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if sg.Center.ID != "a" {
		t.Errorf("center = %s", sg.Center.ID)
	}
	if len(sg.Nodes) != 3 {
		t.Errorf("got %d nodes, want 3 (a, b, c)", len(sg.Nodes))
	}
	if len(sg.Edges) != 2 {
		t.Errorf("got %d edges, want 2", len(sg.Edges))
	}
}
