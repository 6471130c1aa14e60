package traverse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
	"github.com/offshore-atlas/backend/pkg/store/memory"
)

func buildStore(t *testing.T, edges ...[3]string) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()

	seen := map[string]struct{}{}
	var nodes []graph.Node
	addNode := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		nodes = append(nodes, graph.Node{ID: id, Type: graph.NodeEntity})
	}

	var es []graph.Edge
	for _, e := range edges {
		addNode(e[1])
		addNode(e[2])
		es = append(es, graph.Edge{ID: e[0], SourceID: e[1], TargetID: e[2], Type: graph.RelOwns})
	}
	if err := s.UpsertNodes(ctx, nodes); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEdges(ctx, es); err != nil {
		t.Fatal(err)
	}
	return s
}

func pathIDs(p graph.Path) string {
	out := ""
	for i, n := range p.Nodes {
		if i > 0 {
			out += "-"
		}
		out += n.ID
	}
	return out
}

func TestEnumerateChain(t *testing.T) {
	// a -> b -> c -> d
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "b", "c"},
		[3]string{"e3", "c", "d"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a-b", "a-b-c", "a-b-c-d"}
	if len(res.Paths) != len(want) {
		t.Fatalf("got %d paths, want %d", len(res.Paths), len(want))
	}
	for i, w := range want {
		if pathIDs(res.Paths[i]) != w {
			t.Errorf("paths[%d] = %s, want %s", i, pathIDs(res.Paths[i]), w)
		}
	}
	if res.Truncated {
		t.Error("unexpected truncation")
	}
}

func TestEnumerateRespectsMaxDepth(t *testing.T) {
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "b", "c"},
		[3]string{"e3", "c", "d"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range res.Paths {
		if p.Depth() > 2 {
			t.Errorf("path %s exceeds max depth", pathIDs(p))
		}
	}
	if len(res.Paths) != 2 {
		t.Errorf("got %d paths, want 2", len(res.Paths))
	}
}

func TestEnumerateMaxDepthZero(t *testing.T) {
	s := buildStore(t, [3]string{"e1", "a", "b"})
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 0, MaxDepth: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 || res.Paths[0].Depth() != 0 {
		t.Fatalf("max_depth 0 should yield only the zero-length path, got %d paths", len(res.Paths))
	}
	if res.Paths[0].Start().ID != "a" {
		t.Errorf("zero-length path starts at %s", res.Paths[0].Start().ID)
	}
}

func TestEnumerateIdempotent(t *testing.T) {
	// Diamond: a->b->d, a->c->d.
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "a", "c"},
		[3]string{"e3", "b", "d"},
		[3]string{"e4", "c", "d"},
	)
	e := NewEnumerator(s)
	ctx := context.Background()
	opts := Options{MinDepth: 1, MaxDepth: 3}

	first, err := e.Enumerate(ctx, "a", opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Enumerate(ctx, "a", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Paths) != len(second.Paths) {
		t.Fatalf("path counts differ: %d vs %d", len(first.Paths), len(second.Paths))
	}
	for i := range first.Paths {
		if pathIDs(first.Paths[i]) != pathIDs(second.Paths[i]) {
			t.Errorf("run order differs at %d: %s vs %s", i, pathIDs(first.Paths[i]), pathIDs(second.Paths[i]))
		}
	}
}

func TestEnumerateDiamondKeepsParallelPaths(t *testing.T) {
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "a", "c"},
		[3]string{"e3", "b", "d"},
		[3]string{"e4", "c", "d"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 2, MaxDepth: 2, TargetID: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 2 {
		t.Fatalf("want both parallel paths to d, got %d", len(res.Paths))
	}
}

func TestEnumerateTruncation(t *testing.T) {
	// Fan-out a -> x0..x9, cap at 4 results.
	edges := make([][3]string, 0, 10)
	for i := 0; i < 10; i++ {
		edges = append(edges, [3]string{fmt.Sprintf("e%02d", i), "a", fmt.Sprintf("x%d", i)})
	}
	s := buildStore(t, edges...)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 1, MaxResults: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 4 {
		t.Errorf("got %d paths, want exactly the cap of 4", len(res.Paths))
	}
	if !res.Truncated {
		t.Error("truncated flag not set")
	}
}

func TestEnumerateExactCapNotTruncated(t *testing.T) {
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "a", "c"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 1, MaxResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 2 || res.Truncated {
		t.Errorf("exactly cap results without overflow must not set truncated, got %d (truncated=%v)", len(res.Paths), res.Truncated)
	}
}

func TestEnumerateNoRevisitsOnPath(t *testing.T) {
	// a <-> b plus b -> c. Simple paths never repeat a node.
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "b", "a"},
		[3]string{"e3", "b", "c"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range res.Paths {
		seen := map[string]int{}
		for _, n := range p.Nodes {
			seen[n.ID]++
		}
		for id, count := range seen {
			if count > 1 {
				t.Errorf("node %s repeated on path %s", id, pathIDs(p))
			}
		}
	}
}

func TestCycles(t *testing.T) {
	// a -> b -> c -> a
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "b", "c"},
		[3]string{"e3", "c", "a"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 2, MaxDepth: 6, Mode: ModeCycles})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("got %d cycles, want 1", len(res.Paths))
	}
	cycle := res.Paths[0]
	if !cycle.IsCycle() {
		t.Error("path does not close on its start")
	}
	if cycle.Depth() != 3 {
		t.Errorf("cycle length = %d, want 3", cycle.Depth())
	}
}

func TestCyclesIgnoresSelfLoopWindow(t *testing.T) {
	// a -> b -> a is a 2-hop cycle, inside the window.
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "b", "a"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 2, MaxDepth: 6, Mode: ModeCycles})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 || res.Paths[0].Depth() != 2 {
		t.Fatalf("want one 2-hop cycle, got %v", res.Paths)
	}
}

func TestShortestPath(t *testing.T) {
	// Two routes a->d: a->b->d and a->c->e->d. BFS finds the 2-hop one.
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "a", "c"},
		[3]string{"e3", "b", "d"},
		[3]string{"e4", "c", "e"},
		[3]string{"e5", "e", "d"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 5, TargetID: "d", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(res.Paths))
	}
	if got := pathIDs(res.Paths[0]); got != "a-b-d" {
		t.Errorf("shortest = %s, want a-b-d", got)
	}
}

func TestShortestPathLexicographicTieBreak(t *testing.T) {
	// Two 2-hop routes a->d; the one through the smaller edge ids wins.
	s := buildStore(t,
		[3]string{"e1", "a", "b"},
		[3]string{"e2", "a", "c"},
		[3]string{"e3", "b", "d"},
		[3]string{"e4", "c", "d"},
	)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "a", Options{MinDepth: 1, MaxDepth: 5, TargetID: "d", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(res.Paths))
	}
	if got := pathIDs(res.Paths[0]); got != "a-b-d" {
		t.Errorf("tie-break picked %s, want a-b-d (edges e1,e3)", got)
	}
}

func TestShortestPathHonorsMinDepth(t *testing.T) {
	// a->d directly plus a->b->c->d. A direct hit below MinDepth must
	// not end the search; the 3-hop route qualifies.
	s := buildStore(t,
		[3]string{"e1", "a", "d"},
		[3]string{"e2", "a", "b"},
		[3]string{"e3", "b", "c"},
		[3]string{"e4", "c", "d"},
	)
	e := NewEnumerator(s)
	ctx := context.Background()

	res, err := e.Enumerate(ctx, "a", Options{MinDepth: 2, MaxDepth: 5, TargetID: "d", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(res.Paths))
	}
	if got := pathIDs(res.Paths[0]); got != "a-b-c-d" {
		t.Errorf("shortest with min_depth 2 = %s, want a-b-c-d", got)
	}

	// With no minimum the direct edge still wins.
	res, err = e.Enumerate(ctx, "a", Options{MinDepth: 1, MaxDepth: 5, TargetID: "d", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if got := pathIDs(res.Paths[0]); got != "a-d" {
		t.Errorf("shortest without minimum = %s, want a-d", got)
	}
}

func TestShortestStartEqualsTarget(t *testing.T) {
	s := buildStore(t, [3]string{"e1", "a", "b"})
	e := NewEnumerator(s)
	ctx := context.Background()

	res, err := e.Enumerate(ctx, "a", Options{MinDepth: 0, MaxDepth: 3, TargetID: "a", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 1 || res.Paths[0].Depth() != 0 {
		t.Errorf("start == target with min_depth 0 yields the node itself, got %v", res.Paths)
	}

	res, err = e.Enumerate(ctx, "a", Options{MinDepth: 1, MaxDepth: 3, TargetID: "a", Mode: ModeShortest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 0 {
		t.Errorf("start == target with min_depth 1 yields nothing, got %v", res.Paths)
	}
}

func TestUnknownStartNode(t *testing.T) {
	s := buildStore(t, [3]string{"e1", "a", "b"})
	e := NewEnumerator(s)

	_, err := e.Enumerate(context.Background(), "missing", Options{MinDepth: 1, MaxDepth: 2})
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.ID != "missing" {
		t.Errorf("NotFoundError.ID = %s", nf.ID)
	}
}

func TestOptionBounds(t *testing.T) {
	s := buildStore(t, [3]string{"e1", "a", "b"})
	e := NewEnumerator(s)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
	}{
		{"negative min depth", Options{MinDepth: -1, MaxDepth: 2}},
		{"max below min", Options{MinDepth: 3, MaxDepth: 2}},
		{"above ceiling", Options{MinDepth: 1, MaxDepth: DepthCeiling + 1}},
		{"negative max results", Options{MinDepth: 1, MaxDepth: 2, MaxResults: -1}},
		{"shortest without target", Options{MinDepth: 1, MaxDepth: 2, Mode: ModeShortest}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Enumerate(ctx, "a", tc.opts)
			var ib *InvalidBoundError
			if !errors.As(err, &ib) {
				t.Fatalf("err = %v, want InvalidBoundError", err)
			}
		})
	}
}

func TestExpansionBudget(t *testing.T) {
	// A 3-level tree with fan-out 5; tiny budget forces truncation.
	var edges [][3]string
	id := 0
	var grow func(parent string, level int)
	grow = func(parent string, level int) {
		if level == 0 {
			return
		}
		for i := 0; i < 5; i++ {
			id++
			child := fmt.Sprintf("n%03d", id)
			edges = append(edges, [3]string{fmt.Sprintf("e%03d", id), parent, child})
			grow(child, level-1)
		}
	}
	grow("root", 3)
	s := buildStore(t, edges...)
	e := NewEnumerator(s)

	res, err := e.Enumerate(context.Background(), "root", Options{MinDepth: 1, MaxDepth: 3, MaxExpansions: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Error("expansion budget exhausted but truncated not set")
	}
	if len(res.Paths) == 0 {
		t.Error("partial results should still be returned")
	}
}
