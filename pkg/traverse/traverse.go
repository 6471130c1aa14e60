// Package traverse enumerates ownership chains over a GraphStore. It
// replaces the variable-length Cypher patterns of the seed queries with an
// explicit bounded traversal that can run against any backend.
package traverse

import (
	"context"
	"fmt"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

// Mode selects the traversal strategy.
type Mode int

const (
	// ModeEnumerate collects every simple path within the depth bounds,
	// capped at MaxResults.
	ModeEnumerate Mode = iota
	// ModeShortest returns the single shortest path to TargetID via BFS,
	// ties broken by the lexicographic order of the edge-id sequence.
	ModeShortest
	// ModeCycles finds simple cycles: paths whose last node equals the
	// start node. Used for circular-ownership detection.
	ModeCycles
)

const (
	// DepthCeiling is the hard upper bound on MaxDepth. Deeper searches on
	// dense ownership graphs are unbounded in cost.
	DepthCeiling = 10

	// DefaultMaxResults caps enumeration output to bound memory.
	DefaultMaxResults = 1000

	// DefaultMaxExpansions caps the number of neighbor expansions per
	// request so a dense graph cannot pin a worker.
	DefaultMaxExpansions = 100000
)

// InvalidBoundError reports malformed depth or limit parameters. It is
// raised before any store access.
type InvalidBoundError struct {
	Field  string
	Value  int
	Reason string
}

func (e *InvalidBoundError) Error() string {
	return fmt.Sprintf("invalid bound %s=%d: %s", e.Field, e.Value, e.Reason)
}

// Options bound a single traversal request.
type Options struct {
	// MinDepth and MaxDepth bound the hop count. MinDepth 0 means "the
	// node itself" and yields a zero-length path.
	MinDepth int
	MaxDepth int

	// RelTypes is the relationship allowlist; empty means every type.
	RelTypes []graph.RelType

	// Direction of edges to follow from each node.
	Direction graph.Direction

	// TargetID restricts accepted paths to ones ending at this node.
	// Empty accepts any end node. Required for ModeShortest.
	TargetID string

	Mode Mode

	// MaxResults caps accepted paths (default DefaultMaxResults).
	MaxResults int

	// MaxExpansions caps neighbor expansions (default DefaultMaxExpansions).
	MaxExpansions int
}

func (o Options) validate() error {
	if o.MinDepth < 0 {
		return &InvalidBoundError{Field: "min_depth", Value: o.MinDepth, Reason: "must be >= 0"}
	}
	if o.MaxDepth < o.MinDepth {
		return &InvalidBoundError{Field: "max_depth", Value: o.MaxDepth, Reason: "must be >= min_depth"}
	}
	if o.MaxDepth > DepthCeiling {
		return &InvalidBoundError{Field: "max_depth", Value: o.MaxDepth, Reason: fmt.Sprintf("must be <= %d", DepthCeiling)}
	}
	if o.MaxResults < 0 {
		return &InvalidBoundError{Field: "max_results", Value: o.MaxResults, Reason: "must be >= 0"}
	}
	if o.Mode == ModeShortest && o.TargetID == "" {
		return &InvalidBoundError{Field: "target", Value: 0, Reason: "shortest mode requires a target node"}
	}
	if o.Mode == ModeCycles && o.MinDepth < 2 && o.MaxDepth < 2 {
		return &InvalidBoundError{Field: "max_depth", Value: o.MaxDepth, Reason: "cycle search needs max_depth >= 2"}
	}
	return nil
}

// Result is the outcome of one traversal. Truncated is set when the result
// cap or the expansion budget cut the search short; the paths collected so
// far are still returned.
type Result struct {
	Paths      []graph.Path `json:"paths"`
	Truncated  bool         `json:"truncated"`
	Expansions int          `json:"expansions"`
}

// Enumerator walks a GraphStore. It holds no per-request state; a single
// value is safe to share across concurrent requests.
type Enumerator struct {
	store store.GraphStore
}

func NewEnumerator(s store.GraphStore) *Enumerator {
	return &Enumerator{store: s}
}

// Enumerate runs the traversal described by opts from startID.
// The start node must exist; unknown ids surface the store's NotFoundError.
func (e *Enumerator) Enumerate(ctx context.Context, startID string, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxExpansions == 0 {
		opts.MaxExpansions = DefaultMaxExpansions
	}

	start, err := e.store.GetNode(ctx, startID)
	if err != nil {
		return Result{}, err
	}

	if opts.Mode == ModeShortest {
		return e.shortest(ctx, start, opts)
	}

	walk := &walker{
		store: e.store,
		opts:  opts,
		start: start,
		seen:  map[string]struct{}{start.ID: {}},
	}
	res := Result{Paths: make([]graph.Path, 0)}

	if opts.MinDepth == 0 && opts.Mode == ModeEnumerate {
		if opts.TargetID == "" || opts.TargetID == start.ID {
			res.Paths = append(res.Paths, graph.Path{Nodes: []graph.Node{start}})
		}
	}

	if err := walk.dfs(ctx, start, nil, nil, &res); err != nil {
		return res, err
	}
	res.Expansions = walk.expansions
	return res, nil
}

// walker carries the mutable state of one DFS. The visited set is
// per-path: nodes are released on backtrack so a node may appear on many
// distinct paths, but never twice on the same one.
type walker struct {
	store      store.GraphStore
	opts       Options
	start      graph.Node
	seen       map[string]struct{}
	expansions int
}

func (w *walker) dfs(ctx context.Context, at graph.Node, nodes []graph.Node, edges []graph.Edge, res *Result) error {
	depth := len(edges)
	if depth >= w.opts.MaxDepth || res.Truncated {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	w.expansions++
	if w.expansions > w.opts.MaxExpansions {
		res.Truncated = true
		return nil
	}

	neighbors, err := w.store.Neighbors(ctx, at.ID, w.opts.RelTypes, w.opts.Direction)
	if err != nil {
		return err
	}

	for _, nb := range neighbors {
		if res.Truncated {
			return nil
		}
		next := nb.Node
		nextDepth := depth + 1

		if next.ID == w.start.ID {
			// Only an explicit cycle search may close on the start node.
			if w.opts.Mode == ModeCycles && nextDepth >= 2 && nextDepth >= w.opts.MinDepth {
				w.accept(res, append(cloneNodes(nodes, w.start, at), next), append(cloneEdges(edges), nb.Edge))
			}
			continue
		}
		if _, visited := w.seen[next.ID]; visited {
			continue
		}

		pathNodes := append(cloneNodes(nodes, w.start, at), next)
		pathEdges := append(cloneEdges(edges), nb.Edge)

		if w.opts.Mode == ModeEnumerate &&
			nextDepth >= w.opts.MinDepth &&
			(w.opts.TargetID == "" || w.opts.TargetID == next.ID) {
			w.accept(res, pathNodes, pathEdges)
		}

		w.seen[next.ID] = struct{}{}
		err := w.dfs(ctx, next, pathNodes[1:len(pathNodes)-1], pathEdges, res)
		delete(w.seen, next.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) accept(res *Result, nodes []graph.Node, edges []graph.Edge) {
	if len(res.Paths) >= w.opts.MaxResults {
		res.Truncated = true
		return
	}
	res.Paths = append(res.Paths, graph.Path{Nodes: nodes, Edges: edges})
}

// cloneNodes rebuilds the node sequence start..at plus room for one more.
func cloneNodes(inner []graph.Node, start, at graph.Node) []graph.Node {
	out := make([]graph.Node, 0, len(inner)+3)
	out = append(out, start)
	out = append(out, inner...)
	if at.ID != start.ID {
		out = append(out, at)
	}
	return out
}

func cloneEdges(edges []graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(edges), len(edges)+1)
	copy(out, edges)
	return out
}

// shortest runs a BFS from start to opts.TargetID. Nodes are expanded in
// edge-id order and FIFO across layers, so the first accepted path is the
// lexicographically smallest among the shallowest that satisfy MinDepth.
// Discovery is deduplicated per (node, depth) rather than per node: a
// target first reached below MinDepth must not block a deeper qualifying
// path. Paths stay simple via the on-path check.
func (e *Enumerator) shortest(ctx context.Context, start graph.Node, opts Options) (Result, error) {
	type queued struct {
		node  graph.Node
		nodes []graph.Node
		edges []graph.Edge
	}
	type state struct {
		id    string
		depth int
	}

	res := Result{Paths: make([]graph.Path, 0, 1)}

	if opts.TargetID == start.ID {
		if opts.MinDepth == 0 {
			res.Paths = append(res.Paths, graph.Path{Nodes: []graph.Node{start}})
		}
		return res, nil
	}

	visited := map[state]struct{}{{id: start.ID, depth: 0}: {}}
	queue := []queued{{node: start, nodes: []graph.Node{start}}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cur := queue[0]
		queue = queue[1:]

		if len(cur.edges) >= opts.MaxDepth {
			continue
		}
		res.Expansions++
		if res.Expansions > opts.MaxExpansions {
			res.Truncated = true
			return res, nil
		}

		neighbors, err := e.store.Neighbors(ctx, cur.node.ID, opts.RelTypes, opts.Direction)
		if err != nil {
			return res, err
		}
		for _, nb := range neighbors {
			depth := len(cur.edges) + 1

			if nb.Node.ID == opts.TargetID {
				if depth < opts.MinDepth {
					// Too shallow; a simple path cannot pass through
					// the target, so neither accept nor enqueue.
					continue
				}
				nodes := append(append(make([]graph.Node, 0, len(cur.nodes)+1), cur.nodes...), nb.Node)
				edges := append(append(make([]graph.Edge, 0, len(cur.edges)+1), cur.edges...), nb.Edge)
				res.Paths = append(res.Paths, graph.Path{Nodes: nodes, Edges: edges})
				return res, nil
			}

			if onPath(cur.nodes, nb.Node.ID) {
				continue
			}
			st := state{id: nb.Node.ID, depth: depth}
			if _, ok := visited[st]; ok {
				continue
			}
			visited[st] = struct{}{}

			nodes := append(append(make([]graph.Node, 0, len(cur.nodes)+1), cur.nodes...), nb.Node)
			edges := append(append(make([]graph.Edge, 0, len(cur.edges)+1), cur.edges...), nb.Edge)
			queue = append(queue, queued{node: nb.Node, nodes: nodes, edges: edges})
		}
	}
	return res, nil
}

func onPath(nodes []graph.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
