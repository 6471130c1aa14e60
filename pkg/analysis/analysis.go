// Package analysis is the façade the transport layer binds to. It wires
// the traversal, ownership and red-flag packages together against a graph
// store and exposes the three analysis entry points: TracePaths,
// ClassifyRisk and TopHubs.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/hubs"
	"github.com/offshore-atlas/backend/pkg/ownership"
	"github.com/offshore-atlas/backend/pkg/riskflag"
	"github.com/offshore-atlas/backend/pkg/store"
	"github.com/offshore-atlas/backend/pkg/traverse"
)

// ownershipRels are the relationship types that convey control.
var ownershipRels = []graph.RelType{graph.RelOwns, graph.RelControls}

// Engine runs analyses against a read-only graph store. A single Engine
// is safe for concurrent use.
type Engine struct {
	store  store.GraphStore
	enum   *traverse.Enumerator
	ranker *hubs.Ranker
	cfg    riskflag.Config
}

func NewEngine(s store.GraphStore, cfg riskflag.Config) *Engine {
	return &Engine{
		store:  s,
		enum:   traverse.NewEnumerator(s),
		ranker: hubs.NewRanker(s),
		cfg:    cfg,
	}
}

// TraceOptions bound an ownership trace.
type TraceOptions struct {
	// MinDepth and MaxDepth bound the chain length in hops. Zero values
	// default to 1 and 5.
	MinDepth int
	MaxDepth int

	// MaxResults caps the number of chains returned.
	MaxResults int
}

// OwnershipTrace is the result of TracePaths: every ownership chain
// reaching the target entity, reduced to effective percentages.
type OwnershipTrace struct {
	Target    graph.Node         `json:"target"`
	Results   []ownership.Result `json:"ownership_paths"`
	Truncated bool               `json:"truncated"`
}

// TracePaths enumerates the ownership chains ending at the given entity
// by walking OWNS and CONTROLS edges upstream, and reduces each chain to
// its effective ownership percentage. Chains are ordered by effective
// ownership descending, then by depth ascending. Parallel chains between
// the same owner and target stay separate.
func (e *Engine) TracePaths(ctx context.Context, entityID string, opts TraceOptions) (OwnershipTrace, error) {
	if opts.MinDepth == 0 {
		opts.MinDepth = 1
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 5
	}

	res, err := e.enum.Enumerate(ctx, entityID, traverse.Options{
		MinDepth:   opts.MinDepth,
		MaxDepth:   opts.MaxDepth,
		RelTypes:   ownershipRels,
		Direction:  graph.DirectionIn,
		Mode:       traverse.ModeEnumerate,
		MaxResults: opts.MaxResults,
	})
	if err != nil {
		return OwnershipTrace{}, err
	}

	target, err := e.store.GetNode(ctx, entityID)
	if err != nil {
		return OwnershipTrace{}, err
	}

	// Upstream walks start at the owned entity; flip each chain so it
	// reads owner first.
	reversed := make([]graph.Path, len(res.Paths))
	for i, p := range res.Paths {
		reversed[i] = reversePath(p)
	}
	return OwnershipTrace{
		Target:    target,
		Results:   ownership.Aggregate(reversed),
		Truncated: res.Truncated,
	}, nil
}

// ClassifyRisk evaluates every red-flag rule against the entity's
// neighborhood and rolls the matches up into a scored assessment. The
// rule inputs are gathered concurrently; a rule whose inputs are missing
// is skipped, never treated as a match.
func (e *Engine) ClassifyRisk(ctx context.Context, entityID string) (riskflag.Assessment, error) {
	node, err := e.store.GetNode(ctx, entityID)
	if err != nil {
		return riskflag.Assessment{}, err
	}

	var (
		chains    []graph.Path
		cycles    []graph.Path
		pepHits   []riskflag.PEPHit
		addrID    string
		addrCount int
		bulkID    string
		bulkWeeks map[string]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.enum.Enumerate(gctx, entityID, traverse.Options{
			MinDepth:  1,
			MaxDepth:  6,
			RelTypes:  ownershipRels,
			Direction: graph.DirectionIn,
			Mode:      traverse.ModeEnumerate,
		})
		if err != nil {
			return fmt.Errorf("ownership chains: %w", err)
		}
		chains = res.Paths
		return nil
	})
	g.Go(func() error {
		res, err := e.enum.Enumerate(gctx, entityID, traverse.Options{
			MinDepth:  2,
			MaxDepth:  6,
			RelTypes:  ownershipRels,
			Direction: graph.DirectionOut,
			Mode:      traverse.ModeCycles,
		})
		if err != nil {
			return fmt.Errorf("cycle search: %w", err)
		}
		cycles = res.Paths
		return nil
	})
	g.Go(func() error {
		hits, err := e.pepsWithin(gctx, entityID, e.cfg.PEPHopRadius)
		if err != nil {
			return fmt.Errorf("pep scan: %w", err)
		}
		pepHits = hits
		return nil
	})
	g.Go(func() error {
		id, count, err := e.busiestAddress(gctx, entityID)
		if err != nil {
			return fmt.Errorf("address clustering: %w", err)
		}
		addrID, addrCount = id, count
		return nil
	})
	g.Go(func() error {
		id, weeks, err := e.formationWeeks(gctx, node)
		if err != nil {
			return fmt.Errorf("bulk formation: %w", err)
		}
		bulkID, bulkWeeks = id, weeks
		return nil
	})
	if err := g.Wait(); err != nil {
		return riskflag.Assessment{}, err
	}

	var flags []riskflag.Flag
	if f, ok := e.cfg.DeepLayering(chains); ok {
		flags = append(flags, f)
	}
	if f, ok := e.cfg.CircularOwnership(cycles); ok {
		flags = append(flags, f)
	}
	if f, ok := e.cfg.JurisdictionShopping(chains); ok {
		flags = append(flags, f)
	}
	if f, ok := e.cfg.MassRegistration(addrID, addrCount); ok {
		flags = append(flags, f)
	}
	if f, ok := e.cfg.PEPConnection(pepHits); ok {
		flags = append(flags, f)
	}
	if f, ok := e.cfg.BulkFormation(bulkID, bulkWeeks); ok {
		flags = append(flags, f)
	}
	return riskflag.NewAssessment(entityID, flags), nil
}

// TopHubs ranks nodes of the given type by edge count. An empty relType
// counts edges of every relationship type.
func (e *Engine) TopHubs(ctx context.Context, nodeType graph.NodeType, relType graph.RelType, limit int) ([]hubs.RankedNode, error) {
	var rels []graph.RelType
	if relType != "" {
		rels = []graph.RelType{relType}
	}
	return e.ranker.TopByDegree(ctx, nodeType, rels, limit)
}

// TopInfluential ranks entities by the pagerank_score attribute written
// by the external analytics job.
func (e *Engine) TopInfluential(ctx context.Context, limit int) ([]hubs.RankedNode, error) {
	return e.ranker.TopByAttribute(ctx, graph.NodeEntity, "pagerank_score", limit)
}

// TopConnected ranks entities by the degree_centrality attribute written
// by the external analytics job.
func (e *Engine) TopConnected(ctx context.Context, limit int) ([]hubs.RankedNode, error) {
	return e.ranker.TopByAttribute(ctx, graph.NodeEntity, "degree_centrality", limit)
}

// Subgraph is a neighborhood extract: the distinct nodes and edges within
// a hop radius of a center node.
type Subgraph struct {
	Center graph.Node   `json:"center"`
	Nodes  []graph.Node `json:"nodes"`
	Edges  []graph.Edge `json:"edges"`
}

// Network extracts the subgraph within depth hops of the entity, in both
// edge directions across every relationship type.
func (e *Engine) Network(ctx context.Context, entityID string, depth int) (Subgraph, error) {
	if depth <= 0 {
		depth = 2
	}
	center, err := e.store.GetNode(ctx, entityID)
	if err != nil {
		return Subgraph{}, err
	}

	nodes := map[string]graph.Node{entityID: center}
	edges := map[string]graph.Edge{}

	frontier := []string{entityID}
	visited := map[string]struct{}{entityID: {}}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.store.Neighbors(ctx, id, nil, graph.DirectionBoth)
			if err != nil {
				return Subgraph{}, err
			}
			for _, nb := range neighbors {
				edges[nb.Edge.ID] = nb.Edge
				nodes[nb.Node.ID] = nb.Node
				if _, seen := visited[nb.Node.ID]; !seen {
					visited[nb.Node.ID] = struct{}{}
					next = append(next, nb.Node.ID)
				}
			}
		}
		frontier = next
	}

	sg := Subgraph{Center: center}
	for _, n := range nodes {
		sg.Nodes = append(sg.Nodes, n)
	}
	for _, ed := range edges {
		sg.Edges = append(sg.Edges, ed)
	}
	sort.Slice(sg.Nodes, func(i, j int) bool { return sg.Nodes[i].ID < sg.Nodes[j].ID })
	sort.Slice(sg.Edges, func(i, j int) bool { return sg.Edges[i].ID < sg.Edges[j].ID })
	return sg, nil
}

// pepsWithin scans the undirected neighborhood up to radius hops for
// nodes marked is_pep, recording the hop distance of each.
func (e *Engine) pepsWithin(ctx context.Context, startID string, radius int) ([]riskflag.PEPHit, error) {
	var hits []riskflag.PEPHit
	visited := map[string]struct{}{startID: {}}
	frontier := []string{startID}

	for dist := 1; dist <= radius && len(frontier) > 0; dist++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.store.Neighbors(ctx, id, nil, graph.DirectionBoth)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, seen := visited[nb.Node.ID]; seen {
					continue
				}
				visited[nb.Node.ID] = struct{}{}
				next = append(next, nb.Node.ID)
				if nb.Node.IsPEP() {
					hits = append(hits, riskflag.PEPHit{Node: nb.Node, Distance: dist})
				}
			}
		}
		frontier = next
	}
	return hits, nil
}

// busiestAddress finds the entity's registered address with the most
// entities attached. Returns a zero count when the entity has no address.
func (e *Engine) busiestAddress(ctx context.Context, entityID string) (string, int, error) {
	addrs, err := e.store.Neighbors(ctx, entityID, []graph.RelType{graph.RelHasAddress}, graph.DirectionOut)
	if err != nil {
		return "", 0, err
	}

	bestID := ""
	best := 0
	for _, a := range addrs {
		tenants, err := e.store.Neighbors(ctx, a.Node.ID, []graph.RelType{graph.RelHasAddress}, graph.DirectionIn)
		if err != nil {
			return "", 0, err
		}
		distinct := map[string]struct{}{}
		for _, t := range tenants {
			distinct[t.Node.ID] = struct{}{}
		}
		if len(distinct) > best || (len(distinct) == best && a.Node.ID < bestID) {
			best = len(distinct)
			bestID = a.Node.ID
		}
	}
	return bestID, best, nil
}

// formationWeeks counts entity formations per ISO week for the
// intermediary behind the node. For an intermediary it counts the
// entities it created; for an entity it checks each intermediary that
// created it. Entities without a parseable incorporation_date are left
// out, so the rule skips when the data is absent.
func (e *Engine) formationWeeks(ctx context.Context, node graph.Node) (string, map[string]int, error) {
	var intermediaries []graph.Node
	if node.Type == graph.NodeIntermediary {
		intermediaries = []graph.Node{node}
	} else {
		creators, err := e.store.Neighbors(ctx, node.ID, []graph.RelType{graph.RelCreatedBy}, graph.DirectionOut)
		if err != nil {
			return "", nil, err
		}
		for _, c := range creators {
			if c.Node.Type == graph.NodeIntermediary {
				intermediaries = append(intermediaries, c.Node)
			}
		}
	}

	bestID := ""
	var bestWeeks map[string]int
	bestPeak := -1
	for _, im := range intermediaries {
		formed, err := e.store.Neighbors(ctx, im.ID, []graph.RelType{graph.RelCreatedBy}, graph.DirectionIn)
		if err != nil {
			return "", nil, err
		}
		weeks := map[string]int{}
		for _, f := range formed {
			raw, ok := f.Node.StringAttr("incorporation_date")
			if !ok {
				continue
			}
			wk, ok := isoWeek(raw)
			if !ok {
				continue
			}
			weeks[wk]++
		}
		peak := 0
		for _, n := range weeks {
			if n > peak {
				peak = n
			}
		}
		if peak > bestPeak {
			bestPeak = peak
			bestID = im.ID
			bestWeeks = weeks
		}
	}
	return bestID, bestWeeks, nil
}

// reversePath flips a path end-for-end. Edge endpoints keep their stored
// direction; only the visit order changes.
func reversePath(p graph.Path) graph.Path {
	out := graph.Path{
		Nodes: make([]graph.Node, len(p.Nodes)),
		Edges: make([]graph.Edge, len(p.Edges)),
	}
	for i, n := range p.Nodes {
		out.Nodes[len(p.Nodes)-1-i] = n
	}
	for i, ed := range p.Edges {
		out.Edges[len(p.Edges)-1-i] = ed
	}
	return out
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02-Jan-2006"}

// isoWeek formats a date string as its ISO week key ("2015-W23").
func isoWeek(raw string) (string, bool) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), true
	}
	return "", false
}
