// Package hubs ranks nodes by connectivity. Degree counts are computed
// here; centrality and community attributes (pagerank_score,
// degree_centrality, betweenness_score, community_id) come pre-computed
// from the external analytics job and are consumed as opaque inputs.
package hubs

import (
	"context"
	"sort"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

// RankedNode is one entry of a hub ranking.
type RankedNode struct {
	Node graph.Node `json:"node"`
	Rank int        `json:"rank"`

	// Score is the ranking key: an edge count for degree rankings, or a
	// pre-computed centrality score for attribute rankings.
	Score float64 `json:"score"`

	// Degree breaks the score down for degree rankings; nil otherwise.
	Degree *DegreeCount `json:"degree,omitempty"`
}

// DegreeCount holds per-direction edge counts for one node.
type DegreeCount struct {
	In    int                   `json:"in"`
	Out   int                   `json:"out"`
	Total int                   `json:"total"`
	ByRel map[graph.RelType]int `json:"by_relationship,omitempty"`
}

// Ranker computes hub rankings against a read-only store.
type Ranker struct {
	store store.GraphStore
}

// NewRanker wraps a graph store.
func NewRanker(s store.GraphStore) *Ranker {
	return &Ranker{store: s}
}

// TopByDegree returns the limit most-connected nodes of the given type,
// counting edges of the given relationship types in both directions. An
// empty relTypes slice counts every relationship. Ordering is by total
// degree descending, ties broken by node id ascending.
func (r *Ranker) TopByDegree(ctx context.Context, nodeType graph.NodeType, relTypes []graph.RelType, limit int) ([]RankedNode, error) {
	if limit <= 0 {
		limit = 10
	}
	nodes, err := r.store.FindNodes(ctx, store.NodeFilter{Type: nodeType})
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedNode, 0, len(nodes))
	for _, n := range nodes {
		deg, err := r.degree(ctx, n.ID, relTypes)
		if err != nil {
			return nil, err
		}
		if deg.Total == 0 {
			continue
		}
		ranked = append(ranked, RankedNode{
			Node:   n,
			Score:  float64(deg.Total),
			Degree: deg,
		})
	}
	sortRanked(ranked)
	return assignRanks(ranked, limit), nil
}

// TopByAttribute returns the limit nodes of the given type with the
// highest value of a pre-computed numeric attribute such as
// pagerank_score or degree_centrality. Nodes without the attribute are
// excluded. Ordering is by value descending, ties broken by node id
// ascending.
func (r *Ranker) TopByAttribute(ctx context.Context, nodeType graph.NodeType, attr string, limit int) ([]RankedNode, error) {
	if limit <= 0 {
		limit = 10
	}
	nodes, err := r.store.FindNodes(ctx, store.NodeFilter{Type: nodeType, HasAttr: attr})
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedNode, 0, len(nodes))
	for _, n := range nodes {
		v, ok := n.FloatAttr(attr)
		if !ok {
			continue
		}
		ranked = append(ranked, RankedNode{Node: n, Score: v})
	}
	sortRanked(ranked)
	return assignRanks(ranked, limit), nil
}

func (r *Ranker) degree(ctx context.Context, id string, relTypes []graph.RelType) (*DegreeCount, error) {
	out, err := r.store.Neighbors(ctx, id, relTypes, graph.DirectionOut)
	if err != nil {
		return nil, err
	}
	in, err := r.store.Neighbors(ctx, id, relTypes, graph.DirectionIn)
	if err != nil {
		return nil, err
	}
	deg := &DegreeCount{
		In:    len(in),
		Out:   len(out),
		Total: len(in) + len(out),
		ByRel: make(map[graph.RelType]int),
	}
	for _, nb := range out {
		deg.ByRel[nb.Edge.Type]++
	}
	for _, nb := range in {
		deg.ByRel[nb.Edge.Type]++
	}
	return deg, nil
}

func sortRanked(ranked []RankedNode) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Node.ID < ranked[j].Node.ID
	})
}

func assignRanks(ranked []RankedNode, limit int) []RankedNode {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
