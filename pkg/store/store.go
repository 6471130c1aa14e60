package store

import (
	"context"

	"github.com/offshore-atlas/backend/pkg/graph"
)

// Neighbor pairs an edge with the node on its far side.
type Neighbor struct {
	Edge graph.Edge
	Node graph.Node
}

// NodeFilter narrows a FindNodes scan. Zero values mean "no constraint".
type NodeFilter struct {
	Type         graph.NodeType
	Jurisdiction string
	NameContains string
	Status       string
	// HasAttr keeps only nodes where the named attribute is present,
	// e.g. "pagerank_score" written by the analytics job.
	HasAttr string
	Limit   int
	Offset  int
}

// GraphStore is the read contract every backend implements: a native graph
// database, an adjacency-list table, or the in-memory test double. No
// caching is guaranteed beyond a single logical request. Implementations
// return NotFoundError for unknown ids and StoreUnavailableError for
// connectivity loss after bounded retry.
type GraphStore interface {
	// GetNode fetches a single node by id.
	GetNode(ctx context.Context, id string) (graph.Node, error)

	// Neighbors returns the edges of types relTypes touching the node in
	// the given direction, each paired with the node on the other end.
	// An empty relTypes slice matches every relationship type. Results
	// are ordered by edge id for deterministic traversal.
	Neighbors(ctx context.Context, id string, relTypes []graph.RelType, dir graph.Direction) ([]Neighbor, error)

	// FindNodes scans nodes matching the filter, ordered by node id.
	FindNodes(ctx context.Context, filter NodeFilter) ([]graph.Node, error)
}

// Graph combines the read and write contracts for backends that serve
// both the API server and the ETL worker.
type Graph interface {
	GraphStore
	GraphWriter
}

// GraphWriter is the write contract used only by the ETL worker and the
// analytics-annotation job. Analysis code never mutates the graph.
type GraphWriter interface {
	UpsertNodes(ctx context.Context, nodes []graph.Node) error
	UpsertEdges(ctx context.Context, edges []graph.Edge) error

	// AnnotateNodes merges derived attributes (pagerank_score,
	// community_id, ...) onto existing nodes, leaving other attributes
	// untouched. Unknown ids are skipped.
	AnnotateNodes(ctx context.Context, attrs map[string]map[string]any) error
}
