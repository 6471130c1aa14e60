// Package memory provides an in-memory GraphStore backed by adjacency
// lists. It is the seedable test double and also serves small datasets
// loaded straight from the CSV bundle without an external database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

type Store struct {
	mu    sync.RWMutex
	nodes map[string]graph.Node
	out   map[string][]graph.Edge
	in    map[string][]graph.Edge
}

func NewStore() *Store {
	return &Store{
		nodes: make(map[string]graph.Node),
		out:   make(map[string][]graph.Edge),
		in:    make(map[string][]graph.Edge),
	}
}

func (s *Store) GetNode(_ context.Context, id string) (graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return graph.Node{}, &store.NotFoundError{ID: id}
	}
	return node, nil
}

func (s *Store) Neighbors(_ context.Context, id string, relTypes []graph.RelType, dir graph.Direction) ([]store.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, &store.NotFoundError{ID: id}
	}

	allowed := make(map[graph.RelType]struct{}, len(relTypes))
	for _, rt := range relTypes {
		allowed[rt] = struct{}{}
	}

	neighbors := make([]store.Neighbor, 0)
	appendEdges := func(edges []graph.Edge, farSide func(graph.Edge) string) {
		for _, e := range edges {
			if len(allowed) > 0 {
				if _, ok := allowed[e.Type]; !ok {
					continue
				}
			}
			other, ok := s.nodes[farSide(e)]
			if !ok {
				continue
			}
			neighbors = append(neighbors, store.Neighbor{Edge: e, Node: other})
		}
	}

	if dir == graph.DirectionOut || dir == graph.DirectionBoth {
		appendEdges(s.out[id], func(e graph.Edge) string { return e.TargetID })
	}
	if dir == graph.DirectionIn || dir == graph.DirectionBoth {
		appendEdges(s.in[id], func(e graph.Edge) string { return e.SourceID })
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Edge.ID < neighbors[j].Edge.ID
	})
	return neighbors, nil
}

func (s *Store) FindNodes(_ context.Context, filter store.NodeFilter) ([]graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matched := make([]graph.Node, 0)
	skipped := 0
	for _, id := range ids {
		node := s.nodes[id]
		if !matches(node, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		matched = append(matched, node)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched, nil
}

func matches(node graph.Node, filter store.NodeFilter) bool {
	if filter.Type != "" && node.Type != filter.Type {
		return false
	}
	if filter.Jurisdiction != "" {
		code, _ := node.StringAttr("jurisdiction_code")
		if !strings.EqualFold(code, filter.Jurisdiction) {
			return false
		}
	}
	if filter.NameContains != "" {
		if !strings.Contains(strings.ToLower(node.Name()), strings.ToLower(filter.NameContains)) {
			return false
		}
	}
	if filter.Status != "" {
		status, _ := node.StringAttr("status")
		if !strings.EqualFold(status, filter.Status) {
			return false
		}
	}
	if filter.HasAttr != "" {
		if _, ok := node.Attrs[filter.HasAttr]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) UpsertNodes(_ context.Context, nodes []graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return nil
}

func (s *Store) UpsertEdges(_ context.Context, edges []graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		s.replaceEdge(e)
	}
	return nil
}

func (s *Store) replaceEdge(e graph.Edge) {
	s.out[e.SourceID] = upsertInto(s.out[e.SourceID], e)
	s.in[e.TargetID] = upsertInto(s.in[e.TargetID], e)
}

func upsertInto(edges []graph.Edge, e graph.Edge) []graph.Edge {
	for i := range edges {
		if edges[i].ID == e.ID {
			edges[i] = e
			return edges
		}
	}
	return append(edges, e)
}

func (s *Store) AnnotateNodes(_ context.Context, attrs map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, merge := range attrs {
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		if node.Attrs == nil {
			node.Attrs = make(map[string]any, len(merge))
		}
		for k, v := range merge {
			node.Attrs[k] = v
		}
		s.nodes[id] = node
	}
	return nil
}
