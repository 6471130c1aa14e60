// Package neo4j implements the graph store contracts against a Neo4j
// server. Nodes are labeled with their type and carry their attributes as
// properties; relationship types map directly onto Neo4j relationship
// types.
package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

// Config carries the connection parameters.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type Store struct {
	driver   neo.DriverWithContext
	database string

	// maxTries bounds the reconnect attempts on connectivity loss.
	maxTries int
	backoff  time.Duration
}

// NewStore connects to the server and verifies connectivity before
// returning. Connection failures surface as StoreUnavailableError.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo.NewDriverWithContext(cfg.URI, neo.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, &store.StoreUnavailableError{Backend: "neo4j", Err: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, &store.StoreUnavailableError{Backend: "neo4j", Err: err}
	}
	return &Store{
		driver:   driver,
		database: cfg.Database,
		maxTries: 3,
		backoff:  200 * time.Millisecond,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes a read query with bounded retry on connectivity loss.
// Logical failures are never retried.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) ([]*neo.Record, error) {
	records, err := util.RetryBackoff(ctx, s.maxTries, s.backoff, neo.IsConnectivityError,
		func(ctx context.Context) ([]*neo.Record, error) {
			session := s.driver.NewSession(ctx, neo.SessionConfig{
				DatabaseName: s.database,
				AccessMode:   neo.AccessModeRead,
			})
			defer session.Close(ctx)

			result, err := session.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			return result.Collect(ctx)
		})
	if err != nil {
		if neo.IsConnectivityError(err) {
			return nil, &store.StoreUnavailableError{Backend: "neo4j", Err: err}
		}
		return nil, err
	}
	return records, nil
}

// write executes a mutating query with the same retry policy.
func (s *Store) write(ctx context.Context, cypher string, params map[string]any) error {
	_, err := util.RetryBackoff(ctx, s.maxTries, s.backoff, neo.IsConnectivityError,
		func(ctx context.Context) (struct{}, error) {
			session := s.driver.NewSession(ctx, neo.SessionConfig{
				DatabaseName: s.database,
				AccessMode:   neo.AccessModeWrite,
			})
			defer session.Close(ctx)

			result, err := session.Run(ctx, cypher, params)
			if err != nil {
				return struct{}{}, err
			}
			_, err = result.Consume(ctx)
			return struct{}{}, err
		})
	if err != nil && neo.IsConnectivityError(err) {
		return &store.StoreUnavailableError{Backend: "neo4j", Err: err}
	}
	return err
}

func (s *Store) GetNode(ctx context.Context, id string) (graph.Node, error) {
	records, err := s.run(ctx,
		"MATCH (n {id: $id}) RETURN n LIMIT 1",
		map[string]any{"id": id},
	)
	if err != nil {
		return graph.Node{}, err
	}
	if len(records) == 0 {
		return graph.Node{}, &store.NotFoundError{ID: id}
	}
	return nodeFromRecord(records[0], "n")
}

func (s *Store) Neighbors(ctx context.Context, id string, relTypes []graph.RelType, dir graph.Direction) ([]store.Neighbor, error) {
	if _, err := s.GetNode(ctx, id); err != nil {
		return nil, err
	}

	pattern := "(n {id: $id})-[r" + relTypePattern(relTypes) + "]->(m)"
	switch dir {
	case graph.DirectionIn:
		pattern = "(n {id: $id})<-[r" + relTypePattern(relTypes) + "]-(m)"
	case graph.DirectionBoth:
		pattern = "(n {id: $id})-[r" + relTypePattern(relTypes) + "]-(m)"
	}

	cypher := fmt.Sprintf(
		"MATCH %s RETURN r, m, startNode(r).id AS src, endNode(r).id AS dst ORDER BY r.id",
		pattern,
	)
	records, err := s.run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	neighbors := make([]store.Neighbor, 0, len(records))
	for _, rec := range records {
		node, err := nodeFromRecord(rec, "m")
		if err != nil {
			return nil, err
		}
		edge, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, store.Neighbor{Edge: edge, Node: node})
	}
	return neighbors, nil
}

func (s *Store) FindNodes(ctx context.Context, filter store.NodeFilter) ([]graph.Node, error) {
	var conds []string
	params := map[string]any{}

	match := "MATCH (n)"
	if filter.Type != "" {
		match = fmt.Sprintf("MATCH (n:%s)", filter.Type)
	}
	if filter.Jurisdiction != "" {
		conds = append(conds, "toUpper(n.jurisdiction_code) = toUpper($jurisdiction)")
		params["jurisdiction"] = filter.Jurisdiction
	}
	if filter.NameContains != "" {
		conds = append(conds, "(toLower(n.name) CONTAINS toLower($name) OR toLower(n.full_name) CONTAINS toLower($name))")
		params["name"] = filter.NameContains
	}
	if filter.Status != "" {
		conds = append(conds, "toUpper(n.status) = toUpper($status)")
		params["status"] = filter.Status
	}
	if filter.HasAttr != "" {
		conds = append(conds, fmt.Sprintf("n.%s IS NOT NULL", sanitizeAttr(filter.HasAttr)))
	}

	cypher := match
	if len(conds) > 0 {
		cypher += " WHERE " + strings.Join(conds, " AND ")
	}
	cypher += " RETURN n ORDER BY n.id"
	if filter.Offset > 0 {
		cypher += fmt.Sprintf(" SKIP %d", filter.Offset)
	}
	if filter.Limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	nodes := make([]graph.Node, 0, len(records))
	for _, rec := range records {
		node, err := nodeFromRecord(rec, "n")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *Store) UpsertNodes(ctx context.Context, nodes []graph.Node) error {
	// MERGE per label; Cypher cannot parameterize labels.
	byType := map[graph.NodeType][]map[string]any{}
	for _, n := range nodes {
		props := map[string]any{"id": n.ID}
		for k, v := range n.Attrs {
			props[k] = v
		}
		byType[n.Type] = append(byType[n.Type], map[string]any{"id": n.ID, "props": props})
	}
	for typ, rows := range byType {
		cypher := fmt.Sprintf(
			"UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n = row.props",
			typ,
		)
		if err := s.write(ctx, cypher, map[string]any{"rows": rows}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertEdges(ctx context.Context, edges []graph.Edge) error {
	byType := map[graph.RelType][]map[string]any{}
	for _, e := range edges {
		props := map[string]any{"id": e.ID}
		for k, v := range e.Props {
			props[k] = v
		}
		byType[e.Type] = append(byType[e.Type], map[string]any{
			"id":    e.ID,
			"src":   e.SourceID,
			"dst":   e.TargetID,
			"props": props,
		})
	}
	for typ, rows := range byType {
		cypher := fmt.Sprintf(
			"UNWIND $rows AS row "+
				"MATCH (a {id: row.src}), (b {id: row.dst}) "+
				"MERGE (a)-[r:%s {id: row.id}]->(b) SET r = row.props",
			typ,
		)
		if err := s.write(ctx, cypher, map[string]any{"rows": rows}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AnnotateNodes(ctx context.Context, attrs map[string]map[string]any) error {
	rows := make([]map[string]any, 0, len(attrs))
	for id, merge := range attrs {
		rows = append(rows, map[string]any{"id": id, "props": merge})
	}
	return s.write(ctx,
		"UNWIND $rows AS row MATCH (n {id: row.id}) SET n += row.props",
		map[string]any{"rows": rows},
	)
}

// relTypePattern renders a relationship-type filter like ":OWNS|CONTROLS".
// Types come from the fixed RelType constants, never from user input.
func relTypePattern(relTypes []graph.RelType) string {
	if len(relTypes) == 0 {
		return ""
	}
	parts := make([]string, len(relTypes))
	for i, rt := range relTypes {
		parts[i] = string(rt)
	}
	return ":" + strings.Join(parts, "|")
}

// sanitizeAttr strips anything outside [a-z0-9_] so attribute names can be
// interpolated into property accesses.
func sanitizeAttr(attr string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(attr) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nodeFromRecord(rec *neo.Record, key string) (graph.Node, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return graph.Node{}, fmt.Errorf("record missing %q", key)
	}
	n, ok := raw.(neo.Node)
	if !ok {
		return graph.Node{}, fmt.Errorf("record %q is not a node", key)
	}

	id, _ := n.Props["id"].(string)
	attrs := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		if k == "id" {
			continue
		}
		attrs[k] = v
	}
	typ := graph.NodeType("")
	if len(n.Labels) > 0 {
		typ = graph.NodeType(n.Labels[0])
	}
	return graph.Node{ID: id, Type: typ, Attrs: attrs}, nil
}

func edgeFromRecord(rec *neo.Record) (graph.Edge, error) {
	raw, ok := rec.Get("r")
	if !ok {
		return graph.Edge{}, fmt.Errorf("record missing relationship")
	}
	r, ok := raw.(neo.Relationship)
	if !ok {
		return graph.Edge{}, fmt.Errorf("record r is not a relationship")
	}

	id, _ := r.Props["id"].(string)
	props := make(map[string]any, len(r.Props))
	for k, v := range r.Props {
		if k == "id" {
			continue
		}
		props[k] = v
	}
	src, _, _ := neo.GetRecordValue[string](rec, "src")
	dst, _, _ := neo.GetRecordValue[string](rec, "dst")
	return graph.Edge{
		ID:       id,
		SourceID: src,
		TargetID: dst,
		Type:     graph.RelType(r.Type),
		Props:    props,
	}, nil
}
