// Package pgx implements the graph store contracts on PostgreSQL using an
// adjacency-list layout: one table of nodes and one of directed edges,
// attributes held in JSONB columns.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pg "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"
)

type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing connection pool and verifies it is reachable.
// The ping retries a few times so a database still starting up does not
// fail the whole process.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	_, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	})
	if err != nil {
		return nil, &store.StoreUnavailableError{Backend: "postgres", Err: err}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) GetNode(ctx context.Context, id string) (graph.Node, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, node_type, attrs FROM graph_nodes WHERE id = $1", id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return graph.Node{}, &store.NotFoundError{ID: id}
		}
		return graph.Node{}, wrapPgErr(err)
	}
	return node, nil
}

func (s *Store) Neighbors(ctx context.Context, id string, relTypes []graph.RelType, dir graph.Direction) ([]store.Neighbor, error) {
	if _, err := s.GetNode(ctx, id); err != nil {
		return nil, err
	}

	var dirCond string
	switch dir {
	case graph.DirectionOut:
		dirCond = "e.source_id = $1"
	case graph.DirectionIn:
		dirCond = "e.target_id = $1"
	default:
		dirCond = "(e.source_id = $1 OR e.target_id = $1)"
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.source_id, e.target_id, e.rel_type, e.props,
		       n.id, n.node_type, n.attrs
		FROM graph_edges e
		JOIN graph_nodes n
		  ON n.id = CASE WHEN e.source_id = $1 THEN e.target_id ELSE e.source_id END
		WHERE %s`, dirCond)

	args := []any{id}
	if len(relTypes) > 0 {
		types := make([]string, len(relTypes))
		for i, rt := range relTypes {
			types[i] = string(rt)
		}
		query += " AND e.rel_type = ANY($2)"
		args = append(args, types)
	}
	query += " ORDER BY e.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapPgErr(err)
	}
	defer rows.Close()

	var neighbors []store.Neighbor
	for rows.Next() {
		var (
			edgeID, srcID, dstID, relType string
			propsRaw, attrsRaw            []byte
			nodeID, nodeType              string
		)
		if err := rows.Scan(&edgeID, &srcID, &dstID, &relType, &propsRaw, &nodeID, &nodeType, &attrsRaw); err != nil {
			return nil, wrapPgErr(err)
		}
		props, err := decodeJSON(propsRaw)
		if err != nil {
			return nil, err
		}
		attrs, err := decodeJSON(attrsRaw)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, store.Neighbor{
			Edge: graph.Edge{ID: edgeID, SourceID: srcID, TargetID: dstID, Type: graph.RelType(relType), Props: props},
			Node: graph.Node{ID: nodeID, Type: graph.NodeType(nodeType), Attrs: attrs},
		})
	}
	return neighbors, wrapPgErr(rows.Err())
}

func (s *Store) FindNodes(ctx context.Context, filter store.NodeFilter) ([]graph.Node, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		conds = append(conds, "node_type = "+arg(string(filter.Type)))
	}
	if filter.Jurisdiction != "" {
		conds = append(conds, "upper(attrs->>'jurisdiction_code') = upper("+arg(filter.Jurisdiction)+")")
	}
	if filter.NameContains != "" {
		p := arg("%" + strings.ToLower(filter.NameContains) + "%")
		conds = append(conds, "(lower(attrs->>'name') LIKE "+p+" OR lower(attrs->>'full_name') LIKE "+p+")")
	}
	if filter.Status != "" {
		conds = append(conds, "upper(attrs->>'status') = upper("+arg(filter.Status)+")")
	}
	if filter.HasAttr != "" {
		conds = append(conds, "attrs ? "+arg(filter.HasAttr))
	}

	query := "SELECT id, node_type, attrs FROM graph_nodes"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapPgErr(err)
	}
	defer rows.Close()

	var nodes []graph.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, wrapPgErr(err)
		}
		nodes = append(nodes, node)
	}
	return nodes, wrapPgErr(rows.Err())
}

func (s *Store) UpsertNodes(ctx context.Context, nodes []graph.Node) error {
	batch := &pg.Batch{}
	for _, n := range nodes {
		attrs, err := json.Marshal(n.Attrs)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		batch.Queue(`
			INSERT INTO graph_nodes (id, node_type, attrs)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET node_type = $2, attrs = $3`,
			n.ID, string(n.Type), attrs)
	}
	return wrapPgErr(s.pool.SendBatch(ctx, batch).Close())
}

func (s *Store) UpsertEdges(ctx context.Context, edges []graph.Edge) error {
	batch := &pg.Batch{}
	for _, e := range edges {
		props, err := json.Marshal(e.Props)
		if err != nil {
			return fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		batch.Queue(`
			INSERT INTO graph_edges (id, source_id, target_id, rel_type, props)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET source_id = $2, target_id = $3, rel_type = $4, props = $5`,
			e.ID, e.SourceID, e.TargetID, string(e.Type), props)
	}
	return wrapPgErr(s.pool.SendBatch(ctx, batch).Close())
}

func (s *Store) AnnotateNodes(ctx context.Context, attrs map[string]map[string]any) error {
	batch := &pg.Batch{}
	for id, merge := range attrs {
		encoded, err := json.Marshal(merge)
		if err != nil {
			return fmt.Errorf("encode annotation for %s: %w", id, err)
		}
		batch.Queue(
			"UPDATE graph_nodes SET attrs = attrs || $2::jsonb WHERE id = $1",
			id, encoded)
	}
	return wrapPgErr(s.pool.SendBatch(ctx, batch).Close())
}

func scanNode(row pg.Row) (graph.Node, error) {
	var (
		id, nodeType string
		attrsRaw     []byte
	)
	if err := row.Scan(&id, &nodeType, &attrsRaw); err != nil {
		return graph.Node{}, err
	}
	attrs, err := decodeJSON(attrsRaw)
	if err != nil {
		return graph.Node{}, err
	}
	return graph.Node{ID: id, Type: graph.NodeType(nodeType), Attrs: attrs}, nil
}

func decodeJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode jsonb: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// wrapPgErr marks connection-level failures as StoreUnavailableError so
// callers can distinguish them from logical errors.
func wrapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 covers connection exceptions.
		if strings.HasPrefix(pgErr.Code, "08") {
			return &store.StoreUnavailableError{Backend: "postgres", Err: err}
		}
		return err
	}
	if pgconn.SafeToRetry(err) {
		return &store.StoreUnavailableError{Backend: "postgres", Err: err}
	}
	return err
}
