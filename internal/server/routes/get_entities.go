package routes

import (
	"net/http"

	"github.com/offshore-atlas/backend/internal/server/middleware"
	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// analyticsAttrs are the externally computed scores attached by the
// annotate worker. They are stripped when include_analytics=false.
var analyticsAttrs = []string{"pagerank_score", "community_id", "degree_centrality", "betweenness_score"}

func GetEntityHandler(c echo.Context) error {
	type getEntityParams struct {
		ID               string `param:"id" validate:"required"`
		IncludeAnalytics *bool  `query:"include_analytics"`
		IncludeCounts    bool   `query:"include_counts"`
	}

	params := new(getEntityParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	node, err := app.Store.GetNode(ctx, params.ID)
	if err != nil {
		return writeStoreError(c, err)
	}

	if params.IncludeAnalytics != nil && !*params.IncludeAnalytics {
		attrs := make(map[string]any, len(node.Attrs))
		for k, v := range node.Attrs {
			attrs[k] = v
		}
		for _, key := range analyticsAttrs {
			delete(attrs, key)
		}
		node.Attrs = attrs
	}

	if !params.IncludeCounts {
		return c.JSON(http.StatusOK, node)
	}

	owners, err := app.Store.Neighbors(ctx, params.ID, []graph.RelType{graph.RelOwns}, graph.DirectionIn)
	if err != nil {
		return writeStoreError(c, err)
	}
	subsidiaries, err := app.Store.Neighbors(ctx, params.ID, []graph.RelType{graph.RelOwns}, graph.DirectionOut)
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":               node.ID,
		"type":             node.Type,
		"attributes":       node.Attrs,
		"owner_count":      distinctNodeCount(owners),
		"subsidiary_count": distinctNodeCount(subsidiaries),
	})
}

func distinctNodeCount(neighbors []store.Neighbor) int {
	seen := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		seen[n.Node.ID] = struct{}{}
	}
	return len(seen)
}

func SearchEntitiesHandler(c echo.Context) error {
	type searchParams struct {
		Query        string `query:"q"`
		Type         string `query:"type"`
		Jurisdiction string `query:"jurisdiction"`
		Status       string `query:"status"`
		Limit        int    `query:"limit" validate:"omitempty,min=1,max=500"`
		Offset       int    `query:"offset" validate:"omitempty,min=0"`
	}

	params := new(searchParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Limit == 0 {
		params.Limit = 50
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	nodes, err := app.Store.FindNodes(ctx, store.NodeFilter{
		Type:         graph.NodeType(params.Type),
		Jurisdiction: params.Jurisdiction,
		NameContains: params.Query,
		Status:       params.Status,
		Limit:        params.Limit,
		Offset:       params.Offset,
	})
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":   len(nodes),
		"results": nodes,
	})
}

func GetEntitiesByJurisdictionHandler(c echo.Context) error {
	type byJurisdictionParams struct {
		Code   string `param:"code" validate:"required"`
		Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
		Offset int    `query:"offset" validate:"omitempty,min=0"`
	}

	params := new(byJurisdictionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Limit == 0 {
		params.Limit = 50
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	nodes, err := app.Store.FindNodes(ctx, store.NodeFilter{
		Type:         graph.NodeEntity,
		Jurisdiction: params.Code,
		Limit:        params.Limit,
		Offset:       params.Offset,
	})
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"jurisdiction": params.Code,
		"count":        len(nodes),
		"results":      nodes,
	})
}
