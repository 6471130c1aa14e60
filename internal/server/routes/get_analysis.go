package routes

import (
	"math"
	"net/http"

	"github.com/offshore-atlas/backend/internal/server/middleware"
	"github.com/offshore-atlas/backend/pkg/analysis"
	"github.com/offshore-atlas/backend/pkg/graph"
	"github.com/offshore-atlas/backend/pkg/hubs"

	"github.com/labstack/echo/v4"
)

func GetOwnershipHandler(c echo.Context) error {
	type ownershipParams struct {
		ID         string `param:"id" validate:"required"`
		MinDepth   int    `query:"min_depth" validate:"omitempty,min=0"`
		MaxDepth   int    `query:"max_depth" validate:"omitempty,min=0,max=10"`
		MaxResults int    `query:"max_results" validate:"omitempty,min=1,max=1000"`
	}

	params := new(ownershipParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	trace, err := app.Engine.TracePaths(ctx, params.ID, analysis.TraceOptions{
		MinDepth:   params.MinDepth,
		MaxDepth:   params.MaxDepth,
		MaxResults: params.MaxResults,
	})
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, trace)
}

func GetNetworkHandler(c echo.Context) error {
	type networkParams struct {
		ID    string `param:"id" validate:"required"`
		Depth int    `query:"depth" validate:"omitempty,min=1,max=4"`
	}

	params := new(networkParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	subgraph, err := app.Engine.Network(ctx, params.ID, params.Depth)
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, subgraph)
}

func GetRiskHandler(c echo.Context) error {
	type riskParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(riskParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	assessment, err := app.Engine.ClassifyRisk(ctx, params.ID)
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}

func GetTopInfluentialHandler(c echo.Context) error {
	type topParams struct {
		Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
	}

	params := new(topParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	ranked, err := app.Engine.TopInfluential(ctx, params.Limit)
	if err != nil {
		return writeStoreError(c, err)
	}

	// Percentile is relative to the returned set, rank 1 being the top.
	type influenceScore struct {
		hubs.RankedNode
		Percentile float64 `json:"percentile"`
	}
	total := len(ranked)
	scores := make([]influenceScore, total)
	for i, rn := range ranked {
		pct := float64(total-rn.Rank+1) / float64(total) * 100
		scores[i] = influenceScore{RankedNode: rn, Percentile: math.Round(pct*100) / 100}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"metric":  "pagerank_score",
		"results": scores,
	})
}

func GetTopConnectedHandler(c echo.Context) error {
	type topParams struct {
		Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
	}

	params := new(topParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	ranked, err := app.Engine.TopConnected(ctx, params.Limit)
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"metric":  "degree_centrality",
		"results": ranked,
	})
}

func GetHubsHandler(c echo.Context) error {
	type hubsParams struct {
		NodeType string `param:"node_type" validate:"required,oneof=Entity Person Officer Company Intermediary Address Jurisdiction"`
		RelType  string `query:"rel_type" validate:"omitempty,oneof=OWNS CONTROLS REGISTERED_IN HAS_ADDRESS CREATED_BY INVOLVED_IN CONNECTED_TO RELATED_TO"`
		Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
	}

	params := new(hubsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	ranked, err := app.Engine.TopHubs(ctx, graph.NodeType(params.NodeType), graph.RelType(params.RelType), params.Limit)
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"node_type": params.NodeType,
		"rel_type":  params.RelType,
		"results":   ranked,
	})
}
