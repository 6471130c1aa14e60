package server

import (
	"github.com/offshore-atlas/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Entity lookup routes
	apiRoutes.GET("/entities/search", routes.SearchEntitiesHandler)
	apiRoutes.GET("/entities/by-jurisdiction/:code", routes.GetEntitiesByJurisdictionHandler)
	apiRoutes.GET("/entities/top/influential", routes.GetTopInfluentialHandler)
	apiRoutes.GET("/entities/top/connected", routes.GetTopConnectedHandler)
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler)

	// Analysis routes
	apiRoutes.GET("/entities/:id/ownership", routes.GetOwnershipHandler)
	apiRoutes.GET("/entities/:id/network", routes.GetNetworkHandler)
	apiRoutes.GET("/entities/:id/risk", routes.GetRiskHandler)
	apiRoutes.GET("/hubs/:node_type", routes.GetHubsHandler)

	// ETL admin routes
	apiRoutes.POST("/admin/seed", routes.PostSeedHandler)
	apiRoutes.POST("/admin/annotate", routes.PostAnnotateHandler)
}
