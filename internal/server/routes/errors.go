package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/offshore-atlas/backend/pkg/store"
	"github.com/offshore-atlas/backend/pkg/traverse"
)

// writeStoreError maps the store and traversal error taxonomy onto HTTP
// statuses: unknown ids are 404, malformed bounds 400, backend loss 503.
func writeStoreError(c echo.Context, err error) error {
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": nf.Error()})
	}
	var ib *traverse.InvalidBoundError
	if errors.As(err, &ib) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ib.Error()})
	}
	var su *store.StoreUnavailableError
	if errors.As(err, &su) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "graph store unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
