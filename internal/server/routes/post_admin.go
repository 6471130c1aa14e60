package routes

import (
	"encoding/json"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/offshore-atlas/backend/internal/queue"
	"github.com/offshore-atlas/backend/internal/server/middleware"
	"github.com/offshore-atlas/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

func PostSeedHandler(c echo.Context) error {
	type seedParams struct {
		BundlePrefix string `json:"bundle_prefix" validate:"required"`
		BatchSize    int    `json:"batch_size" validate:"omitempty,min=1,max=10000"`
	}

	type seedResponse struct {
		Message string `json:"message"`
		JobID   string `json:"job_id,omitempty"`
	}

	params := new(seedParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, seedResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, seedResponse{Message: "Invalid request params"})
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, seedResponse{Message: "Internal server error"})
	}

	msg, err := json.Marshal(queue.SeedMessage{
		JobID:        jobID,
		BundlePrefix: params.BundlePrefix,
		BatchSize:    params.BatchSize,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, seedResponse{Message: "Internal server error"})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.SeedQueue, msg); err != nil {
		logger.Error("Failed to publish seed job", "job_id", jobID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, seedResponse{Message: "Queue unavailable"})
	}

	return c.JSON(http.StatusAccepted, seedResponse{
		Message: "Seed job queued",
		JobID:   jobID,
	})
}

func PostAnnotateHandler(c echo.Context) error {
	type annotateParams struct {
		Key string `json:"key" validate:"required"`
	}

	type annotateResponse struct {
		Message string `json:"message"`
		JobID   string `json:"job_id,omitempty"`
	}

	params := new(annotateParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, annotateResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, annotateResponse{Message: "Invalid request params"})
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, annotateResponse{Message: "Internal server error"})
	}

	msg, err := json.Marshal(queue.AnnotateMessage{
		JobID: jobID,
		Key:   params.Key,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, annotateResponse{Message: "Internal server error"})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.AnnotateQueue, msg); err != nil {
		logger.Error("Failed to publish annotate job", "job_id", jobID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, annotateResponse{Message: "Queue unavailable"})
	}

	return c.JSON(http.StatusAccepted, annotateResponse{
		Message: "Annotation job queued",
		JobID:   jobID,
	})
}
