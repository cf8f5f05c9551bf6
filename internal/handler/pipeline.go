package handler

import (
	"errors"
	"net/http"

	"blockminds/internal/domain"

	"github.com/gin-gonic/gin"
)

// TriggerRun godoc
// @Summary      Start a pipeline run
// @Description  Starts collection, enrichment and publication in the background
// @Tags         pipeline
// @Produce      json
// @Security     ApiKeyAuth
// @Success      202  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/pipeline/run [post]
func (h *Handler) TriggerRun(c *gin.Context) {
	if h.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline trigger unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-run")
	defer span.End()

	if err := h.trigger.Trigger(ctx); err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// GetLatestRun godoc
// @Summary      Latest pipeline run
// @Description  Returns the report of the most recent run, including failed assets
// @Tags         pipeline
// @Produce      json
// @Success      200  {object}  domain.RunReport
// @Failure      404  {object}  map[string]string
// @Router       /api/runs/latest [get]
func (h *Handler) GetLatestRun(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-run")
	defer span.End()

	report, err := h.snapshots.LatestRun(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
