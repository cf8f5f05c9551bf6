package handler

import (
	"context"
	"net/http"
	"time"

	"blockminds/internal/version"

	"github.com/gin-gonic/gin"
)

const healthRunTimeout = 2 * time.Second

// Health godoc
// @Summary      Health check
// @Description  Reports liveness, the build version and the status of the latest pipeline run
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "healthy", "version": version.Version}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthRunTimeout)
	defer cancel()
	if run, err := h.snapshots.LatestRun(ctx); err == nil {
		body["last_run_status"] = string(run.Status)
		body["last_run_at"] = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}
