package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"blockminds/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxTop = 500

// GetSnapshot godoc
// @Summary      Get the published snapshot
// @Description  Returns every record of the current snapshot. With top=N, the N best ranked assets by market cap.
// @Tags         snapshot
// @Produce      json
// @Param        top  query  int  false  "Limit to the N best ranked assets (max 500)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/snapshot [get]
func (h *Handler) GetSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-snapshot")
	defer span.End()

	var (
		records []domain.PublishedRecord
		err     error
	)
	if raw := c.Query("top"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 || n > maxTop {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be between 1 and 500"})
			return
		}
		records, err = h.snapshots.Top(ctx, n)
	} else {
		records, err = h.snapshots.Snapshot(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	snapshotID := ""
	if len(records) > 0 {
		snapshotID = records[0].SnapshotID
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": snapshotID,
		"count":       len(records),
		"records":     records,
	})
}

// GetAsset godoc
// @Summary      Get one asset from the published snapshot
// @Tags         snapshot
// @Produce      json
// @Param        asset_id  path  string  true  "Asset id (e.g., bitcoin)"
// @Success      200  {object}  domain.PublishedRecord
// @Failure      404  {object}  map[string]string
// @Router       /api/snapshot/{asset_id} [get]
func (h *Handler) GetAsset(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-asset")
	defer span.End()

	assetID := strings.ToLower(strings.TrimSpace(c.Param("asset_id")))
	span.SetAttributes(attribute.String("asset_id", assetID))

	record, err := h.snapshots.Asset(ctx, assetID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetHistory godoc
// @Summary      Get stored price history
// @Description  Returns the yearly daily series or the last day of hourly prices for an asset
// @Tags         history
// @Produce      json
// @Param        asset_id  path   string  true   "Asset id"
// @Param        window    query  string  false  "History window (yearly, hourly)"  default(yearly)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/history/{asset_id} [get]
func (h *Handler) GetHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-history")
	defer span.End()

	assetID := strings.ToLower(strings.TrimSpace(c.Param("asset_id")))
	window := domain.HistoryWindow(c.DefaultQuery("window", string(domain.WindowYearly)))
	span.SetAttributes(attribute.String("asset_id", assetID), attribute.String("window", string(window)))

	if !window.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported window: " + string(window),
			"supported_windows": []domain.HistoryWindow{domain.WindowYearly, domain.WindowHourly},
		})
		return
	}

	series, err := h.snapshots.History(ctx, assetID, window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset_id": assetID,
		"window":   window,
		"points":   series.Points,
	})
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
