package handler

import (
	"context"

	"blockminds/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SnapshotReader interface {
	Snapshot(ctx context.Context) ([]domain.PublishedRecord, error)
	Asset(ctx context.Context, assetID string) (domain.PublishedRecord, error)
	Top(ctx context.Context, n int) ([]domain.PublishedRecord, error)
	History(ctx context.Context, assetID string, window domain.HistoryWindow) (domain.PriceSeries, error)
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

type RunTrigger interface {
	Trigger(ctx context.Context) error
}

type Handler struct {
	tracer    trace.Tracer
	snapshots SnapshotReader
	trigger   RunTrigger
}

func New(tracer trace.Tracer, snapshots SnapshotReader, trigger RunTrigger) *Handler {
	return &Handler{
		tracer:    tracer,
		snapshots: snapshots,
		trigger:   trigger,
	}
}

// RegisterRoutes mounts the read API on r. Pipeline control routes go
// through protected, which may carry auth middleware.
func (h *Handler) RegisterRoutes(r *gin.Engine, protected ...gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/snapshot", h.GetSnapshot)
	api.GET("/snapshot/:asset_id", h.GetAsset)
	api.GET("/history/:asset_id", h.GetHistory)
	api.GET("/runs/latest", h.GetLatestRun)

	control := api.Group("/pipeline", protected...)
	control.POST("/run", h.TriggerRun)
}
