package job

import (
	"context"
	"time"

	"blockminds/internal/logging"
	"blockminds/internal/pipeline"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type HistoryRefresher interface {
	RefreshHourlyHistory(ctx context.Context) (pipeline.HistoryReport, error)
}

// HistoryJob replaces the hourly price history on a fixed interval,
// independent of the snapshot cycle.
type HistoryJob struct {
	tracer    trace.Tracer
	refresher HistoryRefresher
	interval  time.Duration
	logger    zerolog.Logger
}

func NewHistoryJob(tracer trace.Tracer, refresher HistoryRefresher, interval time.Duration, logger zerolog.Logger) *HistoryJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HistoryJob{
		tracer:    tracer,
		refresher: refresher,
		interval:  interval,
		logger:    logging.Component(logger, "history-job"),
	}
}

func (j *HistoryJob) Start(ctx context.Context) {
	if j.refresher == nil {
		j.logger.Info().Msg("history job disabled: no refresher")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *HistoryJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "history-job.run-once")
	defer span.End()

	rep, err := j.refresher.RefreshHourlyHistory(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("hourly history refresh failed")
		return
	}
	if len(rep.Failed) > 0 {
		j.logger.Warn().Strs("assets", rep.Failed).Msg("hourly history incomplete")
	}
}
