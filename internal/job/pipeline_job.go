package job

import (
	"context"
	"errors"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type PipelineRunner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// PipelineJob runs the pipeline on a fixed interval. Each run gets its own
// timeout so a stuck upstream cannot hold the schedule forever.
type PipelineJob struct {
	tracer       trace.Tracer
	runner       PipelineRunner
	interval     time.Duration
	startupDelay time.Duration
	runTimeout   time.Duration
	logger       zerolog.Logger
}

func NewPipelineJob(tracer trace.Tracer, runner PipelineRunner, interval, startupDelay, runTimeout time.Duration, logger zerolog.Logger) *PipelineJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if startupDelay < 0 {
		startupDelay = 0
	}
	return &PipelineJob{
		tracer:       tracer,
		runner:       runner,
		interval:     interval,
		startupDelay: startupDelay,
		runTimeout:   runTimeout,
		logger:       logging.Component(logger, "pipeline-job"),
	}
}

// Start blocks until ctx is cancelled.
func (j *PipelineJob) Start(ctx context.Context) {
	if j.runner == nil {
		j.logger.Info().Msg("pipeline job disabled: no runner")
		<-ctx.Done()
		return
	}
	if !wait(ctx, j.startupDelay) {
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("pipeline job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PipelineJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "pipeline-job.run-once")
	defer span.End()

	if j.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.runTimeout)
		defer cancel()
	}

	report, err := j.runner.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		j.logger.Info().Msg("previous pipeline run still in progress, skipping tick")
	case errors.Is(err, domain.ErrLockHeld):
		j.logger.Info().Msg("another process is publishing, skipping tick")
	case err != nil:
		j.logger.Error().Err(err).Str("run_id", report.RunID).Msg("scheduled pipeline run failed")
	default:
		j.logger.Info().
			Str("run_id", report.RunID).
			Int("published", report.Published).
			Int("failed", len(report.Failed)).
			Msg("scheduled pipeline run finished")
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
