package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/rs/zerolog"
)

type PipelineRunner interface {
	Run(ctx context.Context) (domain.RunReport, error)
	Running() bool
}

// RunTrigger starts pipeline runs on request without blocking the caller.
type RunTrigger struct {
	runner  PipelineRunner
	timeout time.Duration
	logger  zerolog.Logger
	busy    atomic.Bool
	done    func(domain.RunReport, error)
}

func NewRunTrigger(runner PipelineRunner, timeout time.Duration, logger zerolog.Logger) *RunTrigger {
	return &RunTrigger{
		runner:  runner,
		timeout: timeout,
		logger:  logging.Component(logger, "run-trigger"),
	}
}

// Trigger starts a run in the background. It returns domain.ErrRunInProgress
// when a run, scheduled or triggered, is already going.
func (t *RunTrigger) Trigger(ctx context.Context) error {
	if t.runner.Running() || !t.busy.CompareAndSwap(false, true) {
		return domain.ErrRunInProgress
	}

	runCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
	}
	go func() {
		defer t.busy.Store(false)
		defer cancel()
		report, err := t.runner.Run(runCtx)
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			t.logger.Info().Msg("triggered run skipped: run in progress")
		case err != nil:
			t.logger.Error().Err(err).Str("run_id", report.RunID).Msg("triggered run failed")
		default:
			t.logger.Info().Str("run_id", report.RunID).Int("published", report.Published).Msg("triggered run finished")
		}
		if t.done != nil {
			t.done(report, err)
		}
	}()
	return nil
}
