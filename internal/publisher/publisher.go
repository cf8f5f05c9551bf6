// Package publisher replaces the published snapshot. New records are staged
// under a fresh snapshot id and swapped in only after every write succeeded,
// so a failed publish leaves the previous snapshot readable.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"
	"blockminds/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LockKey serializes publishers across processes.
const LockKey = "blockminds:publish-lock"

// Locker takes a cross-process lock and returns its release func.
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

type Result struct {
	SnapshotID string
	Published  int
}

type Publisher struct {
	store  store.SnapshotStore
	locker Locker
	tracer trace.Tracer
	logger zerolog.Logger

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// New returns a Publisher. A nil locker limits serialization to this process.
func New(s store.SnapshotStore, locker Locker, tracer trace.Tracer, logger zerolog.Logger) *Publisher {
	return &Publisher{
		store:  s,
		locker: locker,
		tracer: tracer,
		logger: logging.Component(logger, "publisher"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Publish makes records the current snapshot for runID. Errors from the
// store wrap domain.ErrPublishFailed; the previous snapshot stays current.
func (p *Publisher) Publish(ctx context.Context, runID string, records []domain.PublishedRecord) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "publisher.publish")
	defer span.End()

	records = lo.UniqBy(records, func(r domain.PublishedRecord) string { return r.AssetID })
	if len(records) == 0 {
		return Result{}, domain.ErrNoAssets
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.locker != nil {
		release, err := p.locker.Lock(ctx, LockKey)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return Result{}, err
			}
			return Result{}, fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
		}
		defer func() {
			// A lock left behind expires after its TTL.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				p.logger.Warn().Err(err).Msg("release publish lock")
			}
		}()
	}

	snapshotID := p.newID()
	published := p.now().UTC()
	staged := make([]domain.PublishedRecord, len(records))
	for i, r := range records {
		r.SnapshotID = snapshotID
		r.RunID = runID
		r.Published = published
		Sanitize(&r)
		staged[i] = r
	}
	span.SetAttributes(
		attribute.String("snapshot_id", snapshotID),
		attribute.Int("records", len(staged)),
	)

	log := p.logger.With().Str("run_id", runID).Str("snapshot_id", snapshotID).Logger()

	if err := p.store.Stage(ctx, snapshotID, staged); err != nil {
		p.discard(ctx, snapshotID, log)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%w: stage snapshot: %w", domain.ErrPublishFailed, err)
	}

	if err := ctx.Err(); err != nil {
		p.discard(ctx, snapshotID, log)
		return Result{}, fmt.Errorf("%w: %w", domain.ErrRunIncomplete, err)
	}

	if err := p.store.Swap(ctx, snapshotID, len(staged)); err != nil {
		p.discard(ctx, snapshotID, log)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%w: swap snapshot: %w", domain.ErrPublishFailed, err)
	}

	log.Info().Int("records", len(staged)).Msg("snapshot published")
	return Result{SnapshotID: snapshotID, Published: len(staged)}, nil
}

func (p *Publisher) discard(ctx context.Context, snapshotID string, log zerolog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.Discard(cleanupCtx, snapshotID); err != nil {
		log.Warn().Err(err).Msg("discard staged snapshot")
	}
}
