// Package collector fetches market snapshots for a batch of assets in
// rate-friendly chunks.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SnapshotFetcher fetches one asset's market snapshot.
type SnapshotFetcher interface {
	FetchMarketSnapshot(ctx context.Context, assetID string) (*domain.MarketSnapshot, error)
}

type Options struct {
	ChunkSize  int
	Workers    int
	ChunkDelay time.Duration
}

func DefaultOptions() Options {
	return Options{ChunkSize: 4, Workers: 2, ChunkDelay: 50 * time.Second}
}

// Result is keyed by asset id. Order lists the succeeded ids in input order.
type Result struct {
	Snapshots  map[string]*domain.MarketSnapshot
	Order      []string
	Failed     []domain.AssetFailure
	Incomplete bool
}

// Rows returns the succeeded snapshots in input order.
func (r Result) Rows() []*domain.MarketSnapshot {
	return lo.Map(r.Order, func(id string, _ int) *domain.MarketSnapshot { return r.Snapshots[id] })
}

// FailedIDs returns the ids of assets with no snapshot this run.
func (r Result) FailedIDs() []string {
	return lo.Map(r.Failed, func(f domain.AssetFailure, _ int) string { return f.AssetID })
}

type Collector struct {
	fetcher SnapshotFetcher
	opts    Options
	tracer  trace.Tracer
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(fetcher SnapshotFetcher, opts Options, tracer trace.Tracer, logger zerolog.Logger) *Collector {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	}
	return &Collector{
		fetcher: fetcher,
		opts:    opts,
		tracer:  tracer,
		logger:  logging.Component(logger, "collector"),
		sleep:   sleepContext,
	}
}

// Collect fetches every id once in chunks, then retries the failures once.
// Assets that still fail are reported in Result.Failed and left out of the
// table. If ctx is cancelled the partial result is returned with Incomplete
// set, together with ctx.Err().
func (c *Collector) Collect(ctx context.Context, assetIDs []string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "collector.collect")
	defer span.End()

	ids := lo.Uniq(lo.Filter(assetIDs, func(id string, _ int) bool { return id != "" }))
	span.SetAttributes(attribute.Int("assets", len(ids)))

	state := &collectState{
		snapshots: make(map[string]*domain.MarketSnapshot, len(ids)),
		errs:      make(map[string]error),
	}

	chunks := lo.Chunk(ids, c.opts.ChunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return c.finish(ids, state, true), err
		}
		c.runPool(ctx, chunk, state)
		c.logger.Debug().Int("chunk", i+1).Int("chunks", len(chunks)).Msg("chunk collected")

		if i < len(chunks)-1 && c.opts.ChunkDelay > 0 {
			if err := c.sleep(ctx, c.opts.ChunkDelay); err != nil {
				return c.finish(ids, state, true), err
			}
		}
	}

	retry := lo.Filter(ids, func(id string, _ int) bool {
		_, failed := state.errs[id]
		return failed
	})
	if len(retry) > 0 {
		if err := ctx.Err(); err != nil {
			return c.finish(ids, state, true), err
		}
		c.logger.Info().Int("assets", len(retry)).Msg("retrying failed assets")
		c.runPool(ctx, retry, state)
	}

	if err := ctx.Err(); err != nil {
		return c.finish(ids, state, true), err
	}
	res := c.finish(ids, state, false)
	c.logger.Info().
		Int("requested", len(ids)).
		Int("collected", len(res.Order)).
		Int("failed", len(res.Failed)).
		Msg("collection finished")
	return res, nil
}

type collectState struct {
	mu        sync.Mutex
	snapshots map[string]*domain.MarketSnapshot
	errs      map[string]error
}

func (c *Collector) runPool(ctx context.Context, ids []string, state *collectState) {
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for _, id := range ids {
		g.Go(func() error {
			snap, err := c.fetcher.FetchMarketSnapshot(ctx, id)
			if err == nil && snap == nil {
				err = domain.ErrAssetUnavailable
			}
			state.mu.Lock()
			defer state.mu.Unlock()
			if err != nil {
				state.errs[id] = err
				c.logger.Warn().Str("asset_id", id).Err(err).Msg("snapshot fetch failed")
				return nil
			}
			snap.ROI = domain.ComputeROI(snap.CurrentPrice, snap.ATL)
			state.snapshots[id] = snap
			delete(state.errs, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Collector) finish(ids []string, state *collectState, incomplete bool) Result {
	state.mu.Lock()
	defer state.mu.Unlock()

	res := Result{Snapshots: state.snapshots, Incomplete: incomplete}
	for _, id := range ids {
		if _, ok := state.snapshots[id]; ok {
			res.Order = append(res.Order, id)
			continue
		}
		err, tried := state.errs[id]
		if !tried {
			if !incomplete {
				continue
			}
			err = context.Canceled
		}
		res.Failed = append(res.Failed, domain.AssetFailure{
			AssetID:   id,
			Reason:    err.Error(),
			Permanent: isPermanent(err),
		})
	}
	return res
}

type transient interface{ Transient() bool }

func isPermanent(err error) bool {
	var t transient
	if errors.As(err, &t) {
		return !t.Transient()
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
