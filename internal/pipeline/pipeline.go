// Package pipeline runs one collection and enrichment cycle end to end:
// resolve the asset universe, collect market snapshots, compute indicators,
// aggregate sentiment, resolve on-chain info and publish the merged records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"blockminds/internal/collector"
	"blockminds/internal/domain"
	"blockminds/internal/logging"
	"blockminds/internal/notify"
	"blockminds/internal/publisher"
	"blockminds/internal/sentiment"
	"blockminds/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MarketSource is the upstream market data API.
type MarketSource interface {
	FetchPriceSeries(ctx context.Context, assetID string, days int) (domain.PriceSeries, error)
	FetchCatalog(ctx context.Context) ([]domain.CatalogEntry, error)
}

type Collector interface {
	Collect(ctx context.Context, assetIDs []string) (collector.Result, error)
}

type IndicatorEngine interface {
	Compute(series domain.PriceSeries) domain.IndicatorSet
}

type SentimentAggregator interface {
	AggregateAsset(ctx context.Context, asset domain.AssetRef, target int) sentiment.Result
}

type OnChainResolver interface {
	Resolve(ctx context.Context, snap *domain.MarketSnapshot) (domain.OnChainInfo, error)
}

type Publisher interface {
	Publish(ctx context.Context, runID string, records []domain.PublishedRecord) (publisher.Result, error)
}

// Deps are the pipeline's collaborators. Sentiment, OnChain and Notifier
// are optional.
type Deps struct {
	Market     MarketSource
	Collector  Collector
	Indicators IndicatorEngine
	Sentiment  SentimentAggregator
	OnChain    OnChainResolver
	Publisher  Publisher
	Universe   store.UniverseStore
	History    store.HistoryStore
	Runs       store.RunStore
	Notifier   notify.Notifier
}

type Options struct {
	// Assets overrides the portfolio with explicit asset ids.
	Assets          []string
	HistoryDays     int
	SentimentTarget int
	EnrichWorkers   int
}

func DefaultOptions() Options {
	return Options{HistoryDays: 365, SentimentTarget: 100, EnrichWorkers: 2}
}

type Pipeline struct {
	deps    Deps
	opts    Options
	tracer  trace.Tracer
	logger  zerolog.Logger
	running atomic.Bool
	now     func() time.Time
	newID   func() string
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notify.Event) {}

func New(deps Deps, opts Options, tracer trace.Tracer, logger zerolog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = def.HistoryDays
	}
	if opts.SentimentTarget <= 0 {
		opts.SentimentTarget = def.SentimentTarget
	}
	if opts.EnrichWorkers <= 0 {
		opts.EnrichWorkers = def.EnrichWorkers
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		tracer: tracer,
		logger: logging.Component(logger, "pipeline"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Running reports whether a run is in progress in this process.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run executes one cycle. Per-asset and per-provider failures end up in the
// report; only universe, publish and cancellation errors are returned.
// A second concurrent call returns domain.ErrRunInProgress.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return domain.RunReport{}, domain.ErrRunInProgress
	}
	defer p.running.Store(false)

	report := domain.RunReport{
		RunID:     p.newID(),
		StartedAt: p.now().UTC(),
		Status:    domain.RunRunning,
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", report.RunID))

	log := p.logger.With().Str("run_id", report.RunID).Logger()
	p.saveRun(ctx, report, log)

	err := p.run(ctx, &report, log)

	report.FinishedAt = p.now().UTC()
	switch {
	case err == nil:
		report.Status = domain.RunSucceeded
		log.Info().
			Int("requested", report.Requested).
			Int("published", report.Published).
			Int("failed", len(report.Failed)).
			Msg("pipeline run succeeded")
		p.deps.Notifier.Notify(ctx, notify.Event{
			Kind:      notify.EventSucceeded,
			RunID:     report.RunID,
			Requested: report.Requested,
			Published: report.Published,
			Failed:    report.FailedIDs(),
		})
	default:
		report.Status = domain.RunFailed
		if errors.Is(err, domain.ErrRunIncomplete) {
			report.Status = domain.RunIncomplete
		}
		report.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("status", string(report.Status)).Msg("pipeline run failed")
		p.deps.Notifier.Notify(ctx, notify.Event{
			Kind:  notify.EventFailed,
			RunID: report.RunID,
			Error: err.Error(),
		})
	}
	p.saveRun(ctx, report, log)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *domain.RunReport, log zerolog.Logger) error {
	universe, err := ResolveUniverse(ctx, p.deps.Universe, p.opts.Assets)
	if err != nil {
		return err
	}
	report.Unresolved = universe.Unresolved
	report.Requested = len(universe.Assets)
	if len(universe.Unresolved) > 0 {
		log.Warn().Strs("names", universe.Unresolved).Msg("portfolio names without a unique catalog match")
	}
	if len(universe.Assets) == 0 {
		return domain.ErrNoAssets
	}

	p.deps.Notifier.Notify(ctx, notify.Event{
		Kind:      notify.EventStarted,
		RunID:     report.RunID,
		Requested: report.Requested,
	})

	collected, err := p.deps.Collector.Collect(ctx, universe.IDs())
	report.Failed = collected.Failed
	report.Collected = len(collected.Order)
	if err != nil || collected.Incomplete {
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("%w: collection interrupted: %v", domain.ErrRunIncomplete, err)
	}
	if len(collected.Order) == 0 {
		return fmt.Errorf("%w: every asset failed to collect", domain.ErrNoAssets)
	}

	refs := make(map[string]domain.AssetRef, len(universe.Assets))
	for _, a := range universe.Assets {
		refs[a.ID] = a
	}
	records, dropped, providerErrs := p.enrich(ctx, collected, refs, log)
	report.ProviderErrors = providerErrs
	report.Failed = append(report.Failed, dropped...)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: enrichment interrupted: %v", domain.ErrRunIncomplete, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: no asset has a price history", domain.ErrNoAssets)
	}

	res, err := p.deps.Publisher.Publish(ctx, report.RunID, records)
	if err != nil {
		return err
	}
	report.Published = res.Published
	return nil
}

// enrich computes indicators, sentiment and on-chain info for every
// collected asset on a bounded pool. Records keep collection order. An asset
// whose price history cannot be fetched is dropped and returned as a failure;
// other enrichment failures leave their fields null.
func (p *Pipeline) enrich(ctx context.Context, collected collector.Result, refs map[string]domain.AssetRef, log zerolog.Logger) ([]domain.PublishedRecord, []domain.AssetFailure, []domain.ProviderError) {
	ctx, span := p.tracer.Start(ctx, "pipeline.enrich")
	defer span.End()

	records := make([]domain.PublishedRecord, len(collected.Order))
	kept := make([]bool, len(collected.Order))
	dropped := make([]*domain.AssetFailure, len(collected.Order))
	var (
		mu   sync.Mutex
		errs []domain.ProviderError
	)
	report := func(assetID, source string, err error) {
		log.Warn().Str("asset_id", assetID).Str("provider", source).Err(err).Msg("enrichment step failed")
		mu.Lock()
		errs = append(errs, domain.ProviderError{AssetID: assetID, Provider: source, Error: err.Error()})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.opts.EnrichWorkers)
	for i, id := range collected.Order {
		snap := collected.Snapshots[id]
		ref, ok := refs[id]
		if !ok || ref.Name == "" {
			ref = domain.AssetRef{ID: id, Name: snap.Name, Symbol: snap.Symbol}
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			in := publisher.Inputs{Snapshot: *snap}

			series, err := p.deps.Market.FetchPriceSeries(ctx, id, p.opts.HistoryDays)
			if err != nil {
				log.Warn().Str("asset_id", id).Err(err).Msg("price history unavailable, asset dropped")
				dropped[i] = &domain.AssetFailure{
					AssetID:   id,
					Reason:    "price history: " + err.Error(),
					Permanent: permanent(err),
				}
				return nil
			}
			if p.deps.History != nil {
				if err := p.deps.History.SaveHistory(ctx, domain.WindowYearly, series); err != nil {
					report(id, "history_store", err)
				}
			}
			in.Indicators = p.deps.Indicators.Compute(series)
			in.Indicators.AssetID = id

			if p.deps.Sentiment != nil {
				res := p.deps.Sentiment.AggregateAsset(ctx, ref, p.opts.SentimentTarget)
				in.Sentiment = res.Summary
				if len(res.Errors) > 0 {
					mu.Lock()
					errs = append(errs, res.Errors...)
					mu.Unlock()
				}
			} else {
				in.Sentiment = domain.EmptySentiment(ref.Name)
			}

			if p.deps.OnChain != nil {
				info, err := p.deps.OnChain.Resolve(ctx, snap)
				if err != nil {
					report(id, "onchain", err)
				}
				in.OnChain = info
			}

			records[i] = publisher.BuildRecord(in)
			kept[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.PublishedRecord, 0, len(records))
	var failures []domain.AssetFailure
	for i := range records {
		switch {
		case kept[i]:
			out = append(out, records[i])
		case dropped[i] != nil:
			failures = append(failures, *dropped[i])
		}
	}
	span.SetAttributes(
		attribute.Int("records", len(out)),
		attribute.Int("dropped", len(failures)),
		attribute.Int("provider_errors", len(errs)),
	)
	return out, failures, errs
}

// permanent reports whether err says retrying next run will not help.
func permanent(err error) bool {
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return !t.Transient()
	}
	return false
}

func (p *Pipeline) saveRun(ctx context.Context, report domain.RunReport, log zerolog.Logger) {
	if p.deps.Runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Runs.SaveRun(saveCtx, report); err != nil {
		log.Warn().Err(err).Msg("save run report")
	}
}
