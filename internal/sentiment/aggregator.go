// Package sentiment gathers posts and articles about an asset from a chain of
// providers and reduces them to one SentimentSummary.
package sentiment

import (
	"context"
	"errors"
	"math"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"
	"blockminds/internal/provider"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Provider is one paginated social or news source.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int, cursor string) (provider.SearchPage, error)
}

// PriceSource serves the price range used for post-time price correlation.
type PriceSource interface {
	FetchPriceRange(ctx context.Context, assetID string, from, to time.Time) (domain.PriceSeries, error)
}

type Options struct {
	TargetCount        int
	PageSize           int
	MaxPages           int
	TrendingSentiment  float64
	TrendingEngagement float64
	PriceCorrelation   bool
	PriceWindow        time.Duration
	PriceTolerance     time.Duration
}

func DefaultOptions() Options {
	return Options{
		TargetCount:        100,
		PageSize:           100,
		MaxPages:           10,
		TrendingSentiment:  0.2,
		TrendingEngagement: 10,
		PriceWindow:        6 * time.Hour,
		PriceTolerance:     2 * time.Hour,
	}
}

// Result is the summary plus everything needed to explain it.
type Result struct {
	Summary domain.SentimentSummary
	Items   []domain.SentimentItem
	Errors  []domain.ProviderError
}

type Aggregator struct {
	providers []Provider
	scorer    *Scorer
	prices    PriceSource
	opts      Options
	tracer    trace.Tracer
	logger    zerolog.Logger
}

func NewAggregator(providers []Provider, scorer *Scorer, prices PriceSource, opts Options, tracer trace.Tracer, logger zerolog.Logger) *Aggregator {
	def := DefaultOptions()
	if opts.TargetCount <= 0 {
		opts.TargetCount = def.TargetCount
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.PriceWindow <= 0 {
		opts.PriceWindow = def.PriceWindow
	}
	if scorer == nil {
		scorer = NewScorer(nil, DefaultThresholds(), nil, 0, logger)
	}
	return &Aggregator{
		providers: providers,
		scorer:    scorer,
		prices:    prices,
		opts:      opts,
		tracer:    tracer,
		logger:    logging.Component(logger, "sentiment"),
	}
}

// Aggregate collects up to target items for query, trying providers in order
// and moving on whenever one fails or runs dry. It never returns an error:
// provider failures are listed in Result.Errors and an empty collection
// yields the neutral summary.
func (a *Aggregator) Aggregate(ctx context.Context, query string, target int) Result {
	ctx, span := a.tracer.Start(ctx, "sentiment.aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	if target <= 0 {
		target = a.opts.TargetCount
	}
	items, errs := a.collect(ctx, query, target)
	a.scorer.Score(ctx, items)

	summary := a.summarize(query, items)
	summary.Exhausted = len(items) < target
	span.SetAttributes(attribute.Int("volume", summary.Volume))
	return Result{Summary: summary, Items: items, Errors: errs}
}

// AggregateAsset aggregates by the asset's name and, when enabled, attaches
// prices at and after each item's publication time.
func (a *Aggregator) AggregateAsset(ctx context.Context, asset domain.AssetRef, target int) Result {
	query := asset.Name
	if query == "" {
		query = asset.ID
	}
	res := a.Aggregate(ctx, query, target)
	if a.opts.PriceCorrelation && a.prices != nil && len(res.Items) > 0 {
		if err := a.correlate(ctx, asset.ID, res.Items); err != nil {
			a.logger.Warn().Str("asset_id", asset.ID).Err(err).Msg("price correlation skipped")
			res.Errors = append(res.Errors, domain.ProviderError{AssetID: asset.ID, Provider: "price_correlation", Error: err.Error()})
		}
		res.Summary.TopItem = a.topItem(res.Items)
	}
	for i := range res.Errors {
		res.Errors[i].AssetID = asset.ID
	}
	return res
}

func (a *Aggregator) collect(ctx context.Context, query string, target int) ([]domain.SentimentItem, []domain.ProviderError) {
	items := make([]domain.SentimentItem, 0, target)
	seen := make(map[string]struct{})
	var errs []domain.ProviderError

	for _, p := range a.providers {
		if len(items) >= target || ctx.Err() != nil {
			break
		}
		log := a.logger.With().Str("provider", p.Name()).Str("query", query).Logger()
		cursor := ""
		for page := 0; page < a.opts.MaxPages && len(items) < target; page++ {
			if ctx.Err() != nil {
				break
			}
			// Page size is fixed across pages; page-numbered APIs address
			// rows by page*size. Surplus items are dropped below.
			res, err := p.Search(ctx, query, a.opts.PageSize, cursor)
			if err != nil {
				if !errors.Is(err, provider.ErrNoAPIKey) {
					log.Warn().Err(err).Msg("provider failed, moving on")
				}
				errs = append(errs, domain.ProviderError{Provider: p.Name(), Error: err.Error()})
				break
			}
			for _, c := range res.Items {
				key := p.Name() + "|" + c.SourceItemID
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				items = append(items, toItem(c))
				if len(items) >= target {
					break
				}
			}
			// Only a missing cursor ends a source. Filtered sources can
			// return empty pages with matches further on.
			if res.Next == "" {
				break
			}
			cursor = res.Next
		}
		log.Debug().Int("collected", len(items)).Msg("provider done")
	}
	return items, errs
}

func toItem(c provider.ContentItem) domain.SentimentItem {
	return domain.SentimentItem{
		Source:      c.Source,
		ID:          c.SourceItemID,
		Title:       c.Title,
		URL:         c.URL,
		Author:      c.Author,
		Excerpt:     c.Excerpt,
		ImageURL:    c.ImageURL,
		PublishedAt: c.PublishedAt,
		Upvotes:     c.Upvotes,
		Comments:    c.Comments,
	}
}

func (a *Aggregator) summarize(query string, items []domain.SentimentItem) domain.SentimentSummary {
	summary := domain.EmptySentiment(query)
	n := len(items)
	if n == 0 {
		return summary
	}

	var sumScore, sumUp, sumComments float64
	var positive, negative int
	var first, last time.Time
	summary.SourceCounts = make(map[string]int)
	for _, item := range items {
		sumScore += item.Score
		sumUp += item.Upvotes
		sumComments += item.Comments
		switch item.Label {
		case domain.SentimentPositive:
			positive++
		case domain.SentimentNegative:
			negative++
		}
		summary.SourceCounts[item.Source]++
		if item.PublishedAt.IsZero() {
			continue
		}
		if first.IsZero() || item.PublishedAt.Before(first) {
			first = item.PublishedAt
		}
		if last.IsZero() || item.PublishedAt.After(last) {
			last = item.PublishedAt
		}
	}

	count := float64(n)
	summary.Volume = n
	summary.AvgSentiment = sumScore / count
	summary.Label = a.scorer.thresholds.Label(summary.AvgSentiment)
	summary.AvgUpvotes = sumUp / count
	summary.AvgComments = sumComments / count
	summary.EngagementRate = (sumUp + sumComments) / count
	summary.PositiveRatio = float64(positive) / count
	summary.NegativeRatio = float64(negative) / count

	days := 0.0
	if !first.IsZero() {
		days = last.Sub(first).Hours() / 24
	}
	summary.MentionsPerDay = count / math.Max(1, days)

	if summary.AvgSentiment > a.opts.TrendingSentiment || summary.EngagementRate > a.opts.TrendingEngagement {
		summary.Trending = domain.TrendingYes
	}
	summary.TopItem = a.topItem(items)
	return summary
}

// topItem is the highest-engagement item; the earliest collected wins ties.
func (a *Aggregator) topItem(items []domain.SentimentItem) *domain.SentimentItem {
	if len(items) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(items); i++ {
		if items[i].Engagement() > items[best].Engagement() {
			best = i
		}
	}
	top := items[best]
	return &top
}

func (a *Aggregator) correlate(ctx context.Context, assetID string, items []domain.SentimentItem) error {
	var from, to time.Time
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			continue
		}
		if from.IsZero() || item.PublishedAt.Before(from) {
			from = item.PublishedAt
		}
		if to.IsZero() || item.PublishedAt.After(to) {
			to = item.PublishedAt
		}
	}
	if from.IsZero() {
		return nil
	}

	series, err := a.prices.FetchPriceRange(ctx, assetID, from.Add(-a.opts.PriceTolerance), to.Add(a.opts.PriceWindow+a.opts.PriceTolerance))
	if err != nil {
		return err
	}
	for i := range items {
		item := &items[i]
		if item.PublishedAt.IsZero() {
			continue
		}
		at, ok := series.Nearest(item.PublishedAt, a.opts.PriceTolerance)
		if !ok {
			continue
		}
		item.PriceAtPost = domain.Float(at.Price)
		after, ok := series.Nearest(item.PublishedAt.Add(a.opts.PriceWindow), a.opts.PriceTolerance)
		if !ok {
			continue
		}
		item.PriceAfter = domain.Float(after.Price)
		if at.Price != 0 {
			item.PriceChangePct = domain.Float((after.Price - at.Price) / at.Price * 100)
		}
	}
	return nil
}
