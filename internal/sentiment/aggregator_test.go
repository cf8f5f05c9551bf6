package sentiment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/provider"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type stubProvider struct {
	name  string
	pages []provider.SearchPage
	err   error
	calls []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, limit int, cursor string) (provider.SearchPage, error) {
	s.calls = append(s.calls, cursor)
	if s.err != nil {
		return provider.SearchPage{}, s.err
	}
	idx := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &idx)
	}
	if idx >= len(s.pages) {
		return provider.SearchPage{}, nil
	}
	page := s.pages[idx]
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
	}
	return page, nil
}

func contentItems(source string, n int, title string, start time.Time) []provider.ContentItem {
	out := make([]provider.ContentItem, n)
	for i := range out {
		out[i] = provider.ContentItem{
			Source:       source,
			SourceItemID: fmt.Sprintf("%s-%d", source, i),
			Title:        title,
			PublishedAt:  start.Add(time.Duration(i) * time.Hour),
			Upvotes:      1,
			Comments:     1,
		}
	}
	return out
}

func newTestAggregator(opts Options, providers ...Provider) *Aggregator {
	return NewAggregator(providers, nil, nil, opts, trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
}

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestAggregateFallsBackToSecondaryProvider(t *testing.T) {
	empty := &stubProvider{name: "reddit", pages: []provider.SearchPage{{}}}
	full := &stubProvider{name: "newsapi", pages: []provider.SearchPage{{Items: contentItems("newsapi", 10, "Bitcoin rally", t0)}}}
	agg := newTestAggregator(DefaultOptions(), empty, full)

	res := agg.Aggregate(context.Background(), "Bitcoin", 10)
	if res.Summary.Volume != 10 {
		t.Fatalf("expected volume 10, got %d", res.Summary.Volume)
	}
	if res.Summary.SourceCounts["newsapi"] != 10 || len(res.Summary.SourceCounts) != 1 {
		t.Fatalf("expected all items from the secondary source, got %v", res.Summary.SourceCounts)
	}
	if res.Summary.Exhausted {
		t.Fatal("expected target to be met")
	}
}

func TestAggregateAllEmptyIsNeutral(t *testing.T) {
	agg := newTestAggregator(DefaultOptions(),
		&stubProvider{name: "reddit", pages: []provider.SearchPage{{}}},
		&stubProvider{name: "newsapi", pages: []provider.SearchPage{{}}},
	)

	res := agg.Aggregate(context.Background(), "Bitcoin", 10)
	s := res.Summary
	if s.Volume != 0 || s.AvgSentiment != 0 || s.Label != domain.SentimentNeutral || s.Trending != domain.TrendingNo {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.Exhausted || s.TopItem != nil {
		t.Fatalf("expected exhausted summary without top item, got %+v", s)
	}
}

func TestAggregateSkipsFailingProvider(t *testing.T) {
	broken := &stubProvider{name: "reddit", err: errors.New("timeout")}
	ok := &stubProvider{name: "rss", pages: []provider.SearchPage{{Items: contentItems("rss", 3, "Bitcoin crash", t0)}}}
	agg := newTestAggregator(DefaultOptions(), broken, ok)

	res := agg.Aggregate(context.Background(), "Bitcoin", 5)
	if res.Summary.Volume != 3 {
		t.Fatalf("expected 3 items, got %d", res.Summary.Volume)
	}
	if len(res.Errors) != 1 || res.Errors[0].Provider != "reddit" {
		t.Fatalf("expected reddit failure to be reported, got %+v", res.Errors)
	}
	if res.Summary.Label != domain.SentimentNegative || !res.Summary.Exhausted {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}

func TestAggregatePaginatesUntilTarget(t *testing.T) {
	p := &stubProvider{name: "reddit", pages: []provider.SearchPage{
		{Items: contentItems("reddit", 4, "Bitcoin", t0), Next: "1"},
		{Items: contentItems("reddit", 8, "Bitcoin", t0)[4:], Next: "2"},
		{Items: contentItems("reddit", 12, "Bitcoin", t0)[8:], Next: "3"},
	}}
	secondary := &stubProvider{name: "newsapi"}
	agg := newTestAggregator(DefaultOptions(), p, secondary)

	res := agg.Aggregate(context.Background(), "Bitcoin", 6)
	if res.Summary.Volume != 6 {
		t.Fatalf("expected 6 items, got %d", res.Summary.Volume)
	}
	if len(p.calls) != 2 || p.calls[1] != "1" {
		t.Fatalf("expected two pages, got cursors %v", p.calls)
	}
	if len(secondary.calls) != 0 {
		t.Fatal("expected secondary provider to be skipped once target met")
	}
}

func TestAggregateMetrics(t *testing.T) {
	items := []provider.ContentItem{
		{Source: "reddit", SourceItemID: "a", Title: "Bitcoin surges to record", PublishedAt: t0, Upvotes: 30, Comments: 5},
		{Source: "reddit", SourceItemID: "b", Title: "Bitcoin weekly thread", PublishedAt: t0.Add(48 * time.Hour), Upvotes: 10, Comments: 5},
		{Source: "reddit", SourceItemID: "c", Title: "Bitcoin hack fears", PublishedAt: t0.Add(96 * time.Hour), Upvotes: 0, Comments: 0},
		{Source: "reddit", SourceItemID: "d", Title: "Bitcoin discussion", PublishedAt: t0.Add(24 * time.Hour), Upvotes: 35, Comments: 0},
	}
	agg := newTestAggregator(DefaultOptions(), &stubProvider{name: "reddit", pages: []provider.SearchPage{{Items: items}}})

	s := agg.Aggregate(context.Background(), "Bitcoin", 10).Summary
	if s.Volume != 4 {
		t.Fatalf("expected 4 items, got %d", s.Volume)
	}
	if s.AvgUpvotes != 18.75 || s.AvgComments != 2.5 || s.EngagementRate != 21.25 {
		t.Fatalf("unexpected engagement %+v", s)
	}
	if s.MentionsPerDay != 1 {
		t.Fatalf("expected 4 mentions over 4 days, got %v", s.MentionsPerDay)
	}
	if s.PositiveRatio != 0.25 || s.NegativeRatio != 0.25 {
		t.Fatalf("unexpected ratios %v %v", s.PositiveRatio, s.NegativeRatio)
	}
	if s.Trending != domain.TrendingYes {
		t.Fatal("expected trending on engagement rate above 10")
	}
	if s.TopItem == nil || s.TopItem.ID != "a" {
		t.Fatalf("expected first of the tied top items, got %+v", s.TopItem)
	}
}

func TestAggregateNotTrendingBelowThresholds(t *testing.T) {
	p := &stubProvider{name: "rss", pages: []provider.SearchPage{{Items: contentItems("rss", 2, "Bitcoin thread", t0)}}}
	s := newTestAggregator(DefaultOptions(), p).Aggregate(context.Background(), "Bitcoin", 2).Summary
	if s.Trending != domain.TrendingNo || s.MentionsPerDay != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

type stubPrices struct {
	series domain.PriceSeries
	err    error
	from   time.Time
	to     time.Time
}

func (s *stubPrices) FetchPriceRange(ctx context.Context, assetID string, from, to time.Time) (domain.PriceSeries, error) {
	s.from, s.to = from, to
	return s.series, s.err
}

func TestAggregateAssetCorrelatesPrices(t *testing.T) {
	prices := &stubPrices{series: domain.NewPriceSeries("bitcoin", []domain.PricePoint{
		{Time: t0, Price: 100},
		{Time: t0.Add(6 * time.Hour), Price: 110},
	})}
	items := []provider.ContentItem{
		{Source: "reddit", SourceItemID: "a", Title: "Bitcoin", PublishedAt: t0.Add(30 * time.Minute)},
		{Source: "reddit", SourceItemID: "b", Title: "Bitcoin", PublishedAt: t0.Add(-10 * time.Hour)},
	}
	opts := DefaultOptions()
	opts.PriceCorrelation = true
	agg := NewAggregator([]Provider{&stubProvider{name: "reddit", pages: []provider.SearchPage{{Items: items}}}},
		nil, prices, opts, trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())

	res := agg.AggregateAsset(context.Background(), domain.AssetRef{ID: "bitcoin", Name: "Bitcoin"}, 10)
	if len(res.Items) != 2 {
		t.Fatalf("expected both items kept, got %d", len(res.Items))
	}
	first := res.Items[0]
	if first.PriceAtPost.Float64 != 100 || first.PriceAfter.Float64 != 110 || first.PriceChangePct.Float64 != 10 {
		t.Fatalf("unexpected correlation %+v", first)
	}
	if res.Items[1].PriceAtPost.Valid {
		t.Fatal("expected unmatched item to keep null prices")
	}
	if !prices.to.After(t0.Add(6 * time.Hour)) {
		t.Fatalf("expected range to cover the window, got %v", prices.to)
	}
}

func TestAggregateAssetCorrelationFailureKeepsItems(t *testing.T) {
	prices := &stubPrices{err: errors.New("429")}
	opts := DefaultOptions()
	opts.PriceCorrelation = true
	p := &stubProvider{name: "rss", pages: []provider.SearchPage{{Items: contentItems("rss", 2, "Bitcoin", t0)}}}
	agg := NewAggregator([]Provider{p}, nil, prices, opts, trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())

	res := agg.AggregateAsset(context.Background(), domain.AssetRef{ID: "bitcoin", Name: "Bitcoin"}, 2)
	if res.Summary.Volume != 2 {
		t.Fatalf("expected items kept, got %d", res.Summary.Volume)
	}
	if len(res.Errors) != 1 || res.Errors[0].AssetID != "bitcoin" {
		t.Fatalf("expected correlation error in report, got %+v", res.Errors)
	}
}
