package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blockminds/internal/domain"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoOptions configures the CoinGecko client.
type CoinGeckoOptions struct {
	BaseURL     string
	APIKey      string
	MinInterval time.Duration
	Retry       RetryPolicy
	Timeout     time.Duration
}

// CoinGeckoProvider reads coin details and price history. Every call goes
// through one RateLimiter, so concurrent callers share the upstream budget.
type CoinGeckoProvider struct {
	baseURL string
	fetcher *Fetcher
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewCoinGeckoProvider(tracer trace.Tracer, logger zerolog.Logger, opts CoinGeckoOptions) *CoinGeckoProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = coinGeckoBaseURL
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limiter := NewRateLimiter(opts.MinInterval)
	fetcher := NewFetcher("coingecko", &http.Client{Timeout: opts.Timeout}, limiter, opts.Retry, tracer, logger)
	fetcher.SetHeader("x-cg-pro-api-key", opts.APIKey)
	return &CoinGeckoProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		fetcher: fetcher,
		limiter: limiter,
		tracer:  tracer,
	}
}

// Limiter exposes the shared pacing gate.
func (p *CoinGeckoProvider) Limiter() *RateLimiter { return p.limiter }

type usdValue map[string]*float64

func (m usdValue) usd() null.Float {
	if m == nil {
		return null.Float{}
	}
	if v, ok := m["usd"]; ok && v != nil {
		return domain.Float(*v)
	}
	return null.Float{}
}

type usdTime map[string]string

func (m usdTime) usd() null.Time {
	if m == nil {
		return null.Time{}
	}
	return parseTime(m["usd"])
}

type coinDetailPayload struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	MarketCapRank *int64          `json:"market_cap_rank"`
	LastUpdated   string          `json:"last_updated"`
	Platforms     json.RawMessage `json:"platforms"`
	Image         struct {
		Large string `json:"large"`
	} `json:"image"`
	MarketData struct {
		CurrentPrice          usdValue `json:"current_price"`
		MarketCapRank         *int64   `json:"market_cap_rank"`
		MarketCap             usdValue `json:"market_cap"`
		FullyDilutedValuation usdValue `json:"fully_diluted_valuation"`
		TotalVolume           usdValue `json:"total_volume"`
		High24h               usdValue `json:"high_24h"`
		Low24h                usdValue `json:"low_24h"`
		PriceChange24h        *float64 `json:"price_change_24h"`
		PriceChangePct24h     *float64 `json:"price_change_percentage_24h"`
		MarketCapChange24h    *float64 `json:"market_cap_change_24h"`
		MarketCapChangePct24h *float64 `json:"market_cap_change_percentage_24h"`
		CirculatingSupply     *float64 `json:"circulating_supply"`
		TotalSupply           *float64 `json:"total_supply"`
		MaxSupply             *float64 `json:"max_supply"`
		ATH                   usdValue `json:"ath"`
		ATHChangePct          usdValue `json:"ath_change_percentage"`
		ATHDate               usdTime  `json:"ath_date"`
		ATL                   usdValue `json:"atl"`
		ATLChangePct          usdValue `json:"atl_change_percentage"`
		ATLDate               usdTime  `json:"atl_date"`
		LastUpdated           string   `json:"last_updated"`
	} `json:"market_data"`
}

// FetchMarketSnapshot reads /coins/{id}. ROI is left for the caller.
func (p *CoinGeckoProvider) FetchMarketSnapshot(ctx context.Context, assetID string) (*domain.MarketSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-coin")
	defer span.End()
	span.SetAttributes(attribute.String("asset_id", assetID))

	var payload coinDetailPayload
	err := p.fetcher.GetJSON(ctx, Request{
		AssetID: assetID,
		URL:     fmt.Sprintf("%s/coins/%s", p.baseURL, url.PathEscape(assetID)),
		Params: url.Values{
			"localization":   {"false"},
			"tickers":        {"false"},
			"market_data":    {"true"},
			"community_data": {"false"},
			"developer_data": {"false"},
			"sparkline":      {"false"},
		},
		Validate: RequireKeys("id", "market_data"),
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.snapshot(assetID), nil
}

func (c coinDetailPayload) snapshot(assetID string) *domain.MarketSnapshot {
	md := c.MarketData
	snap := &domain.MarketSnapshot{
		AssetID:               assetID,
		Symbol:                strings.ToUpper(c.Symbol),
		Name:                  c.Name,
		ImageURL:              c.Image.Large,
		CurrentPrice:          md.CurrentPrice.usd(),
		MarketCap:             md.MarketCap.usd(),
		FullyDilutedValuation: md.FullyDilutedValuation.usd(),
		TotalVolume:           md.TotalVolume.usd(),
		High24h:               md.High24h.usd(),
		Low24h:                md.Low24h.usd(),
		PriceChange24h:        ptrFloat(md.PriceChange24h),
		PriceChangePct24h:     ptrFloat(md.PriceChangePct24h),
		MarketCapChange24h:    ptrFloat(md.MarketCapChange24h),
		MarketCapChangePct24h: ptrFloat(md.MarketCapChangePct24h),
		CirculatingSupply:     ptrFloat(md.CirculatingSupply),
		TotalSupply:           ptrFloat(md.TotalSupply),
		MaxSupply:             ptrFloat(md.MaxSupply),
		ATH:                   md.ATH.usd(),
		ATHChangePct:          md.ATHChangePct.usd(),
		ATHDate:               md.ATHDate.usd(),
		ATL:                   md.ATL.usd(),
		ATLChangePct:          md.ATLChangePct.usd(),
		ATLDate:               md.ATLDate.usd(),
		LastUpdated:           parseTime(firstNonEmpty(md.LastUpdated, c.LastUpdated)),
		FetchedAt:             time.Now().UTC(),
	}
	switch {
	case c.MarketCapRank != nil:
		snap.MarketCapRank = null.IntFrom(*c.MarketCapRank)
	case md.MarketCapRank != nil:
		snap.MarketCapRank = null.IntFrom(*md.MarketCapRank)
	}

	if raw := strings.TrimSpace(string(c.Platforms)); raw != "" && raw != "null" {
		var platforms map[string]string
		if err := json.Unmarshal(c.Platforms, &platforms); err == nil {
			snap.HasPlatforms = true
			snap.Platforms = make(map[string]string, len(platforms))
			for chain, addr := range platforms {
				if addr = strings.TrimSpace(addr); addr != "" {
					snap.Platforms[chain] = addr
				}
			}
		}
	}
	return snap
}

// FetchPriceSeries reads /coins/{id}/market_chart for the last days days.
// Windows longer than a day are requested at daily granularity.
func (p *CoinGeckoProvider) FetchPriceSeries(ctx context.Context, assetID string, days int) (domain.PriceSeries, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-market-chart")
	defer span.End()
	span.SetAttributes(attribute.String("asset_id", assetID), attribute.Int("days", days))

	if days <= 0 {
		days = 1
	}
	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}
	if days > 1 {
		params.Set("interval", "daily")
	}
	return p.fetchSeries(ctx, assetID, fmt.Sprintf("%s/coins/%s/market_chart", p.baseURL, url.PathEscape(assetID)), params)
}

// FetchPriceRange reads /coins/{id}/market_chart/range between from and to.
func (p *CoinGeckoProvider) FetchPriceRange(ctx context.Context, assetID string, from, to time.Time) (domain.PriceSeries, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-market-chart-range")
	defer span.End()
	span.SetAttributes(attribute.String("asset_id", assetID))

	params := url.Values{
		"vs_currency": {"usd"},
		"from":        {strconv.FormatInt(from.Unix(), 10)},
		"to":          {strconv.FormatInt(to.Unix(), 10)},
	}
	return p.fetchSeries(ctx, assetID, fmt.Sprintf("%s/coins/%s/market_chart/range", p.baseURL, url.PathEscape(assetID)), params)
}

func (p *CoinGeckoProvider) fetchSeries(ctx context.Context, assetID, endpoint string, params url.Values) (domain.PriceSeries, error) {
	var payload struct {
		Prices [][]*float64 `json:"prices"`
	}
	err := p.fetcher.GetJSON(ctx, Request{
		AssetID:  assetID,
		URL:      endpoint,
		Params:   params,
		Validate: RequireKeys("prices"),
	}, &payload)
	if err != nil {
		return domain.PriceSeries{AssetID: assetID}, err
	}

	points := make([]domain.PricePoint, 0, len(payload.Prices))
	for _, row := range payload.Prices {
		if len(row) < 2 || row[0] == nil || row[1] == nil {
			continue
		}
		points = append(points, domain.PricePoint{
			Time:  time.UnixMilli(int64(*row[0])).UTC(),
			Price: *row[1],
		})
	}
	return domain.NewPriceSeries(assetID, points), nil
}

// FetchCatalog reads /coins/list.
func (p *CoinGeckoProvider) FetchCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-catalog")
	defer span.End()

	var rows []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	}
	err := p.fetcher.GetJSON(ctx, Request{
		URL:      p.baseURL + "/coins/list",
		Validate: RequireJSON,
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
			continue
		}
		out = append(out, domain.NewCatalogEntry(r.ID, r.Symbol, r.Name))
	}
	span.SetAttributes(attribute.Int("entries", len(out)))
	return out, nil
}

func ptrFloat(v *float64) null.Float {
	if v == nil {
		return null.Float{}
	}
	return domain.Float(*v)
}

func parseTime(v string) null.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return null.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, v); err == nil {
			return null.TimeFrom(t.UTC())
		}
	}
	return null.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
