package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blockminds/internal/domain"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const dexScreenerBaseURL = "https://api.dexscreener.com"

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
}

type dexPairsPayload struct {
	Pairs []dexPair `json:"pairs"`
}

// DexScreenerProvider resolves token contracts and pool liquidity.
type DexScreenerProvider struct {
	baseURL string
	fetcher *Fetcher
	tracer  trace.Tracer
}

func NewDexScreenerProvider(tracer trace.Tracer, logger zerolog.Logger, baseURL string, rps float64, retry RetryPolicy) *DexScreenerProvider {
	if baseURL == "" {
		baseURL = dexScreenerBaseURL
	}
	if rps <= 0 {
		rps = 4
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	return &DexScreenerProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: NewFetcher("dexscreener", &http.Client{Timeout: 20 * time.Second}, limiter, retry, tracer, logger),
		tracer:  tracer,
	}
}

// SearchTokenAddress returns the base token address of the first pair matching symbol.
func (p *DexScreenerProvider) SearchTokenAddress(ctx context.Context, assetID, symbol string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "dexscreener.search")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}

	var payload dexPairsPayload
	err := p.fetcher.GetJSON(ctx, Request{
		AssetID:  assetID,
		URL:      p.baseURL + "/latest/dex/search",
		Params:   url.Values{"q": {symbol}},
		Validate: RequireKeys("pairs"),
	}, &payload)
	if err != nil {
		return "", err
	}
	if len(payload.Pairs) == 0 || strings.TrimSpace(payload.Pairs[0].BaseToken.Address) == "" {
		return "", fmt.Errorf("dexscreener: no pairs for %s: %w", symbol, domain.ErrNotFound)
	}
	return strings.TrimSpace(payload.Pairs[0].BaseToken.Address), nil
}

// TokenLiquidity returns the USD liquidity of the first pool listed for address.
func (p *DexScreenerProvider) TokenLiquidity(ctx context.Context, assetID, address string) (null.Float, error) {
	ctx, span := p.tracer.Start(ctx, "dexscreener.token-liquidity")
	defer span.End()
	span.SetAttributes(attribute.String("address", address))

	var payload dexPairsPayload
	err := p.fetcher.GetJSON(ctx, Request{
		AssetID:  assetID,
		URL:      fmt.Sprintf("%s/latest/dex/tokens/%s", p.baseURL, url.PathEscape(address)),
		Validate: RequireKeys("pairs"),
	}, &payload)
	if err != nil {
		return null.Float{}, err
	}
	if len(payload.Pairs) == 0 || payload.Pairs[0].Liquidity == nil || payload.Pairs[0].Liquidity.USD == nil {
		return null.Float{}, nil
	}
	return domain.Float(*payload.Pairs[0].Liquidity.USD), nil
}
