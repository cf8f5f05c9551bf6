package domain

import (
	"math"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// MarketSnapshot is the per-asset market row produced by one collection cycle.
type MarketSnapshot struct {
	AssetID               string     `json:"asset_id"`
	Symbol                string     `json:"symbol"`
	Name                  string     `json:"name"`
	ImageURL              string     `json:"image_url,omitempty"`
	CurrentPrice          null.Float `json:"current_price"`
	MarketCapRank         null.Int   `json:"market_cap_rank"`
	MarketCap             null.Float `json:"market_cap"`
	FullyDilutedValuation null.Float `json:"fully_diluted_valuation"`
	TotalVolume           null.Float `json:"total_volume"`
	High24h               null.Float `json:"high_24h"`
	Low24h                null.Float `json:"low_24h"`
	PriceChange24h        null.Float `json:"price_change_24h"`
	PriceChangePct24h     null.Float `json:"price_change_percentage_24h"`
	MarketCapChange24h    null.Float `json:"market_cap_change_24h"`
	MarketCapChangePct24h null.Float `json:"market_cap_change_percentage_24h"`
	CirculatingSupply     null.Float `json:"circulating_supply"`
	TotalSupply           null.Float `json:"total_supply"`
	MaxSupply             null.Float `json:"max_supply"`
	ATH                   null.Float `json:"ath"`
	ATHChangePct          null.Float `json:"ath_change_percentage"`
	ATHDate               null.Time  `json:"ath_date"`
	ATL                   null.Float `json:"atl"`
	ATLChangePct          null.Float `json:"atl_change_percentage"`
	ATLDate               null.Time  `json:"atl_date"`
	LastUpdated           null.Time  `json:"last_updated"`
	ROI                   null.Float `json:"roi"`

	// Platforms maps chain name to token contract address. HasPlatforms is
	// false when the upstream payload carried no platforms key at all.
	Platforms    map[string]string `json:"platforms,omitempty"`
	HasPlatforms bool              `json:"-"`

	FetchedAt time.Time `json:"fetched_at"`
}

var hundred = decimal.NewFromInt(100)

// ComputeROI returns (current - atl) / atl * 100. It is null when either
// input is missing or non-finite, or when atl is zero.
func ComputeROI(current, atl null.Float) null.Float {
	if !current.Valid || !atl.Valid || atl.Float64 == 0 {
		return null.Float{}
	}
	if !finite(current.Float64) || !finite(atl.Float64) {
		return null.Float{}
	}
	c := decimal.NewFromFloat(current.Float64)
	l := decimal.NewFromFloat(atl.Float64)
	roi, _ := c.Sub(l).Div(l).Mul(hundred).Float64()
	return Float(roi)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
