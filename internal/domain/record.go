package domain

import (
	"time"

	"github.com/guregu/null/v6"
)

// NativeCoinAddress is stored as the contract address of assets without a token contract.
const NativeCoinAddress = "Native Coin (No Contract)"

// OnChainInfo is the contract and liquidity enrichment for one asset.
type OnChainInfo struct {
	ContractAddress null.String `json:"contract_address"`
	Chain           string      `json:"chain,omitempty"`
	IsNative        bool        `json:"is_native"`
	Liquidity       null.Float  `json:"liquidity"`
}

// PublishedRecord is the flat per-asset row that replaces the previous run's
// row in the shared store.
type PublishedRecord struct {
	AssetID    string    `json:"asset_id"`
	SnapshotID string    `json:"snapshot_id"`
	RunID      string    `json:"run_id"`
	Published  time.Time `json:"published_at"`

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

	SharpeRatio    null.Float `json:"sharpe_ratio"`
	SMA50          null.Float `json:"sma_50"`
	EMA20          null.Float `json:"ema_20"`
	RSI14          null.Float `json:"rsi_14"`
	MACD           null.Float `json:"macd"`
	MACDSignal     null.Float `json:"macd_signal"`
	BollingerHigh  null.Float `json:"bollinger_high"`
	BollingerLow   null.Float `json:"bollinger_low"`
	BuySignal      null.Float `json:"buy_signal"`
	SellSignal     null.Float `json:"sell_signal"`
	PredictedPrice null.Float `json:"predicted_price"`
	Change7d       null.Float `json:"price_change_7d"`
	Change30d      null.Float `json:"price_change_30d"`
	Change1y       null.Float `json:"price_change_1y"`

	ContractAddress null.String `json:"contract_address"`
	Liquidity       null.Float  `json:"liquidity"`

	Sentiment SentimentSummary `json:"sentiment"`
}

// Floats returns pointers to every nullable float field so callers can
// normalise them in one place.
func (r *PublishedRecord) Floats() []*null.Float {
	return []*null.Float{
		&r.CurrentPrice, &r.MarketCap, &r.FullyDilutedValuation, &r.TotalVolume,
		&r.High24h, &r.Low24h, &r.PriceChange24h, &r.PriceChangePct24h,
		&r.MarketCapChange24h, &r.MarketCapChangePct24h, &r.CirculatingSupply,
		&r.TotalSupply, &r.MaxSupply, &r.ATH, &r.ATHChangePct, &r.ATL,
		&r.ATLChangePct, &r.ROI, &r.SharpeRatio, &r.SMA50, &r.EMA20, &r.RSI14,
		&r.MACD, &r.MACDSignal, &r.BollingerHigh, &r.BollingerLow, &r.BuySignal,
		&r.SellSignal, &r.PredictedPrice, &r.Change7d, &r.Change30d, &r.Change1y,
		&r.Liquidity,
	}
}
