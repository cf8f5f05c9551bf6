package domain

import (
	"time"

	"github.com/guregu/null/v6"
)

// IndicatorPoint holds every derived value for one point of a price series.
// Null means the value is undefined at that point (warm-up, zero divisor).
type IndicatorPoint struct {
	Time           time.Time  `json:"time"`
	Price          float64    `json:"price"`
	Return         null.Float `json:"return"`
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
}

// IndicatorSet is recomputed from a full price series every cycle.
type IndicatorSet struct {
	AssetID        string           `json:"asset_id"`
	Points         []IndicatorPoint `json:"points"`
	SharpeRatio    null.Float       `json:"sharpe_ratio"`
	Change7d       null.Float       `json:"price_change_7d"`
	Change30d      null.Float       `json:"price_change_30d"`
	Change1y       null.Float       `json:"price_change_1y"`
	LastBuySignal  null.Float       `json:"last_buy_signal"`
	LastSellSignal null.Float       `json:"last_sell_signal"`
}

// Latest returns the most recent point, if any.
func (s IndicatorSet) Latest() (IndicatorPoint, bool) {
	if len(s.Points) == 0 {
		return IndicatorPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Defined reports whether anything was computed. A set built from fewer than
// two prices is fully undefined.
func (s IndicatorSet) Defined() bool {
	return len(s.Points) > 0
}
