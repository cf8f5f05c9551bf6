package publisher

import (
	"math"

	"blockminds/internal/domain"
)

// Inputs is everything gathered for one asset during a run.
type Inputs struct {
	Snapshot   domain.MarketSnapshot
	Indicators domain.IndicatorSet
	Sentiment  domain.SentimentSummary
	OnChain    domain.OnChainInfo
}

// BuildRecord merges one asset's inputs into the flat published row. Only
// the latest indicator point is carried over.
func BuildRecord(in Inputs) domain.PublishedRecord {
	s := in.Snapshot
	r := domain.PublishedRecord{
		AssetID:               s.AssetID,
		Symbol:                s.Symbol,
		Name:                  s.Name,
		ImageURL:              s.ImageURL,
		CurrentPrice:          s.CurrentPrice,
		MarketCapRank:         s.MarketCapRank,
		MarketCap:             s.MarketCap,
		FullyDilutedValuation: s.FullyDilutedValuation,
		TotalVolume:           s.TotalVolume,
		High24h:               s.High24h,
		Low24h:                s.Low24h,
		PriceChange24h:        s.PriceChange24h,
		PriceChangePct24h:     s.PriceChangePct24h,
		MarketCapChange24h:    s.MarketCapChange24h,
		MarketCapChangePct24h: s.MarketCapChangePct24h,
		CirculatingSupply:     s.CirculatingSupply,
		TotalSupply:           s.TotalSupply,
		MaxSupply:             s.MaxSupply,
		ATH:                   s.ATH,
		ATHChangePct:          s.ATHChangePct,
		ATHDate:               s.ATHDate,
		ATL:                   s.ATL,
		ATLChangePct:          s.ATLChangePct,
		ATLDate:               s.ATLDate,
		LastUpdated:           s.LastUpdated,
		ROI:                   s.ROI,

		SharpeRatio: in.Indicators.SharpeRatio,
		Change7d:    in.Indicators.Change7d,
		Change30d:   in.Indicators.Change30d,
		Change1y:    in.Indicators.Change1y,

		ContractAddress: in.OnChain.ContractAddress,
		Liquidity:       in.OnChain.Liquidity,

		Sentiment: in.Sentiment,
	}
	if latest, ok := in.Indicators.Latest(); ok {
		r.SMA50 = latest.SMA50
		r.EMA20 = latest.EMA20
		r.RSI14 = latest.RSI14
		r.MACD = latest.MACD
		r.MACDSignal = latest.MACDSignal
		r.BollingerHigh = latest.BollingerHigh
		r.BollingerLow = latest.BollingerLow
		r.BuySignal = latest.BuySignal
		r.SellSignal = latest.SellSignal
		r.PredictedPrice = latest.PredictedPrice
	}
	if r.Sentiment.Label == "" {
		r.Sentiment = domain.EmptySentiment(s.Name)
	}
	return r
}

// Sanitize replaces every non-finite value with null, or with zero for the
// plain float sentiment aggregates.
func Sanitize(r *domain.PublishedRecord) {
	for _, f := range r.Floats() {
		*f = domain.Finite(*f)
	}
	r.Published = r.Published.UTC()

	s := &r.Sentiment
	for _, v := range []*float64{
		&s.AvgSentiment, &s.AvgUpvotes, &s.AvgComments, &s.EngagementRate,
		&s.PositiveRatio, &s.NegativeRatio, &s.MentionsPerDay,
	} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	if s.TopItem != nil {
		top := *s.TopItem
		top.PriceAtPost = domain.Finite(top.PriceAtPost)
		top.PriceAfter = domain.Finite(top.PriceAfter)
		top.PriceChangePct = domain.Finite(top.PriceChangePct)
		if math.IsNaN(top.Score) || math.IsInf(top.Score, 0) {
			top.Score = 0
		}
		s.TopItem = &top
	}
}
