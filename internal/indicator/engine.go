// Package indicator derives technical indicators from a price series.
package indicator

import (
	"math"

	"blockminds/internal/domain"
	"blockminds/internal/ta"

	"github.com/guregu/null/v6"
)

const (
	DefaultRiskFreeRate = 0.01

	smaPeriod       = 50
	emaPeriod       = 20
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	bollingerPeriod = 20
	bollingerStdDev = 2.0

	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// Engine computes IndicatorSets. It holds no state beyond its settings, so
// one Engine may be shared by any number of goroutines.
type Engine struct {
	riskFreeRate float64
}

func NewEngine(riskFreeRate float64) *Engine {
	if math.IsNaN(riskFreeRate) || math.IsInf(riskFreeRate, 0) {
		riskFreeRate = DefaultRiskFreeRate
	}
	return &Engine{riskFreeRate: riskFreeRate}
}

// Compute derives the full indicator set for series. Warm-up values that
// cannot be computed yet are null: RSI before 14 deltas, MACD before the
// slow EMA has 26 points, the signal line 8 points after that, and the
// Bollinger bands before 20 points. Fewer than two prices yield a set with
// no points and every summary value null.
func (e *Engine) Compute(series domain.PriceSeries) domain.IndicatorSet {
	set := domain.IndicatorSet{AssetID: series.AssetID}
	if series.Len() < 2 {
		return set
	}

	points := series.Points
	if !series.Sorted() {
		points = domain.NewPriceSeries(series.AssetID, series.Points).Points
		if len(points) < 2 {
			return set
		}
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	returns := ta.Returns(prices)
	sma := ta.SMASeries(prices, smaPeriod)
	ema := ta.EMASeries(prices, emaPeriod)
	rsi := ta.RSISeries(prices, rsiPeriod)
	macdLine, signalLine := ta.MACDSeries(prices, macdFast, macdSlow, macdSignal)
	_, upper, lower := ta.BollingerSeries(prices, bollingerPeriod, bollingerStdDev)

	set.Points = make([]domain.IndicatorPoint, len(points))
	for i, p := range points {
		price := p.Price
		pt := domain.IndicatorPoint{
			Time:          p.Time,
			Price:         price,
			Return:        domain.Float(returns[i]),
			SMA50:         domain.Float(sma[i]),
			EMA20:         domain.Float(ema[i]),
			RSI14:         nullAt(rsi, i),
			MACD:          domain.Float(macdLine[i]),
			MACDSignal:    domain.Float(signalLine[i]),
			BollingerHigh: domain.Float(upper[i]),
			BollingerLow:  domain.Float(lower[i]),
		}

		if pt.RSI14.Valid {
			if pt.RSI14.Float64 < rsiOversold {
				pt.BuySignal = domain.Float(price)
				set.LastBuySignal = pt.BuySignal
			} else if pt.RSI14.Float64 > rsiOverbought {
				pt.SellSignal = domain.Float(price)
				set.LastSellSignal = pt.SellSignal
			}
		}

		pt.PredictedPrice = predict(pt)
		set.Points[i] = pt
	}

	if v, ok := ta.Sharpe(returns, e.riskFreeRate); ok {
		set.SharpeRatio = domain.Float(v)
	}
	set.Change7d = change(prices, 7)
	set.Change30d = change(prices, 30)
	set.Change1y = change(prices, 365)
	return set
}

// predict averages whichever of the five projections are defined at pt.
func predict(pt domain.IndicatorPoint) null.Float {
	price := pt.Price
	var projections []float64
	if pt.SMA50.Valid {
		projections = append(projections, (pt.SMA50.Float64+price)/2)
	}
	if pt.EMA20.Valid {
		projections = append(projections, (pt.EMA20.Float64+price)/2)
	}
	if pt.RSI14.Valid {
		projections = append(projections, price*(1+(50-pt.RSI14.Float64)/100))
	}
	if pt.MACD.Valid && pt.MACDSignal.Valid {
		projections = append(projections, price*(1+math.Abs(pt.MACD.Float64-pt.MACDSignal.Float64)/10))
	}
	if pt.BollingerHigh.Valid && pt.BollingerLow.Valid {
		projections = append(projections, ((pt.BollingerHigh.Float64+pt.BollingerLow.Float64)/2+price)/2)
	}
	if len(projections) == 0 {
		return null.Float{}
	}
	var sum float64
	for _, v := range projections {
		sum += v
	}
	return domain.Float(sum / float64(len(projections)))
}

func nullAt(series []float64, i int) null.Float {
	if i >= len(series) {
		return null.Float{}
	}
	return domain.Float(series[i])
}

func change(prices []float64, lookback int) null.Float {
	v, ok := ta.PctChange(prices, lookback)
	if !ok {
		return null.Float{}
	}
	return domain.Float(v)
}
