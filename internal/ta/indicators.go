package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// warmup returns n NaN entries. NaN marks a point that is still inside an
// indicator's warm-up window; callers map it to a null value.
func warmup(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// MeanStd is the population mean and standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// EMASeries smooths with alpha = 2/(span+1), seeded with the first value.
// Each entry depends only on values at or before it.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 1.0
	if span > 1 {
		alpha = 2.0 / float64(span+1)
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// RSISeries is Wilder's relative strength index. The result has one entry per
// close; the first period entries are NaN.
func RSISeries(closes []float64, period int) []float64 {
	out := warmup(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := math.Max(delta, 0), math.Max(-delta, 0)
		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			continue
		case i == period:
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
		default:
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}
		out[i] = relativeStrength(avgGain, avgLoss)
	}
	return out
}

func relativeStrength(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACDSeries returns the fast/slow EMA spread and its signal EMA. The line is
// NaN until the slow EMA has seen slow values, the signal until it has also
// seen signal values of the line.
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64) {
	if len(values) == 0 {
		return nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMASeries(line, signal)
	return MaskWarmup(line, slow-1), MaskWarmup(sig, slow+signal-2)
}

// BollingerSeries returns the middle, upper and lower bands: the trailing mean
// of period values plus and minus stdDevs population deviations. Entries
// before the first full window are NaN.
func BollingerSeries(values []float64, period int, stdDevs float64) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	middle, upper, lower := warmup(len(values)), warmup(len(values)), warmup(len(values))
	if period <= 0 {
		return middle, upper, lower
	}
	for end := period; end <= len(values); end++ {
		mean, std := MeanStd(values[end-period : end])
		i := end - 1
		middle[i] = mean
		upper[i] = mean + stdDevs*std
		lower[i] = mean - stdDevs*std
	}
	return middle, upper, lower
}
