package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SMASeries is a trailing simple moving average. Early points average over
// however many values are available, so no entry is left undefined.
func SMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 0 {
		period = 1
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(min(i+1, period))
	}
	return out
}

// Returns gives simple period returns. The first entry is NaN.
func Returns(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	out[0] = math.NaN()
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}

// Sharpe is (mean(r) - riskFree) / stddev(r) over the finite returns, using
// the sample standard deviation. ok is false when fewer than two returns are
// defined or the deviation is zero.
func Sharpe(returns []float64, riskFree float64) (float64, bool) {
	defined := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			defined = append(defined, r)
		}
	}
	if len(defined) < 2 {
		return 0, false
	}
	mean, std := stat.MeanStdDev(defined, nil)
	if std == 0 || math.IsNaN(std) {
		return 0, false
	}
	return (mean - riskFree) / std, true
}

// PctChange compares the last value to the one lookback periods earlier.
// It needs strictly more than lookback values.
func PctChange(values []float64, lookback int) (float64, bool) {
	n := len(values)
	if lookback <= 0 || n <= lookback {
		return 0, false
	}
	base := values[n-1-lookback]
	if base == 0 {
		return 0, false
	}
	return (values[n-1] - base) / base * 100, true
}

// MaskWarmup returns a copy of series with the first n entries set to NaN.
func MaskWarmup(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	for i := 0; i < n && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
