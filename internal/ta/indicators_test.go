package ta

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMASeriesUsesPartialWindow(t *testing.T) {
	got := SMASeries([]float64{2, 4, 6, 8}, 3)
	want := []float64{2, 3, 4, 6}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestEMASeriesSeedsWithFirstValue(t *testing.T) {
	got := EMASeries([]float64{10, 20}, 3)
	if got[0] != 10 || !almostEqual(got[1], 15) {
		t.Fatalf("unexpected ema %v", got)
	}
}

func TestReturns(t *testing.T) {
	got := Returns([]float64{100, 110, 99})
	if !math.IsNaN(got[0]) {
		t.Fatalf("expected undefined first return, got %v", got[0])
	}
	if !almostEqual(got[1], 0.1) || !almostEqual(got[2], -0.1) {
		t.Fatalf("unexpected returns %v", got)
	}
}

func TestSharpeUndefinedOnZeroDeviation(t *testing.T) {
	if _, ok := Sharpe([]float64{math.NaN(), 0.01, 0.01, 0.01}, 0.01); ok {
		t.Fatal("expected undefined ratio for constant returns")
	}
	if _, ok := Sharpe([]float64{math.NaN(), 0.02}, 0.01); ok {
		t.Fatal("expected undefined ratio for a single return")
	}
	v, ok := Sharpe([]float64{0.01, 0.03}, 0.01)
	if !ok || !almostEqual(v, 0.01/math.Sqrt(0.0002)) {
		t.Fatalf("unexpected ratio %v %v", v, ok)
	}
}

func TestPctChangeBoundary(t *testing.T) {
	values := []float64{100, 1, 1, 1, 1, 1, 1, 150}
	got, ok := PctChange(values, 7)
	if !ok || !almostEqual(got, 50) {
		t.Fatalf("expected 50%% over 8 points, got %v %v", got, ok)
	}
	if _, ok := PctChange(values[1:], 7); ok {
		t.Fatal("expected undefined change over 7 points")
	}
}

func TestRSISeriesWarmupIsNaN(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	rsi := RSISeries(closes, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(rsi[i]) {
			t.Fatalf("expected NaN warm-up at %d", i)
		}
	}
	if rsi[14] != 100 {
		t.Fatalf("expected 100 on a straight rise, got %v", rsi[14])
	}
}

func TestBollingerSeries(t *testing.T) {
	mid, upper, lower := BollingerSeries([]float64{1, 2, 3}, 3, 2)
	if !math.IsNaN(mid[1]) {
		t.Fatal("expected undefined band before the window fills")
	}
	std := math.Sqrt(2.0 / 3.0)
	if !almostEqual(mid[2], 2) || !almostEqual(upper[2], 2+2*std) || !almostEqual(lower[2], 2-2*std) {
		t.Fatalf("unexpected bands %v %v %v", mid[2], upper[2], lower[2])
	}
}

func TestMaskWarmup(t *testing.T) {
	in := []float64{1, 2, 3}
	out := MaskWarmup(in, 2)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) || out[2] != 3 || in[0] != 1 {
		t.Fatalf("unexpected mask %v (input %v)", out, in)
	}
}

func TestRSISeriesShortInputIsAllWarmup(t *testing.T) {
	rsi := RSISeries([]float64{1, 2, 3}, 14)
	if len(rsi) != 3 {
		t.Fatalf("expected one entry per close, got %d", len(rsi))
	}
	for i, v := range rsi {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN at %d, got %v", i, v)
		}
	}
}

func TestRSISeriesFlatIsNeutral(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5}
	rsi := RSISeries(closes, 3)
	if rsi[3] != 50 || rsi[4] != 50 {
		t.Fatalf("expected neutral RSI on a flat series, got %v", rsi)
	}
}

func TestMACDSeriesMasksWarmup(t *testing.T) {
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i * i)
	}
	line, signal := MACDSeries(values, 2, 4, 3)
	if !math.IsNaN(line[2]) || math.IsNaN(line[3]) {
		t.Fatalf("expected line to start at index 3, got %v", line[:5])
	}
	if !math.IsNaN(signal[4]) || math.IsNaN(signal[5]) {
		t.Fatalf("expected signal to start at index 5, got %v", signal[:7])
	}
}
