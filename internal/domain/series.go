package domain

import (
	"sort"
	"time"
)

// PricePoint is one (timestamp, price) observation.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceSeries is an ascending, duplicate-free sequence of price points for one asset.
// Build it with NewPriceSeries so the ordering holds.
type PriceSeries struct {
	AssetID string       `json:"asset_id"`
	Points  []PricePoint `json:"points"`
}

// HistoryWindow names a persisted price history collection.
type HistoryWindow string

const (
	WindowYearly HistoryWindow = "yearly"
	WindowHourly HistoryWindow = "hourly"
)

func (w HistoryWindow) Valid() bool {
	return w == WindowYearly || w == WindowHourly
}

// NewPriceSeries copies points, drops non-finite prices, sorts by time and
// keeps the last point seen for any repeated timestamp.
func NewPriceSeries(assetID string, points []PricePoint) PriceSeries {
	cleaned := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if !finite(p.Price) || p.Time.IsZero() {
			continue
		}
		cleaned = append(cleaned, PricePoint{Time: p.Time.UTC(), Price: p.Price})
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].Time.Before(cleaned[j].Time) })

	out := cleaned[:0]
	for _, p := range cleaned {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return PriceSeries{AssetID: assetID, Points: out}
}

func (s PriceSeries) Len() int { return len(s.Points) }

// Prices returns the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Sorted reports whether timestamps are strictly increasing.
func (s PriceSeries) Sorted() bool {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Time.After(s.Points[i-1].Time) {
			return false
		}
	}
	return true
}

// Nearest returns the point closest to t, provided it lies within tolerance.
// A non-positive tolerance accepts any distance. The series must be sorted.
func (s PriceSeries) Nearest(t time.Time, tolerance time.Duration) (PricePoint, bool) {
	n := len(s.Points)
	if n == 0 {
		return PricePoint{}, false
	}
	i := sort.Search(n, func(i int) bool { return !s.Points[i].Time.Before(t) })

	best := -1
	var bestDist time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= n {
			continue
		}
		d := s.Points[j].Time.Sub(t)
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = j, d
		}
	}
	if tolerance > 0 && bestDist > tolerance {
		return PricePoint{}, false
	}
	return s.Points[best], true
}
