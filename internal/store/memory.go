package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"blockminds/internal/domain"

	"github.com/samber/lo"
)

// Memory is a process-local Store. The Fail* fields inject errors into the
// next matching call, which is how the fail-safe publish path is tested.
type Memory struct {
	mu        sync.RWMutex
	staged    map[string][]domain.PublishedRecord
	currentID string
	current   map[string]domain.PublishedRecord
	yearly    map[string]map[int64]domain.PricePoint
	hourly    map[string][]domain.PricePoint
	catalog   map[string]domain.CatalogEntry
	portfolio []domain.PortfolioEntry
	runs      []domain.RunReport

	FailStage error
	FailSwap  error
	// StageLimit, when positive, makes Stage write only that many records
	// before failing, simulating a write that dies half way.
	StageLimit int
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		staged:  make(map[string][]domain.PublishedRecord),
		current: make(map[string]domain.PublishedRecord),
		yearly:  make(map[string]map[int64]domain.PricePoint),
		hourly:  make(map[string][]domain.PricePoint),
		catalog: make(map[string]domain.CatalogEntry),
	}
}

func (m *Memory) Stage(ctx context.Context, snapshotID string, records []domain.PublishedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailStage; err != nil {
		m.FailStage = nil
		return err
	}
	for i, r := range records {
		if m.StageLimit > 0 && i >= m.StageLimit {
			m.StageLimit = 0
			return fmt.Errorf("stage %s: write interrupted after %d records", snapshotID, i)
		}
		m.staged[snapshotID] = append(m.staged[snapshotID], r)
	}
	return nil
}

func (m *Memory) Swap(ctx context.Context, snapshotID string, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailSwap; err != nil {
		m.FailSwap = nil
		return err
	}
	staged := m.staged[snapshotID]
	if len(staged) != expected {
		return fmt.Errorf("swap %s: staged %d records, expected %d", snapshotID, len(staged), expected)
	}
	next := make(map[string]domain.PublishedRecord, len(staged))
	for _, r := range staged {
		next[r.AssetID] = r
	}
	m.current = next
	m.currentID = snapshotID
	delete(m.staged, snapshotID)
	return nil
}

func (m *Memory) Discard(ctx context.Context, snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staged, snapshotID)
	return nil
}

// CurrentID returns the id of the published snapshot.
func (m *Memory) CurrentID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentID
}

// Staged reports how many snapshots are staged but not swapped.
func (m *Memory) Staged() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.staged)
}

func (m *Memory) Current(ctx context.Context) ([]domain.PublishedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Values(m.current)
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (m *Memory) CurrentAsset(ctx context.Context, assetID string) (domain.PublishedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.current[assetID]
	if !ok {
		return domain.PublishedRecord{}, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
	}
	return r, nil
}

func (m *Memory) SaveHistory(ctx context.Context, window domain.HistoryWindow, series domain.PriceSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch window {
	case domain.WindowYearly:
		points := m.yearly[series.AssetID]
		if points == nil {
			points = make(map[int64]domain.PricePoint)
			m.yearly[series.AssetID] = points
		}
		for _, p := range series.Points {
			points[p.Time.UnixMilli()] = p
		}
	case domain.WindowHourly:
		m.hourly[series.AssetID] = append([]domain.PricePoint(nil), series.Points...)
	default:
		return fmt.Errorf("unknown history window %q", window)
	}
	return nil
}

func (m *Memory) History(ctx context.Context, window domain.HistoryWindow, assetID string) (domain.PriceSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch window {
	case domain.WindowYearly:
		return domain.NewPriceSeries(assetID, lo.Values(m.yearly[assetID])), nil
	case domain.WindowHourly:
		return domain.NewPriceSeries(assetID, m.hourly[assetID]), nil
	default:
		return domain.PriceSeries{}, fmt.Errorf("unknown history window %q", window)
	}
}

func (m *Memory) UpsertCatalog(ctx context.Context, entries []domain.CatalogEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.catalog[e.ID] = e
	}
	return len(entries), nil
}

func (m *Memory) CatalogByNameKey(ctx context.Context, nameKey string) ([]domain.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Filter(lo.Values(m.catalog), func(e domain.CatalogEntry, _ int) bool { return e.NameKey == nameKey })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CatalogByID(ctx context.Context, assetID string) (domain.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.catalog[assetID]
	if !ok {
		return domain.CatalogEntry{}, fmt.Errorf("catalog %s: %w", assetID, domain.ErrNotFound)
	}
	return e, nil
}

func (m *Memory) Portfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.PortfolioEntry(nil), m.portfolio...), nil
}

// SetPortfolio replaces the portfolio entries.
func (m *Memory) SetPortfolio(entries []domain.PortfolioEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio = append([]domain.PortfolioEntry(nil), entries...)
}

func (m *Memory) SaveRun(ctx context.Context, report domain.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.RunID == report.RunID {
			m.runs[i] = report
			return nil
		}
	}
	m.runs = append(m.runs, report)
	return nil
}

func (m *Memory) LatestRun(ctx context.Context) (domain.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return domain.RunReport{}, fmt.Errorf("latest run: %w", domain.ErrNotFound)
	}
	latest := lo.MaxBy(m.runs, func(a, b domain.RunReport) bool { return a.StartedAt.After(b.StartedAt) })
	return latest, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
