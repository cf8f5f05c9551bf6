package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const currentSnapshotKey = "snapshot:current"

// SnapshotReader is the read side of the store.
type SnapshotReader interface {
	Current(ctx context.Context) ([]domain.PublishedRecord, error)
	CurrentAsset(ctx context.Context, assetID string) (domain.PublishedRecord, error)
	History(ctx context.Context, window domain.HistoryWindow, assetID string) (domain.PriceSeries, error)
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

type Cache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// SnapshotService serves the published snapshot to the API, bot, MCP and
// SSH surfaces. The full snapshot is cached; single-asset reads go to the store.
type SnapshotService struct {
	tracer trace.Tracer
	store  SnapshotReader
	cache  Cache
	logger zerolog.Logger
}

func NewSnapshotService(tracer trace.Tracer, store SnapshotReader, cache Cache, logger zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		tracer: tracer,
		store:  store,
		cache:  cache,
		logger: logging.Component(logger, "snapshot-service"),
	}
}

// Snapshot returns every published record ordered by asset id.
func (s *SnapshotService) Snapshot(ctx context.Context) ([]domain.PublishedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "snapshot-service.snapshot")
	defer span.End()

	if s.cache != nil {
		var cached []domain.PublishedRecord
		found, err := s.cache.Get(ctx, currentSnapshotKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("snapshot cache read failed")
		}
		if found {
			return cached, nil
		}
	}

	records, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, currentSnapshotKey, records); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot cache write failed")
		}
	}
	return records, nil
}

func (s *SnapshotService) Asset(ctx context.Context, assetID string) (domain.PublishedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "snapshot-service.asset")
	defer span.End()
	return s.store.CurrentAsset(ctx, strings.TrimSpace(assetID))
}

// FindAsset looks query up as an asset id, then as a symbol or name in the
// current snapshot. An ambiguous symbol returns the best ranked asset.
func (s *SnapshotService) FindAsset(ctx context.Context, query string) (domain.PublishedRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.PublishedRecord{}, fmt.Errorf("empty query: %w", domain.ErrNotFound)
	}
	rec, err := s.Asset(ctx, strings.ToLower(query))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PublishedRecord{}, err
	}

	records, err := s.Snapshot(ctx)
	if err != nil {
		return domain.PublishedRecord{}, err
	}
	key := domain.NormalizeName(query)
	var matches []domain.PublishedRecord
	for _, r := range records {
		if strings.EqualFold(r.Symbol, query) || domain.NormalizeName(r.Name) == key {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return domain.PublishedRecord{}, fmt.Errorf("asset %q: %w", query, domain.ErrNotFound)
	}
	sortByRank(matches)
	return matches[0], nil
}

// Top returns up to n records by market cap rank. Unranked assets sort last.
func (s *SnapshotService) Top(ctx context.Context, n int) ([]domain.PublishedRecord, error) {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]domain.PublishedRecord(nil), records...)
	sortByRank(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *SnapshotService) History(ctx context.Context, assetID string, window domain.HistoryWindow) (domain.PriceSeries, error) {
	ctx, span := s.tracer.Start(ctx, "snapshot-service.history")
	defer span.End()
	if !window.Valid() {
		return domain.PriceSeries{}, fmt.Errorf("unknown history window %q", window)
	}
	return s.store.History(ctx, window, assetID)
}

func (s *SnapshotService) LatestRun(ctx context.Context) (domain.RunReport, error) {
	return s.store.LatestRun(ctx)
}

func sortByRank(records []domain.PublishedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].MarketCapRank, records[j].MarketCapRank
		switch {
		case a.Valid && b.Valid:
			return a.Int64 < b.Int64
		case a.Valid != b.Valid:
			return a.Valid
		default:
			return records[i].AssetID < records[j].AssetID
		}
	})
}
