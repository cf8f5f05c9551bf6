// Package store defines the persistence contracts of the pipeline and the
// in-memory backend. Postgres and Mongo backends live in subpackages.
package store

import (
	"context"

	"blockminds/internal/domain"
)

// SnapshotStore holds the published snapshot. Writers stage a complete set
// under a fresh snapshot id and then swap it in; readers only ever see the
// current set.
type SnapshotStore interface {
	Stage(ctx context.Context, snapshotID string, records []domain.PublishedRecord) error
	// Swap makes snapshotID current and drops the previous set. It fails,
	// leaving the current set untouched, unless exactly expected records
	// were staged.
	Swap(ctx context.Context, snapshotID string, expected int) error
	Discard(ctx context.Context, snapshotID string) error
	Current(ctx context.Context) ([]domain.PublishedRecord, error)
	// CurrentAsset returns domain.ErrNotFound when the asset is not published.
	CurrentAsset(ctx context.Context, assetID string) (domain.PublishedRecord, error)
}

// HistoryStore persists price series. Yearly points are upserted by
// timestamp; hourly series replace the previous one wholesale.
type HistoryStore interface {
	SaveHistory(ctx context.Context, window domain.HistoryWindow, series domain.PriceSeries) error
	History(ctx context.Context, window domain.HistoryWindow, assetID string) (domain.PriceSeries, error)
}

// UniverseStore holds the asset catalog and the portfolio that decides
// which assets a run covers.
type UniverseStore interface {
	UpsertCatalog(ctx context.Context, entries []domain.CatalogEntry) (int, error)
	CatalogByNameKey(ctx context.Context, nameKey string) ([]domain.CatalogEntry, error)
	CatalogByID(ctx context.Context, assetID string) (domain.CatalogEntry, error)
	Portfolio(ctx context.Context) ([]domain.PortfolioEntry, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, report domain.RunReport) error
	// LatestRun returns domain.ErrNotFound before the first run.
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

// Store is everything a backend provides.
type Store interface {
	SnapshotStore
	HistoryStore
	UniverseStore
	RunStore
	Close(ctx context.Context) error
}
