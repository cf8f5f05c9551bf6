// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"blockminds/internal/domain"
	"blockminds/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	pool   PgxPool
	tracer trace.Tracer
	close  func()
}

var _ store.Store = (*Store)(nil)

// New wraps pool. closeFn, if set, runs on Close.
func New(pool PgxPool, tracer trace.Tracer, closeFn func()) *Store {
	return &Store{pool: pool, tracer: tracer, close: closeFn}
}

func (s *Store) Close(ctx context.Context) error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func (s *Store) Stage(ctx context.Context, snapshotID string, records []domain.PublishedRecord) error {
	ctx, span := s.tracer.Start(ctx, "postgres.stage")
	defer span.End()

	batch := &pgx.Batch{}
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.AssetID, err)
		}
		batch.Queue(
			`INSERT INTO published_records (snapshot_id, asset_id, payload)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (snapshot_id, asset_id) DO UPDATE SET payload = EXCLUDED.payload`,
			snapshotID, r.AssetID, payload,
		)
	}
	return s.execBatch(ctx, s.pool, batch)
}

func (s *Store) Swap(ctx context.Context, snapshotID string, expected int) error {
	ctx, span := s.tracer.Start(ctx, "postgres.swap")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	var staged int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM published_records WHERE snapshot_id = $1`, snapshotID).Scan(&staged); err != nil {
		return fmt.Errorf("count staged records: %w", err)
	}
	if staged != expected {
		return fmt.Errorf("swap %s: staged %d records, expected %d", snapshotID, staged, expected)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshot_pointer (id, snapshot_id, swapped_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET snapshot_id = EXCLUDED.snapshot_id, swapped_at = EXCLUDED.swapped_at`,
		snapshotID,
	); err != nil {
		return fmt.Errorf("move snapshot pointer: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM published_records WHERE snapshot_id <> $1`, snapshotID); err != nil {
		return fmt.Errorf("drop previous snapshot: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Discard(ctx context.Context, snapshotID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM published_records
		 WHERE snapshot_id = $1
		   AND snapshot_id NOT IN (SELECT snapshot_id FROM snapshot_pointer)`,
		snapshotID,
	)
	return err
}

func (s *Store) Current(ctx context.Context) ([]domain.PublishedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.current")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT r.payload
		 FROM published_records r
		 JOIN snapshot_pointer p ON p.snapshot_id = r.snapshot_id
		 ORDER BY r.asset_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PublishedRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r domain.PublishedRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CurrentAsset(ctx context.Context, assetID string) (domain.PublishedRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT r.payload
		 FROM published_records r
		 JOIN snapshot_pointer p ON p.snapshot_id = r.snapshot_id
		 WHERE r.asset_id = $1`,
		assetID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublishedRecord{}, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PublishedRecord{}, err
	}
	var r domain.PublishedRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.PublishedRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

func historyTable(window domain.HistoryWindow) (string, error) {
	switch window {
	case domain.WindowYearly:
		return "price_history_yearly", nil
	case domain.WindowHourly:
		return "price_history_hourly", nil
	default:
		return "", fmt.Errorf("unknown history window %q", window)
	}
}

func (s *Store) SaveHistory(ctx context.Context, window domain.HistoryWindow, series domain.PriceSeries) error {
	ctx, span := s.tracer.Start(ctx, "postgres.save-history")
	defer span.End()

	table, err := historyTable(window)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range series.Points {
		batch.Queue(
			`INSERT INTO `+table+` (asset_id, ts, price) VALUES ($1, $2, $3)
			 ON CONFLICT (asset_id, ts) DO UPDATE SET price = EXCLUDED.price`,
			series.AssetID, p.Time, p.Price,
		)
	}

	if window == domain.WindowYearly {
		return s.execBatch(ctx, s.pool, batch)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history replace: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE asset_id = $1`, series.AssetID); err != nil {
		return fmt.Errorf("clear hourly history: %w", err)
	}
	if err := s.execBatch(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) History(ctx context.Context, window domain.HistoryWindow, assetID string) (domain.PriceSeries, error) {
	table, err := historyTable(window)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	rows, err := s.pool.Query(ctx, `SELECT ts, price FROM `+table+` WHERE asset_id = $1 ORDER BY ts`, assetID)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Time, &p.Price); err != nil {
			return domain.PriceSeries{}, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return domain.PriceSeries{}, err
	}
	return domain.NewPriceSeries(assetID, points), nil
}

func (s *Store) UpsertCatalog(ctx context.Context, entries []domain.CatalogEntry) (int, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.upsert-catalog")
	defer span.End()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO asset_catalog (asset_id, symbol, name, name_key, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (asset_id) DO UPDATE SET
			     symbol = EXCLUDED.symbol,
			     name = EXCLUDED.name,
			     name_key = EXCLUDED.name_key,
			     updated_at = EXCLUDED.updated_at`,
			e.ID, e.Symbol, e.Name, e.NameKey,
		)
	}
	if err := s.execBatch(ctx, s.pool, batch); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Store) CatalogByNameKey(ctx context.Context, nameKey string) ([]domain.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, symbol, name, name_key FROM asset_catalog WHERE name_key = $1 ORDER BY asset_id`,
		nameKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CatalogEntry
	for rows.Next() {
		var e domain.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Name, &e.NameKey); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CatalogByID(ctx context.Context, assetID string) (domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	err := s.pool.QueryRow(ctx,
		`SELECT asset_id, symbol, name, name_key FROM asset_catalog WHERE asset_id = $1`,
		assetID,
	).Scan(&e.ID, &e.Symbol, &e.Name, &e.NameKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("catalog %s: %w", assetID, domain.ErrNotFound)
	}
	return e, err
}

func (s *Store) Portfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT coin_name, COALESCE(asset_id, ''), owner FROM portfolio_assets ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PortfolioEntry
	for rows.Next() {
		var e domain.PortfolioEntry
		if err := rows.Scan(&e.CoinName, &e.AssetID, &e.Owner); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveRun(ctx context.Context, report domain.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	var finished any
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (run_id, started_at, finished_at, status, report)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id) DO UPDATE SET
		     finished_at = EXCLUDED.finished_at,
		     status = EXCLUDED.status,
		     report = EXCLUDED.report`,
		report.RunID, report.StartedAt, finished, string(report.Status), payload,
	)
	return err
}

func (s *Store) LatestRun(ctx context.Context) (domain.RunReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunReport{}, fmt.Errorf("latest run: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunReport{}, err
	}
	var report domain.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return domain.RunReport{}, fmt.Errorf("decode run report: %w", err)
	}
	return report, nil
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (s *Store) execBatch(ctx context.Context, conn batchSender, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}
