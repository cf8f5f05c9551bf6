package postgres

import (
	"context"
	"errors"
	"testing"

	"blockminds/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...any) error { return r.err }

type fakePool struct {
	rowErr  error
	execSQL []string
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (p *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("unexpected batch")
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: p.rowErr}
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("unexpected transaction")
}

func newTestStore(pool PgxPool) *Store {
	return New(pool, trace.NewNoopTracerProvider().Tracer("test"), nil)
}

func TestHistoryTable(t *testing.T) {
	if got, err := historyTable(domain.WindowYearly); err != nil || got != "price_history_yearly" {
		t.Fatalf("yearly: %q %v", got, err)
	}
	if got, err := historyTable(domain.WindowHourly); err != nil || got != "price_history_hourly" {
		t.Fatalf("hourly: %q %v", got, err)
	}
	if _, err := historyTable("weekly"); err == nil {
		t.Fatal("expected error for unknown window")
	}
}

func TestCurrentAssetNotFound(t *testing.T) {
	s := newTestStore(&fakePool{rowErr: pgx.ErrNoRows})
	_, err := s.CurrentAsset(context.Background(), "bitcoin")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestRunNotFound(t *testing.T) {
	s := newTestStore(&fakePool{rowErr: pgx.ErrNoRows})
	_, err := s.LatestRun(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyStageSkipsBatch(t *testing.T) {
	s := newTestStore(&fakePool{})
	if err := s.Stage(context.Background(), "snap", nil); err != nil {
		t.Fatalf("stage: %v", err)
	}
}

func TestDiscardKeepsCurrentSnapshot(t *testing.T) {
	pool := &fakePool{}
	s := newTestStore(pool)
	if err := s.Discard(context.Background(), "snap"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if len(pool.execSQL) != 1 {
		t.Fatalf("expected one statement, got %d", len(pool.execSQL))
	}
}
