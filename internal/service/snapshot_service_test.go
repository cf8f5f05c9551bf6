package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/store"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type mapCache struct {
	mu   sync.Mutex
	data map[string][]domain.PublishedRecord
	sets int
}

func (c *mapCache) Get(ctx context.Context, key string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return false, nil
	}
	*(out.(*[]domain.PublishedRecord)) = v
	return true, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = value.([]domain.PublishedRecord)
	return nil
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	recs := []domain.PublishedRecord{
		{AssetID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: null.IntFrom(1)},
		{AssetID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: null.IntFrom(2)},
		{AssetID: "ethereum-classic", Symbol: "etc", Name: "Ethereum Classic", MarketCapRank: null.IntFrom(40)},
		{AssetID: "newcoin", Symbol: "new", Name: "New Coin"},
	}
	if err := m.Stage(ctx, "s1", recs); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := m.Swap(ctx, "s1", len(recs)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	return m
}

func TestSnapshotServiceCachesSnapshot(t *testing.T) {
	cache := &mapCache{data: map[string][]domain.PublishedRecord{}}
	svc := NewSnapshotService(testTracer, seededStore(t), cache, zerolog.Nop())

	first, err := svc.Snapshot(context.Background())
	if err != nil || len(first) != 4 {
		t.Fatalf("snapshot: %d %v", len(first), err)
	}
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", cache.sets)
	}
}

func TestSnapshotServiceFindAsset(t *testing.T) {
	svc := NewSnapshotService(testTracer, seededStore(t), nil, zerolog.Nop())
	ctx := context.Background()

	cases := map[string]string{
		"Bitcoin":          "bitcoin",
		"ETH":              "ethereum",
		"ethereum classic": "ethereum-classic",
		"new coin":         "newcoin",
	}
	for query, want := range cases {
		got, err := svc.FindAsset(ctx, query)
		if err != nil || got.AssetID != want {
			t.Fatalf("%q: expected %s, got %s (%v)", query, want, got.AssetID, err)
		}
	}
	if _, err := svc.FindAsset(ctx, "dogecoin"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotServiceTop(t *testing.T) {
	svc := NewSnapshotService(testTracer, seededStore(t), nil, zerolog.Nop())
	top, err := svc.Top(context.Background(), 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 || top[0].AssetID != "bitcoin" || top[2].AssetID != "ethereum-classic" {
		t.Fatalf("unexpected order %+v", top)
	}
	all, _ := svc.Top(context.Background(), 0)
	if all[len(all)-1].AssetID != "newcoin" {
		t.Fatal("unranked asset should sort last")
	}
}

func TestSnapshotServiceHistoryWindow(t *testing.T) {
	svc := NewSnapshotService(testTracer, seededStore(t), nil, zerolog.Nop())
	if _, err := svc.History(context.Background(), "bitcoin", "weekly"); err == nil {
		t.Fatal("expected invalid window error")
	}
	if _, err := svc.History(context.Background(), "bitcoin", domain.WindowHourly); err != nil {
		t.Fatalf("history: %v", err)
	}
}

type stubRunner struct {
	running bool
	release chan struct{}
	calls   int
}

func (s *stubRunner) Run(ctx context.Context) (domain.RunReport, error) {
	s.calls++
	<-s.release
	return domain.RunReport{RunID: "r1", Published: 2}, nil
}

func (s *stubRunner) Running() bool { return s.running }

func TestRunTriggerRejectsOverlap(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	trigger := NewRunTrigger(runner, time.Minute, zerolog.Nop())
	finished := make(chan struct{})
	trigger.done = func(domain.RunReport, error) { close(finished) }

	if err := trigger.Trigger(context.Background()); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if err := trigger.Trigger(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(runner.release)
	<-finished
}

func TestRunTriggerRespectsScheduledRun(t *testing.T) {
	runner := &stubRunner{running: true, release: make(chan struct{})}
	trigger := NewRunTrigger(runner, 0, zerolog.Nop())
	if err := trigger.Trigger(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatal("runner must not be called")
	}
}
