package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blockminds/internal/domain"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const maxRetries = 5

type stubFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	attempts int
	fail     func(id string, call int) bool

	active    int32
	maxActive int32
}

func newStubFetcher(fail func(id string, call int) bool) *stubFetcher {
	return &stubFetcher{calls: make(map[string]int), fail: fail}
}

func (s *stubFetcher) FetchMarketSnapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		cur := atomic.LoadInt32(&s.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&s.maxActive, cur, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.calls[id]++
	call := s.calls[id]
	failing := s.fail(id, call)
	if failing {
		s.attempts += maxRetries
	} else {
		s.attempts++
	}
	s.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("fetch %s: %w", id, domain.ErrAssetUnavailable)
	}
	return &domain.MarketSnapshot{
		AssetID:      id,
		CurrentPrice: null.FloatFrom(150),
		ATL:          null.FloatFrom(50),
	}, nil
}

func newTestCollector(f SnapshotFetcher, opts Options) (*Collector, *[]time.Duration) {
	c := New(f, opts, trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
	slept := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return c, slept
}

func assetIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("asset-%02d", i)
	}
	return ids
}

func TestCollectPartialFailure(t *testing.T) {
	ids := assetIDs(10)
	failing := map[string]bool{"asset-02": true, "asset-05": true, "asset-09": true}
	f := newStubFetcher(func(id string, _ int) bool { return failing[id] })
	c, slept := newTestCollector(f, Options{ChunkSize: 4, Workers: 2, ChunkDelay: 50 * time.Second})

	res, err := c.Collect(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Order) != 7 || len(res.Snapshots) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(res.Order))
	}
	failed := res.FailedIDs()
	if len(failed) != 3 || failed[0] != "asset-02" || failed[1] != "asset-05" || failed[2] != "asset-09" {
		t.Fatalf("unexpected failures %v", failed)
	}
	if res.Incomplete {
		t.Fatal("expected a complete result")
	}
	for id := range failing {
		if f.calls[id] != 2 {
			t.Fatalf("expected exactly one retry for %s, got %d calls", id, f.calls[id])
		}
	}
	if bound := 10 * 2 * maxRetries; f.attempts > bound {
		t.Fatalf("expected at most %d attempts, got %d", bound, f.attempts)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected a delay between each of 3 chunks only, got %d", len(*slept))
	}
	if f.maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, got %d", f.maxActive)
	}
}

func TestCollectKeepsInputOrderAndComputesROI(t *testing.T) {
	ids := []string{"solana", "bitcoin", "ethereum", "bitcoin", ""}
	f := newStubFetcher(func(string, int) bool { return false })
	c, _ := newTestCollector(f, Options{ChunkSize: 2, Workers: 2})

	res, err := c.Collect(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := res.Rows()
	if len(rows) != 3 || rows[0].AssetID != "solana" || rows[1].AssetID != "bitcoin" || rows[2].AssetID != "ethereum" {
		t.Fatalf("unexpected order %v", res.Order)
	}
	if !rows[0].ROI.Valid || rows[0].ROI.Float64 != 200 {
		t.Fatalf("expected ROI 200, got %+v", rows[0].ROI)
	}
}

func TestCollectRetryPassRecoversFlakyAsset(t *testing.T) {
	f := newStubFetcher(func(id string, call int) bool { return id == "flaky" && call == 1 })
	c, _ := newTestCollector(f, Options{ChunkSize: 4, Workers: 2})

	res, err := c.Collect(context.Background(), []string{"steady", "flaky"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Order) != 2 || len(res.Failed) != 0 {
		t.Fatalf("expected recovery on retry pass, got %+v", res)
	}
}

func TestCollectCancelledBetweenChunks(t *testing.T) {
	f := newStubFetcher(func(string, int) bool { return false })
	c, _ := newTestCollector(f, Options{ChunkSize: 2, Workers: 2, ChunkDelay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := c.Collect(ctx, assetIDs(6))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !res.Incomplete {
		t.Fatal("expected incomplete result")
	}
	if len(res.Order) != 2 || len(res.Failed) != 4 {
		t.Fatalf("expected first chunk only, got %d rows and %d failures", len(res.Order), len(res.Failed))
	}
}

func TestCollectEmptyInput(t *testing.T) {
	f := newStubFetcher(func(string, int) bool { return false })
	c, slept := newTestCollector(f, DefaultOptions())

	res, err := c.Collect(context.Background(), nil)
	if err != nil || len(res.Order) != 0 || len(*slept) != 0 {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
}
