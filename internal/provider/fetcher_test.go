package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"blockminds/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

type countingLimiter struct{ waits int32 }

func (c *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&c.waits, 1)
	return ctx.Err()
}

func newTestFetcher(rt roundTripFunc, limiter Limiter, attempts int) (*Fetcher, *[]time.Duration) {
	f := NewFetcher("test", &http.Client{Transport: rt}, limiter,
		RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Second, MaxDelay: time.Minute},
		testTracer, zerolog.Nop())
	slept := &[]time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	f.jitter = func() time.Duration { return 0 }
	return f, slept
}

func TestFetcherRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	limiter := &countingLimiter{}
	f, slept := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return jsonResponse(http.StatusTooManyRequests, `{"error":"slow down"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":"bitcoin","market_data":{}}`), nil
	}, limiter, 5)

	body, err := f.Get(context.Background(), Request{
		AssetID:  "bitcoin",
		URL:      "http://example/coins/bitcoin",
		Validate: RequireKeys("id", "market_data"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "bitcoin") {
		t.Fatalf("unexpected body %s", body)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if limiter.waits != 3 {
		t.Fatalf("limiter must be acquired before every attempt, got %d waits", limiter.waits)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence %v", *slept)
	}
}

func TestFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	f, slept := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusBadGateway, `bad gateway`), nil
	}, nil, 5)

	_, err := f.Get(context.Background(), Request{AssetID: "ethereum", URL: "http://example/coins/ethereum"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrAssetUnavailable) {
		t.Fatalf("expected asset unavailable, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if !fe.Transient() || fe.Attempts != 5 || fe.AssetID != "ethereum" || fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected fetch error %+v", fe)
	}
	if calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", calls)
	}
	for i := 1; i < len(*slept); i++ {
		if (*slept)[i] < (*slept)[i-1] {
			t.Fatalf("backoff decreased: %v", *slept)
		}
	}
}

func TestFetcherRetriesNetworkErrors(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection reset")
		}
		return jsonResponse(http.StatusOK, `{"prices":[]}`), nil
	}, nil, 3)

	if _, err := f.Get(context.Background(), Request{URL: "http://example/x", Validate: RequireKeys("prices")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	f, slept := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusNotFound, `{"error":"coin not found"}`), nil
	}, nil, 5)

	_, err := f.Get(context.Background(), Request{AssetID: "nope", URL: "http://example/coins/nope"})
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.Permanent {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected wrapped status error, got %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Fatalf("expected a single attempt without sleeping, calls=%d sleeps=%d", calls, len(*slept))
	}
}

func TestFetcherRejectsMalformedPayload(t *testing.T) {
	f, _ := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":"bitcoin"}`), nil
	}, nil, 5)

	_, err := f.Get(context.Background(), Request{AssetID: "bitcoin", URL: "http://example", Validate: RequireKeys("id", "market_data")})
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.Permanent {
		t.Fatalf("expected permanent error for missing key, got %v", err)
	}
	if !strings.Contains(err.Error(), "market_data") {
		t.Fatalf("error should name the missing key: %v", err)
	}
}

func TestFetcherStopsWhenCancelledBetweenAttempts(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusServiceUnavailable, ``), nil
	}, nil, 5)

	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := f.Get(ctx, Request{URL: "http://example"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", calls)
	}
}

func TestFetcherSendsParamsAndHeaders(t *testing.T) {
	f, _ := newTestFetcher(func(r *http.Request) (*http.Response, error) {
		if r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("missing query param: %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Test") != "1" || r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing headers: %v", r.Header)
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	}, nil, 1)

	_, err := f.Get(context.Background(), Request{
		URL:      "http://example/path",
		Params:   map[string][]string{"vs_currency": {"usd"}},
		Headers:  map[string]string{"X-Test": "1"},
		Validate: RequireJSON,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRetryPolicyBackoffIsMonotonic(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 20 * time.Second}
	prev := time.Duration(0)
	for k := 0; k < 40; k++ {
		d := p.Backoff(k)
		if d < prev {
			t.Fatalf("backoff(%d)=%s < backoff(%d)=%s", k, d, k-1, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("backoff(%d)=%s exceeds cap", k, d)
		}
		prev = d
	}
	if p.Backoff(0) != 500*time.Millisecond || p.Backoff(2) != 2*time.Second {
		t.Fatalf("unexpected doubling: %s %s", p.Backoff(0), p.Backoff(2))
	}
}
