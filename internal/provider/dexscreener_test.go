package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"blockminds/internal/domain"

	"github.com/rs/zerolog"
)

func newTestDex(rt roundTripFunc) *DexScreenerProvider {
	p := NewDexScreenerProvider(testTracer, zerolog.Nop(), "http://example", 1000, RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond})
	p.fetcher.client = &http.Client{Transport: rt}
	return p
}

func TestDexSearchTokenAddress(t *testing.T) {
	p := newTestDex(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/latest/dex/search" || r.URL.Query().Get("q") != "PEPE" {
			t.Fatalf("unexpected request %s", r.URL)
		}
		return jsonResponse(http.StatusOK, `{"pairs":[{"baseToken":{"address":"0x6982508145454ce325ddbe47a25d4ec3d2311933","symbol":"PEPE"}}]}`), nil
	})

	addr, err := p.SearchTokenAddress(context.Background(), "pepe", "PEPE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0x6982508145454ce325ddbe47a25d4ec3d2311933" {
		t.Fatalf("unexpected address %s", addr)
	}
}

func TestDexSearchNoPairs(t *testing.T) {
	p := newTestDex(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"pairs":null}`), nil
	})

	if _, err := p.SearchTokenAddress(context.Background(), "x", "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDexTokenLiquidity(t *testing.T) {
	p := newTestDex(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"pairs":[{"liquidity":{"usd":1234.5}},{"liquidity":{"usd":1}}]}`), nil
	})

	liq, err := p.TokenLiquidity(context.Background(), "pepe", "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !liq.Valid || liq.Float64 != 1234.5 {
		t.Fatalf("unexpected liquidity %+v", liq)
	}
}

func TestDexTokenLiquidityMissing(t *testing.T) {
	p := newTestDex(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"pairs":[{"baseToken":{}}]}`), nil
	})

	liq, err := p.TokenLiquidity(context.Background(), "pepe", "0xabc")
	if err != nil || liq.Valid {
		t.Fatalf("expected null liquidity, got %+v err=%v", liq, err)
	}
}
