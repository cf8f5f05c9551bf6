package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"blockminds/internal/domain"

	"github.com/redis/go-redis/v9"
)

// memRedis implements the small slices of the Redis API used by this package.
type memRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if script != releaseScript {
		return redis.NewCmdResult(nil, errors.New("unknown script"))
	}
	if m.data[keys[0]] == args[0].(string) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		b, _ := json.Marshal(v)
		m.data[key] = string(b)
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	if v, ok := m.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	r := newMemRedis()
	locker := NewLocker(r, time.Minute)

	lock, err := locker.Acquire(context.Background(), "publish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ttls["publish"] != time.Minute {
		t.Fatalf("expected lock ttl, got %v", r.ttls["publish"])
	}
	if _, err := locker.Acquire(context.Background(), "publish"); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := locker.Acquire(context.Background(), "publish"); err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
}

func TestLockReleaseLeavesForeignToken(t *testing.T) {
	r := newMemRedis()
	locker := NewLocker(r, time.Minute)

	lock, err := locker.Acquire(context.Background(), "publish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate expiry and takeover by another process.
	r.data["publish"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if r.data["publish"] != "someone-else" {
		t.Fatal("expected foreign lock to survive release")
	}
}

func TestTTLCacheRoundTrip(t *testing.T) {
	r := newMemRedis()
	c := NewTTLCache(r, "onchain:", 15*time.Minute)

	var out struct{ Liquidity float64 }
	found, err := c.Get(context.Background(), "bitcoin", &out)
	if err != nil || found {
		t.Fatalf("expected miss, got %v %v", found, err)
	}

	if err := c.Set(context.Background(), "bitcoin", map[string]float64{"Liquidity": 12.5}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if r.ttls["onchain:bitcoin"] != 15*time.Minute {
		t.Fatalf("expected prefixed key with ttl, got %v", r.ttls)
	}
	found, err = c.Get(context.Background(), "bitcoin", &out)
	if err != nil || !found || out.Liquidity != 12.5 {
		t.Fatalf("unexpected hit %v %v %+v", found, err, out)
	}
}

func TestTTLCacheReadError(t *testing.T) {
	r := newMemRedis()
	r.getErr = errors.New("down")
	var out map[string]any
	if _, err := NewTTLCache(r, "", time.Minute).Get(context.Background(), "k", &out); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilTTLCacheIsNoop(t *testing.T) {
	var c *TTLCache
	if err := c.Set(context.Background(), "k", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found, err := c.Get(context.Background(), "k", new(int)); found || err != nil {
		t.Fatalf("unexpected %v %v", found, err)
	}
}
