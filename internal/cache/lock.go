package cache

import (
	"context"
	"fmt"
	"time"

	"blockminds/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker hands out expiring cross-process locks stored in Redis.
type Locker struct {
	client LockClient
	ttl    time.Duration
	token  func() string
}

func NewLocker(client LockClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Locker{client: client, ttl: ttl, token: uuid.NewString}
}

type Lock struct {
	client LockClient
	key    string
	token  string
}

// Acquire takes key or returns domain.ErrLockHeld if another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockHeld, key)
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it has not expired and been taken by someone else.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Lock acquires key and returns its release func, for callers that only
// need lock-and-unlock.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
