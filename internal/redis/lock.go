package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockLost        = errors.New("lock lost while held")
)

// Locker guards a critical section across replicas of the same worker.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Lease keys hold the owner's token; both scripts only act on a matching token.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// LeaseLocker holds a Redis lease for as long as fn runs, renewing it every
// ttl/3. If a renewal finds the key gone or owned by someone else, fn's
// context is cancelled and WithLock reports ErrLockLost.
type LeaseLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *LeaseLocker {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &LeaseLocker{client: client, ttl: ttl}
}

func leaseKey(name string) string {
	return "lock:" + name
}

func (l *LeaseLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := leaseKey(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	held, cancel := context.WithCancel(ctx)
	var lost atomic.Bool
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		if !l.renew(held, key, token) {
			lost.Store(true)
			cancel()
		}
	}()

	fnErr := fn(held)

	cancel()
	<-renewDone
	if err := l.release(context.WithoutCancel(ctx), key, token); err != nil && fnErr == nil {
		fnErr = err
	}

	if lost.Load() {
		return fmt.Errorf("%w: %s", ErrLockLost, name)
	}
	return fnErr
}

// renew extends the lease until ctx ends. It returns false once the lease is
// no longer ours.
func (l *LeaseLocker) renew(ctx context.Context, key, token string) bool {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			if ctx.Err() != nil {
				return true
			}
			// a transient error keeps the lease until its ttl runs out
			if err == nil && n == 0 {
				return false
			}
		}
	}
}

func (l *LeaseLocker) release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly, for a single relay replica or when Redis is
// not configured.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
