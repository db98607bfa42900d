package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNoopLocker_RunsFn(t *testing.T) {
	called := false
	err := NoopLocker{}.WithLock(context.Background(), "outbox-relay", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestNoopLocker_PropagatesFnError(t *testing.T) {
	boom := errors.New("boom")
	err := NoopLocker{}.WithLock(context.Background(), "outbox-relay", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRedisLocker_AcquireErrorSkipsFn(t *testing.T) {
	locker := NewRedisLocker(unreachableClient(t), time.Second)

	called := false
	err := locker.WithLock(context.Background(), "outbox-relay", func(context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
	assert.Contains(t, err.Error(), "acquire lock outbox-relay")
}

func TestLeaseLocker_KeyAndMinimumTTL(t *testing.T) {
	assert.Equal(t, "lock:outbox-relay", leaseKey("outbox-relay"))

	locker := NewRedisLocker(unreachableClient(t), 0)
	assert.Equal(t, time.Second, locker.ttl)
}

func TestRedisAttemptTracker_KeyLayout(t *testing.T) {
	tracker := NewRedisAttemptTracker(unreachableClient(t), "consultation", time.Hour).(*redisAttemptTracker)
	assert.Equal(t, "consultation:attempts:abc", tracker.key("abc"))
}

func TestRedisAttemptTracker_ErrorsWhenUnreachable(t *testing.T) {
	tracker := NewRedisAttemptTracker(unreachableClient(t), "consultation", time.Hour)

	_, err := tracker.Incr(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incr delivery attempts")

	err = tracker.Reset(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset delivery attempts")
}
