package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptTracker counts failed deliveries per message id so the consumer can
// stop requeueing a poison message.
type AttemptTracker interface {
	Incr(ctx context.Context, messageID string) (int64, error)
	Reset(ctx context.Context, messageID string) error
}

type redisAttemptTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisAttemptTracker keeps one counter per message under prefix. The ttl
// bounds how long a counter outlives the last failure.
func NewRedisAttemptTracker(client *redis.Client, prefix string, ttl time.Duration) AttemptTracker {
	return &redisAttemptTracker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (t *redisAttemptTracker) key(messageID string) string {
	return fmt.Sprintf("%s:attempts:%s", t.prefix, messageID)
}

func (t *redisAttemptTracker) Incr(ctx context.Context, messageID string) (int64, error) {
	key := t.key(messageID)

	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr delivery attempts: %w", err)
	}

	return incr.Val(), nil
}

func (t *redisAttemptTracker) Reset(ctx context.Context, messageID string) error {
	if err := t.client.Del(ctx, t.key(messageID)).Err(); err != nil {
		return fmt.Errorf("reset delivery attempts: %w", err)
	}
	return nil
}
