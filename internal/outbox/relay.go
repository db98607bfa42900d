package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/events"
	"github.com/hackgods/appointment-booking-saga/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-booking-saga/internal/redis"
)

const lockName = "outbox-relay"

// Store is the slice of the outbox table the relay needs.
type Store interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]Event, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int) (Status, error)
}

type Publisher interface {
	PublishEnvelope(ctx context.Context, messageID string, env events.Envelope) error
}

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// Ready reports whether the broker can take publishes. When set and
	// false, the tick is skipped without touching the table.
	Ready       func() bool
}

type Relay struct {
	store  Store
	pub    Publisher
	locker redisclient.Locker
	cfg    RelayConfig
	log    *zap.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRelay(store Store, pub Publisher, locker redisclient.Locker, cfg RelayConfig, log *zap.Logger) *Relay {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Relay{
		store:  store,
		pub:    pub,
		locker: locker,
		cfg:    cfg,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the polling loop in the background until ctx ends or Shutdown
// is called.
func (r *Relay) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	r.ProcessBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-r.stop:
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// Shutdown lets the in-flight batch finish, bounded by ctx.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessBatch publishes one batch of pending rows. Only one relay replica
// holds the lock at a time; the others skip the tick.
func (r *Relay) ProcessBatch(ctx context.Context) {
	if r.cfg.Ready != nil && !r.cfg.Ready() {
		r.log.Debug("broker not ready, skipping outbox tick")
		return
	}

	err := r.locker.WithLock(ctx, lockName, r.processBatch)
	switch {
	case err == nil:
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		r.log.Debug("outbox relay lock held elsewhere, skipping tick")
	default:
		r.log.Warn("outbox batch failed", zap.Error(err))
	}
}

func (r *Relay) processBatch(ctx context.Context) error {
	pending, err := r.store.FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		r.log.Info("outbox events pending", zap.Int("count", len(pending)))
	}

	for i, evt := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.relay(ctx, evt) {
			r.log.Info("broker not connected, leaving outbox batch for the next tick",
				zap.Int("remaining", len(pending)-i))
			return nil
		}
	}
	return nil
}

// relay publishes one row. It returns false when the broker is not connected;
// that is not the row's fault, so no attempt is recorded.
func (r *Relay) relay(ctx context.Context, evt Event) bool {
	fields := []zap.Field{
		zap.String("event_id", evt.ID.String()),
		zap.String("event_type", evt.EventType),
		zap.Int64("aggregate_id", evt.AggregateID),
	}

	if err := r.publish(ctx, evt); err != nil {
		if errors.Is(err, rabbitmq.ErrChannelNotReady) {
			return false
		}
		status, recErr := r.store.RecordFailure(ctx, evt.ID, r.cfg.MaxAttempts)
		if recErr != nil {
			r.log.Warn("outbox publish failed, attempt not recorded",
				append(fields, zap.Error(err), zap.NamedError("store_error", recErr))...)
			return true
		}
		if status == StatusFailed {
			r.log.Error("outbox event gave up after max attempts",
				append(fields, zap.Error(err), zap.Int("max_attempts", r.cfg.MaxAttempts))...)
			return true
		}
		r.log.Warn("outbox publish failed, will retry", append(fields, zap.Error(err))...)
		return true
	}

	if err := r.store.MarkSent(ctx, evt.ID); err != nil {
		r.log.Warn("outbox event published but not marked sent", append(fields, zap.Error(err))...)
		return true
	}
	r.log.Info("outbox event relayed", fields...)
	return true
}

// Dispatch publishes evt right away and marks it sent. On failure the row is
// left pending for the polling loop and the error is returned to the caller.
func (r *Relay) Dispatch(ctx context.Context, evt Event) error {
	if err := r.publish(ctx, evt); err != nil {
		return err
	}
	if err := r.store.MarkSent(ctx, evt.ID); err != nil {
		r.log.Warn("event dispatched but not marked sent",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, evt Event) error {
	env, err := evt.Envelope()
	if err != nil {
		return err
	}
	return r.pub.PublishEnvelope(ctx, evt.ID.String(), env)
}
