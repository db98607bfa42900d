package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/events"
	redisclient "github.com/hackgods/appointment-booking-saga/internal/redis"
)

type ConsumerConfig struct {
	Exchange    string
	QueueName   string
	RoutingKey  string
	Prefetch    int
	MaxAttempts int // 0 means requeue forever

	DeadLetterExchange string // empty disables dead-lettering
	DeadLetterQueue    string

	HandlerTimeout time.Duration
}

// HandlerFunc processes one envelope. A nil return acks the delivery.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

type Consumer struct {
	conn     *Connection
	cfg      ConsumerConfig
	attempts redisclient.AttemptTracker
	log      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	// set once the broker refuses dead-letter arguments on an existing queue
	noDeadLetter atomic.Bool

	ctx context.Context
	wg  sync.WaitGroup
}

// NewConsumer wires the queue topology. attempts may be nil, which keeps the
// requeue-forever policy.
func NewConsumer(conn *Connection, cfg ConsumerConfig, attempts redisclient.AttemptTracker, log *zap.Logger) *Consumer {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	return &Consumer{
		conn:     conn,
		cfg:      cfg,
		attempts: attempts,
		log:      log.With(zap.String("queue", cfg.QueueName)),
		handlers: make(map[string]HandlerFunc),
		ctx:      context.Background(),
	}
}

func (c *Consumer) Handle(eventType string, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = h
}

// Start subscribes on every (re)connect. Call before Connection.Run.
func (c *Consumer) Start(ctx context.Context) {
	c.ctx = ctx
	c.conn.OnReady(c.subscribe)
}

// Wait blocks until every delivery loop has exited.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) subscribe(ch Channel) error {
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return err
	}

	args := amqp.Table{}
	if c.cfg.DeadLetterExchange != "" && !c.noDeadLetter.Load() {
		if err := c.declareDeadLetter(ch); err != nil {
			return err
		}
		args["x-dead-letter-exchange"] = c.cfg.DeadLetterExchange
		args["x-dead-letter-routing-key"] = c.cfg.QueueName
	}

	if _, err := ch.QueueDeclare(
		c.cfg.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		if len(args) > 0 && isPreconditionFailed(err) {
			// The broker closes the channel on 406, so the next reconnect
			// declares the queue with its existing arguments.
			c.noDeadLetter.Store(true)
			c.log.Warn("queue exists without dead-letter arguments, dead-lettering disabled until it is recreated",
				zap.String("dead_letter_exchange", c.cfg.DeadLetterExchange),
				zap.Error(err),
			)
		}
		return fmt.Errorf("declare queue %s: %w", c.cfg.QueueName, err)
	}

	if err := ch.QueueBind(c.cfg.QueueName, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.cfg.QueueName, err)
	}

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	deliveries, err := ch.Consume(
		c.cfg.QueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.QueueName, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range deliveries {
			c.handleDelivery(d)
		}
		c.log.Info("delivery stream closed")
	}()

	c.log.Info("consumer subscribed", zap.String("routing_key", c.cfg.RoutingKey))
	return nil
}

func (c *Consumer) declareDeadLetter(ch Channel) error {
	err := ch.ExchangeDeclare(c.cfg.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.DeadLetterQueue, c.cfg.QueueName, c.cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// handleDelivery settles d only after the handler has returned.
func (c *Consumer) handleDelivery(d amqp.Delivery) {
	var err error
	switch c.process(d) {
	case outcomeAck:
		err = d.Ack(false)
	case outcomeRequeue:
		err = d.Nack(false, true)
	case outcomeDeadLetter:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.log.Error("settle delivery", zap.String("message_id", d.MessageId), zap.Error(err))
	}
}

func (c *Consumer) process(d amqp.Delivery) outcome {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandlerTimeout)
	defer cancel()

	env, err := events.ParseEnvelope(d.Body)
	if err != nil {
		return c.failed(ctx, d, err)
	}

	c.mu.RLock()
	h, ok := c.handlers[env.Type]
	c.mu.RUnlock()
	if !ok {
		c.log.Info("unknown event type dropped",
			zap.String("type", env.Type),
			zap.String("message_id", d.MessageId),
		)
		return outcomeAck
	}

	if err := h(ctx, env); err != nil {
		return c.failed(ctx, d, err)
	}

	if c.attempts != nil && d.MessageId != "" && d.Redelivered {
		if err := c.attempts.Reset(ctx, d.MessageId); err != nil {
			c.log.Warn("reset delivery attempts", zap.String("message_id", d.MessageId), zap.Error(err))
		}
	}
	return outcomeAck
}

func (c *Consumer) failed(ctx context.Context, d amqp.Delivery, cause error) outcome {
	fields := []zap.Field{
		zap.String("message_id", d.MessageId),
		zap.Bool("redelivered", d.Redelivered),
		zap.Error(cause),
	}

	if c.attempts == nil || c.cfg.MaxAttempts <= 0 || d.MessageId == "" || c.noDeadLetter.Load() {
		c.log.Warn("delivery failed, requeueing", fields...)
		return outcomeRequeue
	}

	n, err := c.attempts.Incr(ctx, d.MessageId)
	if err != nil {
		c.log.Warn("delivery failed, attempt count unavailable, requeueing",
			append(fields, zap.NamedError("tracker_error", err))...)
		return outcomeRequeue
	}

	if n >= int64(c.cfg.MaxAttempts) {
		c.log.Error("delivery failed too many times, dead-lettering",
			append(fields, zap.Int64("attempts", n))...)
		if err := c.attempts.Reset(ctx, d.MessageId); err != nil {
			c.log.Warn("reset delivery attempts", zap.String("message_id", d.MessageId), zap.Error(err))
		}
		return outcomeDeadLetter
	}

	c.log.Warn("delivery failed, requeueing", append(fields, zap.Int64("attempts", n))...)
	return outcomeRequeue
}
