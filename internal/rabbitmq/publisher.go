package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/events"
)

// declareExchange is idempotent on the broker; it runs on every reconnect.
func declareExchange(ch Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

type Publisher struct {
	conn     *Connection
	exchange string
	log      *zap.Logger
	now      func() time.Time

	// amqp channels must not interleave frames from concurrent publishes
	mu sync.Mutex
}

func NewPublisher(conn *Connection, exchange string, log *zap.Logger) *Publisher {
	p := &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
		now:      time.Now,
	}
	conn.OnReady(func(ch Channel) error {
		return declareExchange(ch, p.exchange)
	})
	return p
}

// Publish wraps payload in a fresh envelope and sends it under a new message id.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	env, err := events.NewEnvelope(eventType, p.now(), payload)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, uuid.NewString(), env)
}

// PublishEnvelope sends a prepared envelope. messageID must be stable across
// retries of the same event so consumers can count redeliveries.
func (p *Publisher) PublishEnvelope(ctx context.Context, messageID string, env events.Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	routingKey := events.RoutingKey(env.Type)

	p.mu.Lock()
	err = ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Type:         env.Type,
			Timestamp:    env.Timestamp,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("publish %s: %w: %w", env.Type, ErrChannelNotReady, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}

	p.log.Info("event published",
		zap.String("type", env.Type),
		zap.String("routing_key", routingKey),
		zap.String("message_id", messageID),
	)
	return nil
}
