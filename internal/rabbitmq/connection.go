package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrChannelNotReady = errors.New("broker channel not ready")

// Channel is the subset of *amqp.Channel used by the publisher and consumer.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Broker is the subset of *amqp.Connection the Connection drives.
type Broker interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Broker, error)

type amqpBroker struct {
	*amqp.Connection
}

func (b amqpBroker) Channel() (Channel, error) {
	ch, err := b.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpBroker{Connection: conn}, nil
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SetupFunc runs on every fresh channel before the connection reports ready.
type SetupFunc func(ch Channel) error

// Connection owns one broker connection and channel per process and walks
// disconnected -> connecting -> ready, re-entering connecting after a loss.
type Connection struct {
	url   string
	dial  Dialer
	delay time.Duration
	log   *zap.Logger

	mu      sync.RWMutex
	state   State
	broker  Broker
	channel Channel
	setups  []SetupFunc
	ready   chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnection(url string, dial Dialer, delay time.Duration, log *zap.Logger) *Connection {
	if dial == nil {
		dial = DialAMQP
	}
	return &Connection{
		url:   url,
		dial:  dial,
		delay: delay,
		log:   log,
		state: StateDisconnected,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// OnReady registers a setup hook. Register hooks before Run.
func (c *Connection) OnReady(fn SetupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setups = append(c.setups, fn)
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Channel returns the live channel or ErrChannelNotReady. It never dials.
func (c *Connection) Channel() (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady || c.channel == nil {
		return nil, ErrChannelNotReady
	}
	return c.channel, nil
}

// WaitReady blocks until the connection is ready or ctx ends.
func (c *Connection) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run keeps the connection alive until ctx is cancelled or Close is called.
func (c *Connection) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer close(c.done)
	defer cancel()

	for {
		if runCtx.Err() != nil {
			c.shutdown()
			return
		}

		c.setState(StateConnecting)

		broker, ch, err := c.connect()
		if err != nil {
			c.log.Warn("broker connect failed, retrying",
				zap.Duration("delay", c.delay),
				zap.Error(err),
			)
			if !c.sleep(runCtx) {
				c.shutdown()
				return
			}
			continue
		}

		connClosed := broker.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		c.mu.Lock()
		c.broker = broker
		c.channel = ch
		c.state = StateReady
		close(c.ready)
		c.mu.Unlock()

		c.log.Info("broker connection ready")

		select {
		case <-runCtx.Done():
			c.shutdown()
			return
		case amqpErr := <-connClosed:
			c.log.Warn("broker connection lost", zap.Any("reason", amqpErr))
		case amqpErr := <-chanClosed:
			c.log.Warn("broker channel closed", zap.Any("reason", amqpErr))
		}

		c.mu.Lock()
		c.channel = nil
		c.broker = nil
		c.state = StateDisconnected
		c.ready = make(chan struct{})
		c.mu.Unlock()

		_ = ch.Close()
		_ = broker.Close()

		if !c.sleep(runCtx) {
			c.shutdown()
			return
		}
	}
}

// Close stops Run and waits for it to drain.
func (c *Connection) Close() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()

	if cancel == nil {
		c.setState(StateClosed)
		return
	}
	cancel()
	<-c.done
}

func (c *Connection) connect() (Broker, Channel, error) {
	broker, err := c.dial(c.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := broker.Channel()
	if err != nil {
		_ = broker.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	c.mu.RLock()
	setups := append([]SetupFunc(nil), c.setups...)
	c.mu.RUnlock()

	for _, setup := range setups {
		if err := setup(ch); err != nil {
			_ = ch.Close()
			_ = broker.Close()
			return nil, nil, fmt.Errorf("channel setup: %w", err)
		}
	}

	return broker, ch, nil
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	ch, broker := c.channel, c.broker
	c.channel = nil
	c.broker = nil
	c.state = StateClosed
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if broker != nil {
		_ = broker.Close()
	}
	c.log.Info("broker connection closed")
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
