package rabbitmq

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeServer is an in-process stand-in for a RabbitMQ node: one topic
// exchange model, durable queues, and settle bookkeeping.
type fakeServer struct {
	mu sync.Mutex

	failDials int
	dials     int

	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  map[string][]binding
	pending   map[string][]amqp.Delivery
	consumers map[string]chan amqp.Delivery
	published []amqp.Publishing

	nextTag uint64
	inbox   map[uint64]amqp.Delivery
	acks    []uint64
	nacks   []nack

	conns []*fakeConn
}

type binding struct {
	exchange string
	key      string
}

type nack struct {
	tag     uint64
	requeue bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		exchanges: make(map[string]string),
		queues:    make(map[string]amqp.Table),
		bindings:  make(map[string][]binding),
		pending:   make(map[string][]amqp.Delivery),
		consumers: make(map[string]chan amqp.Delivery),
		inbox:     make(map[uint64]amqp.Delivery),
	}
}

func (s *fakeServer) dial(string) (Broker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	if s.failDials > 0 {
		s.failDials--
		return nil, errors.New("connection refused")
	}

	conn := &fakeConn{server: s}
	s.conns = append(s.conns, conn)
	return conn, nil
}

// dropConnections simulates a broker restart: every open connection is
// notified and every consumer stream is closed.
func (s *fakeServer) dropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	for q, ch := range s.consumers {
		close(ch)
		delete(s.consumers, q)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.lost()
	}
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) publishedMessages() []amqp.Publishing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]amqp.Publishing(nil), s.published...)
}

func (s *fakeServer) settled() (acks []uint64, nacks []nack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.acks...), append([]nack(nil), s.nacks...)
}

func (s *fakeServer) exchangeKind(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges[name]
}

func (s *fakeServer) pendingCount(queue string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[queue])
}

func (s *fakeServer) queueArgs(name string) (amqp.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	args, ok := s.queues[name]
	return args, ok
}

func topicMatch(pattern, key string) bool {
	if pattern == "#" {
		return true
	}
	p := strings.Split(pattern, ".")
	k := strings.Split(key, ".")
	if len(p) != len(k) {
		return false
	}
	for i := range p {
		if p[i] != "*" && p[i] != k[i] {
			return false
		}
	}
	return true
}

// route must be called with s.mu held.
func (s *fakeServer) route(d amqp.Delivery, queue string) {
	s.nextTag++
	d.DeliveryTag = s.nextTag
	d.Acknowledger = s
	s.inbox[d.DeliveryTag] = d

	if ch, ok := s.consumers[queue]; ok {
		ch <- d
		return
	}
	s.pending[queue] = append(s.pending[queue], d)
}

func (s *fakeServer) Ack(tag uint64, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, tag)
	delete(s.inbox, tag)
	return nil
}

func (s *fakeServer) Nack(tag uint64, _ bool, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nacks = append(s.nacks, nack{tag: tag, requeue: requeue})

	d, ok := s.inbox[tag]
	delete(s.inbox, tag)
	if !ok {
		return nil
	}

	if requeue {
		d.Redelivered = true
		s.route(d, d.ConsumerTag)
		return nil
	}

	if dlx, ok := s.queues[d.ConsumerTag]["x-dead-letter-exchange"].(string); ok {
		for q, bs := range s.bindings {
			for _, b := range bs {
				if b.exchange == dlx && b.key == d.ConsumerTag {
					dead := d
					dead.ConsumerTag = q
					s.route(dead, q)
				}
			}
		}
	}
	return nil
}

func (s *fakeServer) Reject(tag uint64, requeue bool) error {
	return s.Nack(tag, false, requeue)
}

type fakeConn struct {
	server *fakeServer

	mu       sync.Mutex
	closed   bool
	notify   []chan *amqp.Error
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{server: c.server}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConn) lost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, n := range c.notify {
		n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"}
		close(n)
	}
	c.notify = nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	if !c.closed {
		c.closed = true
		for _, n := range c.notify {
			close(n)
		}
		c.notify = nil
	}
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

type fakeChannel struct {
	server *fakeServer

	mu      sync.Mutex
	notify  []chan *amqp.Error
	streams map[string]chan amqp.Delivery
	closed  bool
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.exchanges[name]; ok && existing != kind {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg 'type'"}
	}
	s.exchanges[name] = kind
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.queues[name]; ok && !sameArgs(existing, args) {
		return amqp.Queue{}, &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg 'x-dead-letter-exchange'"}
	}
	s.queues[name] = args
	return amqp.Queue{Name: name, Messages: len(s.pending[name])}, nil
}

func sameArgs(a, b amqp.Table) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings[name] {
		if b.exchange == exchange && b.key == key {
			return nil
		}
	}
	s.bindings[name] = append(s.bindings[name], binding{exchange: exchange, key: key})
	return nil
}

func (ch *fakeChannel) Qos(int, int, bool) error { return nil }

func (ch *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(chan amqp.Delivery, 128)
	s.consumers[queue] = out

	ch.mu.Lock()
	if ch.streams == nil {
		ch.streams = make(map[string]chan amqp.Delivery)
	}
	ch.streams[queue] = out
	ch.mu.Unlock()
	for _, d := range s.pending[queue] {
		out <- d
	}
	delete(s.pending, queue)
	return out, nil
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exchanges[exchange]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: "no exchange " + exchange}
	}
	s.published = append(s.published, msg)

	for q, bs := range s.bindings {
		for _, b := range bs {
			if b.exchange == exchange && topicMatch(b.key, key) {
				s.route(amqp.Delivery{
					ConsumerTag:  q,
					Exchange:     exchange,
					RoutingKey:   key,
					ContentType:  msg.ContentType,
					DeliveryMode: msg.DeliveryMode,
					MessageId:    msg.MessageId,
					Type:         msg.Type,
					Timestamp:    msg.Timestamp,
					Body:         msg.Body,
				}, q)
				break
			}
		}
	}
	return nil
}

func (ch *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.notify = append(ch.notify, receiver)
	return receiver
}

// Close ends this channel's consumer streams unless a broker drop already did.
func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	for _, n := range ch.notify {
		close(n)
	}
	ch.notify = nil
	streams := ch.streams
	ch.streams = nil
	ch.mu.Unlock()

	s := ch.server
	s.mu.Lock()
	defer s.mu.Unlock()
	for q, out := range streams {
		if s.consumers[q] == out {
			close(out)
			delete(s.consumers, q)
		}
	}
	return nil
}
