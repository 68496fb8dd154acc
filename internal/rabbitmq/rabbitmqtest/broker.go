// Package rabbitmqtest provides an in-memory broker that satisfies the rabbitmq
// Connection and Channel interfaces for tests.
package rabbitmqtest

import (
	"context"
	"errors"
	"sync"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Published is one message seen by the broker.
type Published struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
	Ctx        context.Context
}

// Settlement records an ack, nack or reject.
type Settlement struct {
	Op          string
	DeliveryTag uint64
	Requeue     bool
}

// Responder produces the reply to a request sent with direct reply-to. Returning
// nil sends no reply.
type Responder func(req Published) *amqp.Publishing

// Broker is an in-memory broker. Publishes are recorded. Deliveries are pushed
// with Deliver. Requests to the direct reply-to pseudo queue are answered by
// the responder.
type Broker struct {
	mu          sync.Mutex
	published   []Published
	queues      map[string]chan amqp.Delivery
	settled     []Settlement
	dials       []rabbitmq.ConnectionSettings
	conns       []*Conn
	declared    []string
	qos         []int
	responder   Responder
	publishErr  error
	dialErr     func(rabbitmq.ConnectionSettings) error
	nextTag     uint64
	publishedCh chan Published
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		queues:      make(map[string]chan amqp.Delivery),
		publishedCh: make(chan Published, 64),
	}
}

// Dial satisfies rabbitmq.Dialer.
func (b *Broker) Dial(_ context.Context, settings rabbitmq.ConnectionSettings) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials = append(b.dials, settings)
	if b.dialErr != nil {
		if err := b.dialErr(settings); err != nil {
			return nil, err
		}
	}
	conn := &Conn{broker: b, settings: settings}
	b.conns = append(b.conns, conn)
	return conn, nil
}

// FailDial makes Dial fail for settings that fn rejects.
func (b *Broker) FailDial(fn func(rabbitmq.ConnectionSettings) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = fn
}

// FailPublish makes every publish return err. Nil restores success.
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Respond installs the responder for direct reply-to requests.
func (b *Broker) Respond(fn Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responder = fn
}

// Published returns every committed publish in order.
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// NextPublished waits for the next publish or ctx.
func (b *Broker) NextPublished(ctx context.Context) (Published, error) {
	select {
	case p := <-b.publishedCh:
		return p, nil
	case <-ctx.Done():
		return Published{}, ctx.Err()
	}
}

// Dials returns the settings of every dial attempt.
func (b *Broker) Dials() []rabbitmq.ConnectionSettings {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rabbitmq.ConnectionSettings, len(b.dials))
	copy(out, b.dials)
	return out
}

// Connections returns every connection opened so far.
func (b *Broker) Connections() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Conn, len(b.conns))
	copy(out, b.conns)
	return out
}

// Declared returns declared topology as "exchange:name", "queue:name" and
// "binding:queue:exchange:key" entries.
func (b *Broker) Declared() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.declared))
	copy(out, b.declared)
	return out
}

// Prefetch returns the prefetch counts set through Qos.
func (b *Broker) Prefetch() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, len(b.qos))
	copy(out, b.qos)
	return out
}

// Settled returns acks, nacks and rejects in order.
func (b *Broker) Settled() []Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Settlement, len(b.settled))
	copy(out, b.settled)
	return out
}

// Deliver pushes d to consumers of queue and returns its delivery tag.
func (b *Broker) Deliver(queue string, d amqp.Delivery) uint64 {
	b.mu.Lock()
	b.nextTag++
	d.DeliveryTag = b.nextTag
	d.Acknowledger = b
	q := b.queueLocked(queue)
	b.mu.Unlock()

	q <- d
	return d.DeliveryTag
}

func (b *Broker) queueLocked(name string) chan amqp.Delivery {
	q, ok := b.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 64)
		b.queues[name] = q
	}
	return q
}

// Ack satisfies amqp.Acknowledger.
func (b *Broker) Ack(tag uint64, _ bool) error {
	return b.settle(Settlement{Op: "ack", DeliveryTag: tag})
}

// Nack satisfies amqp.Acknowledger.
func (b *Broker) Nack(tag uint64, _ bool, requeue bool) error {
	return b.settle(Settlement{Op: "nack", DeliveryTag: tag, Requeue: requeue})
}

// Reject satisfies amqp.Acknowledger.
func (b *Broker) Reject(tag uint64, requeue bool) error {
	return b.settle(Settlement{Op: "reject", DeliveryTag: tag, Requeue: requeue})
}

func (b *Broker) settle(s Settlement) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settled = append(b.settled, s)
	return nil
}

// Conn is an in-memory connection.
type Conn struct {
	broker   *Broker
	settings rabbitmq.ConnectionSettings
	mu       sync.Mutex
	closed   bool
	notify   []chan *amqp.Error
	channels int
}

// Settings returns the settings the connection was dialed with.
func (c *Conn) Settings() rabbitmq.ConnectionSettings {
	return c.settings
}

// Channel opens a channel.
func (c *Conn) Channel() (rabbitmq.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.channels++
	return &Chan{broker: c.broker}, nil
}

// ChannelsOpened returns how many channels were opened.
func (c *Conn) ChannelsOpened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels
}

// NotifyClose registers receiver for close notifications.
func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

// IsClosed reports whether the connection is closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection gracefully.
func (c *Conn) Close() error {
	return c.shutdown(nil)
}

// Drop simulates the broker closing the connection with err.
func (c *Conn) Drop(err *amqp.Error) {
	_ = c.shutdown(err)
}

func (c *Conn) shutdown(err *amqp.Error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, ch := range c.notify {
		if err != nil {
			ch <- err
		}
		close(ch)
	}
	c.notify = nil
	return nil
}

// Chan is an in-memory channel.
type Chan struct {
	broker  *Broker
	mu      sync.Mutex
	closed  bool
	tx      bool
	pending []Published
	replies chan amqp.Delivery
}

// PublishWithContext records the publish, or buffers it until commit in tx mode.
func (c *Chan) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}

	c.broker.mu.Lock()
	err := c.broker.publishErr
	responder := c.broker.responder
	c.broker.mu.Unlock()
	if err != nil {
		return err
	}

	p := Published{Exchange: exchange, RoutingKey: key, Msg: msg, Ctx: ctx}
	if c.tx {
		c.pending = append(c.pending, p)
		return nil
	}
	c.broker.record(p)

	if msg.ReplyTo == rabbitmq.DirectReplyTo && c.replies != nil && responder != nil {
		if reply := responder(p); reply != nil {
			c.replies <- amqp.Delivery{
				CorrelationId: msg.CorrelationId,
				ContentType:   reply.ContentType,
				Headers:       reply.Headers,
				Body:          reply.Body,
				Type:          reply.Type,
				MessageId:     reply.MessageId,
			}
		}
	}
	return nil
}

func (b *Broker) record(p Published) {
	b.mu.Lock()
	b.published = append(b.published, p)
	b.mu.Unlock()

	select {
	case b.publishedCh <- p:
	default:
	}
}

// Consume returns the delivery stream of queue.
func (c *Chan) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if queue == rabbitmq.DirectReplyTo {
		c.replies = make(chan amqp.Delivery, 16)
		return c.replies, nil
	}

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return c.broker.queueLocked(queue), nil
}

// Qos records the prefetch count.
func (c *Chan) Qos(prefetchCount, _ int, _ bool) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.qos = append(c.broker.qos, prefetchCount)
	return nil
}

// Cancel is a no-op.
func (c *Chan) Cancel(string, bool) error {
	return nil
}

// Tx puts the channel in transaction mode.
func (c *Chan) Tx() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = true
	return nil
}

// TxCommit records buffered publishes.
func (c *Chan) TxCommit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tx {
		return errors.New("rabbitmqtest: channel is not transactional")
	}
	for _, p := range c.pending {
		c.broker.record(p)
	}
	c.pending = nil
	return nil
}

// TxRollback drops buffered publishes.
func (c *Chan) TxRollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tx {
		return errors.New("rabbitmqtest: channel is not transactional")
	}
	c.pending = nil
	return nil
}

// ExchangeDeclare records the exchange.
func (c *Chan) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.broker.declare("exchange:" + name)
	return nil
}

// QueueDeclare records the queue.
func (c *Chan) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.broker.declare("queue:" + name)
	return amqp.Queue{Name: name}, nil
}

// QueueBind records the binding.
func (c *Chan) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.broker.declare("binding:" + name + ":" + exchange + ":" + key)
	return nil
}

func (b *Broker) declare(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, entry)
}

// Close closes the channel and its reply stream.
func (c *Chan) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	if c.replies != nil {
		close(c.replies)
	}
	return nil
}

// IsClosed reports whether the channel is closed.
func (c *Chan) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var (
	_ rabbitmq.Connection = (*Conn)(nil)
	_ rabbitmq.Channel    = (*Chan)(nil)
	_ amqp.Acknowledger   = (*Broker)(nil)
)
