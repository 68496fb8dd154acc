package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Descriptor is the immutable transport of one sender: where its messages go, how
// they are encoded and which connection carries them.
type Descriptor struct {
	service       contracts.Service
	profile       string
	sender        string
	connection    rabbitmq.ConnectionSettings
	settings      SenderSettings
	codec         serialization.Codec
	properties    MessageProperties
	directRouting bool
	transport     *profileTransport
}

// Service returns the destination service.
func (d *Descriptor) Service() contracts.Service { return d.service }

// Profile returns the connection profile name.
func (d *Descriptor) Profile() string { return d.profile }

// Sender returns the sender name, which is the message type tag it serves.
func (d *Descriptor) Sender() string { return d.sender }

// Exchange returns the target exchange.
func (d *Descriptor) Exchange() string { return d.settings.Exchange }

// RoutingKey returns the routing key.
func (d *Descriptor) RoutingKey() string { return d.settings.RoutingKey }

// Queue returns the queue bound to the exchange with the routing key.
func (d *Descriptor) Queue() string { return d.settings.Queue }

// Transacted reports whether publishes run in a channel transaction.
func (d *Descriptor) Transacted() bool { return d.settings.Transacted }

// ReplyTimeout bounds request/reply on this sender.
func (d *Descriptor) ReplyTimeout() time.Duration { return d.settings.ReplyTimeout }

// DirectRouting reports whether the profile allows sends to arbitrary exchanges
// and routing keys.
func (d *Descriptor) DirectRouting() bool { return d.directRouting }

// Codec returns the payload codec.
func (d *Descriptor) Codec() serialization.Codec { return d.codec }

// Properties returns a copy of the default message properties.
func (d *Descriptor) Properties() MessageProperties { return d.properties.Clone() }

// Connection returns a copy of the connection settings.
func (d *Descriptor) Connection() rabbitmq.ConnectionSettings {
	c := d.connection
	c.Addresses = append([]rabbitmq.Address(nil), d.connection.Addresses...)
	return c
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s/%s/%s -> %s[%s] via %s", d.service, d.profile, d.sender,
		d.settings.Exchange, d.settings.RoutingKey, d.connection.String())
}

// Publish sends msg once to the sender's exchange and routing key.
func (d *Descriptor) Publish(ctx context.Context, msg amqp.Publishing) error {
	return d.transport.publish(ctx, d.settings.Exchange, d.settings.RoutingKey, d.settings.Transacted, msg)
}

// PublishTo sends msg once to an arbitrary exchange and routing key over the
// sender's connection.
func (d *Descriptor) PublishTo(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	return d.transport.publish(ctx, exchange, routingKey, d.settings.Transacted, msg)
}

// Request sends msg to the sender's exchange and waits up to ReplyTimeout for the
// correlated reply.
func (d *Descriptor) Request(ctx context.Context, msg amqp.Publishing) (amqp.Delivery, error) {
	return d.transport.replies.Request(ctx, d.settings.Exchange, d.settings.RoutingKey, msg, d.settings.ReplyTimeout)
}

// Receiver is the transport of one listener.
type Receiver struct {
	name      string
	service   contracts.Service
	profile   string
	listener  string
	settings  ListenerSettings
	codec     serialization.Codec
	transport *profileTransport
}

// Name returns the deterministic receiver name.
func (r *Receiver) Name() string { return r.name }

// Service returns the service whose broker the receiver consumes from.
func (r *Receiver) Service() contracts.Service { return r.service }

// Profile returns the connection profile name.
func (r *Receiver) Profile() string { return r.profile }

// Listener returns the configured listener name.
func (r *Receiver) Listener() string { return r.listener }

// Queue returns the consumed queue.
func (r *Receiver) Queue() string { return r.settings.Queue }

// Settings returns the listener settings.
func (r *Receiver) Settings() ListenerSettings { return r.settings }

// Codec returns the payload codec.
func (r *Receiver) Codec() serialization.Codec { return r.codec }

// NewConsumer returns a consumer for the receiver's queue. Deliveries are settled
// by the handler, which is expected to be wrapped by the tracing decorator.
func (r *Receiver) NewConsumer(opts ...rabbitmq.ConsumerOption) *rabbitmq.Consumer {
	base := []rabbitmq.ConsumerOption{
		rabbitmq.WithPrefetchCount(r.settings.Prefetch),
		rabbitmq.WithExclusive(r.settings.Exclusive),
		rabbitmq.WithRequeueOnError(r.settings.RequeueOnError),
		rabbitmq.WithHandlerTimeout(r.settings.HandlerTimeout),
		rabbitmq.WithConsumerTag(r.settings.ConsumerTag),
		rabbitmq.WithAckMode(rabbitmq.AckManual),
	}
	return r.transport.newConsumer(append(base, opts...)...)
}

// Connection is the health view of one profile's connection.
type Connection struct {
	Service   contracts.Service
	Profile   string
	Target    string
	transport *profileTransport
}

// IsConnected reports whether the connection is currently open.
func (c Connection) IsConnected() bool {
	return c.transport.manager.IsConnected()
}

// AddStateListener subscribes to connection state changes.
func (c Connection) AddStateListener(l rabbitmq.ConnectionStateListener) {
	c.transport.manager.AddStateListener(l)
}

// Ping borrows a publishing channel from the profile's pool and returns it.
func (c Connection) Ping(ctx context.Context) error {
	return c.transport.pool.Execute(ctx, func(*rabbitmq.PooledChannel) error { return nil })
}

// PoolSize returns the number of open publishing channels.
func (c Connection) PoolSize() int {
	return c.transport.pool.Size()
}

// Consumers returns the number of running subscriptions on the connection.
func (c Connection) Consumers() int {
	return c.transport.activeConsumers()
}

// PendingReplies returns the number of requests waiting for a reply.
func (c Connection) PendingReplies() int {
	return c.transport.replies.Pending()
}
