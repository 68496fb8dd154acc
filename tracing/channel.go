package tracing

import (
	"context"
	"strings"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const messagingSystem = "rabbitmq"

type tracedConnection struct {
	rabbitmq.Connection
	cfg        *config
	propagator *Propagator
}

// WrapConnection returns conn with every channel it opens traced.
func WrapConnection(conn rabbitmq.Connection, opts ...Option) rabbitmq.Connection {
	cfg := newConfig(opts)
	return &tracedConnection{
		Connection: conn,
		cfg:        cfg,
		propagator: &Propagator{prop: cfg.propagator},
	}
}

// Unwrap returns the undecorated connection.
func (c *tracedConnection) Unwrap() rabbitmq.Connection {
	return c.Connection
}

func (c *tracedConnection) Channel() (rabbitmq.Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return &tracedChannel{Channel: ch, tracer: c.cfg.tracer, propagator: c.propagator}, nil
}

// tracedChannel overrides only PublishWithContext. Every other call goes straight
// to the delegate.
type tracedChannel struct {
	rabbitmq.Channel
	tracer     trace.Tracer
	propagator *Propagator
}

func (c *tracedChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ctx, span := c.tracer.Start(ctx, "rabbitmq.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", messagingSystem),
			attribute.String("messaging.destination.name", exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", key),
			attribute.Int("messaging.message.payload_size_bytes", len(msg.Body)),
		),
	)
	defer span.End()

	if msg.MessageId != "" {
		span.SetAttributes(attribute.String("messaging.message.id", msg.MessageId))
	}
	if msg.CorrelationId != "" {
		span.SetAttributes(attribute.String("messaging.message.conversation_id", msg.CorrelationId))
	}

	headers := make(amqp.Table, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	c.propagator.Inject(ctx, headers)
	msg.Headers = headers

	err := c.Channel.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// WrapDialer traces every dial and wraps the connections it opens.
func WrapDialer(dial rabbitmq.Dialer, opts ...Option) rabbitmq.Dialer {
	cfg := newConfig(opts)
	return func(ctx context.Context, settings rabbitmq.ConnectionSettings) (rabbitmq.Connection, error) {
		addrs := make([]string, len(settings.Addresses))
		for i, a := range settings.Addresses {
			addrs[i] = a.String()
		}

		ctx, span := cfg.tracer.Start(ctx, "rabbitmq.connect",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("messaging.system", messagingSystem),
				attribute.String("server.address", strings.Join(addrs, ",")),
				attribute.String("messaging.rabbitmq.virtual_host", settings.VirtualHost),
				attribute.String("messaging.client.id", settings.ConnectionName),
			),
		)
		defer span.End()

		conn, err := dial(ctx, settings)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return WrapConnection(conn, opts...), nil
	}
}
