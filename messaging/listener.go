package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
	"github.com/TpaBKa251/Hostel-Internal-Library/tracing"
)

// Handler processes one received message. Returning nil acks it; an error nacks
// it, with requeue when the listener is configured to requeue.
type Handler func(ctx context.Context, env *contracts.Envelope) error

// RequestHandler answers a request. The returned value is sent as the reply.
type RequestHandler func(ctx context.Context, env *contracts.Envelope) (any, error)

// ReplyHandler adapts h to a Handler that sends h's result back through the
// transport of tag. Requests without a reply-to are handled without replying.
func ReplyHandler(sender Sender, tag contracts.MessageType, h RequestHandler) Handler {
	return func(ctx context.Context, env *contracts.Envelope) error {
		reply, err := h(ctx, env)
		if err != nil {
			return err
		}
		if env.ReplyTo == "" {
			return nil
		}
		return sender.SendReply(ctx, tag, env.Properties, reply)
	}
}

// Decode decodes the envelope body with codec.
func Decode(env *contracts.Envelope, codec serialization.Codec, v any) error {
	if err := codec.Decode(env.Body, v); err != nil {
		return fmt.Errorf("%w: decode %s message %s: %w", contracts.ErrSerialization, env.Type, env.MessageID, err)
	}
	return nil
}

// ReceiverSource finds receivers by key or by name.
type ReceiverSource interface {
	Receiver(service contracts.Service, profile, listener string) (*registry.Receiver, error)
	ReceiverByName(name string) (*registry.Receiver, error)
}

// Listener binds handlers to configured receivers. Every delivery runs inside a
// consumer span with its own CallContext.
type Listener struct {
	receivers ReceiverSource
	tracing   []tracing.Option
	logger    *slog.Logger
}

// ListenerOption configures the Listener
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithListenerTracing passes options to the delivery tracing wrapper.
func WithListenerTracing(opts ...tracing.Option) ListenerOption {
	return func(l *Listener) {
		l.tracing = append(l.tracing, opts...)
	}
}

// NewListener creates a listener over receivers
func NewListener(receivers ReceiverSource, options ...ListenerOption) *Listener {
	l := &Listener{
		receivers: receivers,
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Listen binds h to the receiver of (service, profile, listener).
func (l *Listener) Listen(ctx context.Context, service contracts.Service, profile, listener string, h Handler) (*Subscription, error) {
	rec, err := l.receivers.Receiver(service, profile, listener)
	if err != nil {
		return nil, err
	}
	return l.bind(ctx, rec, h)
}

// ListenByName binds h to the receiver with the given name.
func (l *Listener) ListenByName(ctx context.Context, name string, h Handler) (*Subscription, error) {
	rec, err := l.receivers.ReceiverByName(name)
	if err != nil {
		return nil, err
	}
	return l.bind(ctx, rec, h)
}

func (l *Listener) bind(ctx context.Context, rec *registry.Receiver, h Handler) (*Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: handler for %s is nil", contracts.ErrValidation, rec.Name())
	}

	logger := l.logger.With("receiver", rec.Name(), "queue", rec.Queue())
	opts := append([]tracing.Option{
		tracing.WithLogger(logger),
		tracing.WithQueue(rec.Queue()),
		tracing.WithRequeueOnError(rec.Settings().RequeueOnError),
	}, l.tracing...)

	handler := tracing.WrapHandler(func(ctx context.Context, d amqp.Delivery) error {
		return h(ctx, contracts.EnvelopeFromDelivery(d, rec.Queue()))
	}, opts...)

	consumer := rec.NewConsumer(rabbitmq.WithConsumerLogger(logger))
	tag, err := consumer.Subscribe(ctx, rec.Queue(), handler)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", contracts.ErrUnavailable, rec.Name(), err)
	}

	logger.Info("listener started", "consumerTag", tag)
	return &Subscription{
		receiver: rec,
		consumer: consumer,
		tag:      tag,
	}, nil
}

// Subscription is a running consumer of one receiver.
type Subscription struct {
	receiver *registry.Receiver
	consumer *rabbitmq.Consumer
	tag      string

	once sync.Once
	err  error
}

// Receiver returns the bound receiver.
func (s *Subscription) Receiver() *registry.Receiver { return s.receiver }

// ConsumerTag returns the broker consumer tag.
func (s *Subscription) ConsumerTag() string { return s.tag }

// Stop cancels the consumer and waits for the in-flight delivery to finish. It is
// safe to call more than once.
func (s *Subscription) Stop() error {
	s.once.Do(func() {
		s.err = s.consumer.Unsubscribe(s.tag)
	})
	return s.err
}
