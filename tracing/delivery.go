package tracing

import (
	"context"
	"fmt"

	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WrapHandler runs handler inside a consumer span with a call context built from
// the delivery headers, then settles the delivery: ack on success, nack on error.
// The consumer running it must use rabbitmq.AckManual.
//
// The call context is released and the span ended when the wrapper returns, also
// when handler panics. A panic is reported as an error.
func WrapHandler(handler rabbitmq.MessageHandler, opts ...Option) rabbitmq.MessageHandler {
	cfg := newConfig(opts)
	propagator := &Propagator{prop: cfg.propagator}

	return func(ctx context.Context, d amqp.Delivery) (err error) {
		parent, fields := propagator.Extract(callctx.Detach(ctx), d.Headers)
		remote := trace.SpanContextFromContext(parent)

		ctx, span := cfg.tracer.Start(parent, "rabbit.receive",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", messagingSystem),
				attribute.String("messaging.operation", "receive"),
				attribute.String("messaging.destination.name", cfg.queue),
				attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
				attribute.String("messaging.message.id", d.MessageId),
			),
		)
		defer span.End()

		if fields.TraceID == "" || remote.IsValid() {
			fields = seedFields(fields, span.SpanContext())
		}
		ctx, _, release := callctx.Begin(ctx, fields)
		defer release()

		err = run(ctx, handler, d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if d.Acknowledger != nil {
			d.Acknowledger = &tracedAcknowledger{next: d.Acknowledger, ctx: ctx, tracer: cfg.tracer}
			if settleErr := rabbitmq.Settle(d, err, cfg.requeueOnError); settleErr != nil {
				span.RecordError(settleErr)
				cfg.logger.Error("failed to settle delivery",
					"queue", cfg.queue,
					"deliveryTag", d.DeliveryTag,
					"error", settleErr,
				)
			}
		}

		return err
	}
}

func run(ctx context.Context, handler rabbitmq.MessageHandler, d amqp.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in message handler: %v", r)
		}
	}()
	return handler(ctx, d)
}

// tracedAcknowledger records a client span around every settle call.
type tracedAcknowledger struct {
	next   amqp.Acknowledger
	ctx    context.Context
	tracer trace.Tracer
}

func (a *tracedAcknowledger) Ack(tag uint64, multiple bool) error {
	return a.traced("rabbitmq.ack", tag, func() error { return a.next.Ack(tag, multiple) },
		attribute.Bool("messaging.rabbitmq.multiple", multiple))
}

func (a *tracedAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return a.traced("rabbitmq.nack", tag, func() error { return a.next.Nack(tag, multiple, requeue) },
		attribute.Bool("messaging.rabbitmq.multiple", multiple),
		attribute.Bool("messaging.rabbitmq.requeue", requeue))
}

func (a *tracedAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.traced("rabbitmq.reject", tag, func() error { return a.next.Reject(tag, requeue) },
		attribute.Bool("messaging.rabbitmq.requeue", requeue))
}

func (a *tracedAcknowledger) traced(name string, tag uint64, fn func() error, attrs ...attribute.KeyValue) error {
	_, span := a.tracer.Start(a.ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("messaging.system", messagingSystem),
			attribute.Int64("messaging.rabbitmq.delivery_tag", int64(tag)),
		)...),
	)
	defer span.End()

	err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
