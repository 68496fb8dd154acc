package tracing

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/TpaBKa251/Hostel-Internal-Library/tracing"

type config struct {
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	logger         *slog.Logger
	queue          string
	requeueOnError bool
}

// Option configures the tracing decorators
type Option func(*config)

// WithTracerProvider sets the provider spans are created from. The global provider
// is used otherwise.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracer = provider.Tracer(instrumentationName)
	}
}

// WithPropagator replaces the TraceContext and Baggage propagator.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = propagator
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithQueue names the queue a wrapped handler consumes from.
func WithQueue(queue string) Option {
	return func(c *config) {
		c.queue = queue
	}
}

// WithRequeueOnError requeues deliveries whose handler failed.
func WithRequeueOnError(requeue bool) Option {
	return func(c *config) {
		c.requeueOnError = requeue
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
