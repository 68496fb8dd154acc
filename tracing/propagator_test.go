package tracing_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/tracing"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func TestPropagatorRoundTrip(t *testing.T) {
	actor := uuid.New()
	ctx, _, release := callctx.Begin(context.Background(), callctx.Fields{
		ActorID: actor,
		Roles:   []string{"STUDENT", "ADMIN"},
		TraceID: "abc123",
		SpanID:  "def456",
	})
	defer release()

	propagator := tracing.NewPropagator()
	headers := amqp.Table{}
	propagator.Inject(ctx, headers)

	assert.Equal(t, "00-abc123-def456-01", headers[contracts.HeaderTraceparent])
	assert.Equal(t, actor.String(), headers[contracts.HeaderUserID])
	assert.Equal(t, "ADMIN,STUDENT", headers[contracts.HeaderUserRoles])

	_, fields := propagator.Extract(context.Background(), headers)
	assert.Equal(t, "abc123", fields.TraceID)
	assert.Equal(t, "def456", fields.SpanID)
	assert.Equal(t, actor, fields.ActorID)
	assert.ElementsMatch(t, []string{"ADMIN", "STUDENT"}, fields.Roles)
}

func TestPropagatorInject(t *testing.T) {
	t.Run("a valid span wins over call context ids", func(t *testing.T) {
		_, provider := newRecorder()
		ctx, _, release := callctx.Begin(context.Background(), callctx.Fields{TraceID: "abc123", SpanID: "def456"})
		defer release()
		ctx, span := provider.Tracer("test").Start(ctx, "request")
		defer span.End()

		headers := amqp.Table{}
		tracing.NewPropagator().Inject(ctx, headers)

		sc := span.SpanContext()
		assert.Equal(t, contracts.FormatTraceparent(sc.TraceID().String(), sc.SpanID().String()), headers[contracts.HeaderTraceparent])
	})

	t.Run("writes nothing without a call context or span", func(t *testing.T) {
		headers := amqp.Table{}
		tracing.NewPropagator().Inject(context.Background(), headers)
		assert.Empty(t, headers)
	})

	t.Run("omits identity headers for anonymous work", func(t *testing.T) {
		ctx, _, release := callctx.Begin(context.Background(), callctx.Fields{TraceID: "t", SpanID: "s"})
		defer release()

		headers := amqp.Table{}
		tracing.NewPropagator().Inject(ctx, headers)
		assert.NotContains(t, headers, contracts.HeaderUserID)
		assert.NotContains(t, headers, contracts.HeaderUserRoles)
	})
}

func TestExtractFields(t *testing.T) {
	t.Run("short ids without identity", func(t *testing.T) {
		fields := tracing.ExtractFields(amqp.Table{contracts.HeaderTraceparent: "00-abc123-def456-01"})
		assert.Equal(t, "abc123", fields.TraceID)
		assert.Equal(t, "def456", fields.SpanID)
		assert.Equal(t, uuid.Nil, fields.ActorID)
		assert.Empty(t, fields.Roles)
	})

	t.Run("byte headers and malformed user id", func(t *testing.T) {
		fields := tracing.ExtractFields(amqp.Table{
			contracts.HeaderTraceparent: []byte("00-a-b-01"),
			contracts.HeaderUserID:      "not-a-uuid",
			contracts.HeaderUserRoles:   "A, B",
		})
		assert.Equal(t, "a", fields.TraceID)
		assert.Equal(t, uuid.Nil, fields.ActorID)
		assert.Equal(t, []string{"A", "B"}, fields.Roles)
	})

	t.Run("malformed traceparent is ignored", func(t *testing.T) {
		fields := tracing.ExtractFields(amqp.Table{contracts.HeaderTraceparent: "garbage"})
		assert.Empty(t, fields.TraceID)
		assert.Empty(t, fields.SpanID)
	})
}

func TestContextFromHeaders(t *testing.T) {
	actor := uuid.New()
	h := http.Header{}
	h.Set(contracts.HeaderTraceparent, "00-abc123-def456-01")
	h.Set(contracts.HeaderUserID, actor.String())
	h.Set(contracts.HeaderUserRoles, "STUDENT")

	ctx, cc, release := tracing.NewPropagator().ContextFromHeaders(context.Background(), h)
	assert.Equal(t, actor, cc.ActorID())
	assert.Equal(t, "abc123", cc.TraceID())
	assert.True(t, cc.HasRole("STUDENT"))

	release()
	_, ok := callctx.Get(ctx)
	require.False(t, ok)
}
