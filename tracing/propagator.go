package tracing

import (
	"context"
	"strings"

	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HeaderCarrier adapts message headers to propagation.TextMapCarrier.
type HeaderCarrier amqp.Table

var _ propagation.TextMapCarrier = HeaderCarrier(nil)

// Get returns the value for key, or "" when absent.
func (c HeaderCarrier) Get(key string) string {
	v, _ := contracts.HeaderString(amqp.Table(c), key)
	return v
}

// Set stores value under key.
func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists the header names.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Propagator moves trace context and caller identity in and out of headers.
type Propagator struct {
	prop propagation.TextMapPropagator
}

// NewPropagator creates a propagator. Only WithPropagator is relevant here.
func NewPropagator(opts ...Option) *Propagator {
	return &Propagator{prop: newConfig(opts).propagator}
}

// Inject writes traceparent, X-User-Id and X-User-Roles for ctx into headers.
//
// A valid span in ctx is injected through the otel propagator. Otherwise the ids of
// the current call context are written as they are.
func (p *Propagator) Inject(ctx context.Context, headers amqp.Table) {
	p.prop.Inject(ctx, HeaderCarrier(headers))

	cc, ok := callctx.Get(ctx)
	if !ok {
		return
	}
	if _, written := headers[contracts.HeaderTraceparent]; !written && cc.TraceID() != "" && cc.SpanID() != "" {
		headers[contracts.HeaderTraceparent] = contracts.FormatTraceparent(cc.TraceID(), cc.SpanID())
	}
	if cc.HasActor() {
		headers[contracts.HeaderUserID] = cc.ActorID().String()
	}
	if roles := cc.Roles(); len(roles) > 0 {
		headers[contracts.HeaderUserRoles] = contracts.JoinRoles(roles)
	}
}

// Extract returns ctx with any remote span context from headers attached, and the
// call context fields the headers carry. Malformed identity headers are ignored.
func (p *Propagator) Extract(ctx context.Context, headers amqp.Table) (context.Context, callctx.Fields) {
	if headers == nil {
		headers = amqp.Table{}
	}
	return p.prop.Extract(ctx, HeaderCarrier(headers)), ExtractFields(headers)
}

// ExtractFields parses the header convention without touching otel state.
func ExtractFields(headers amqp.Table) callctx.Fields {
	var f callctx.Fields

	if v, ok := contracts.HeaderString(headers, contracts.HeaderTraceparent); ok {
		if traceID, spanID, ok := contracts.ParseTraceparent(v); ok {
			f.TraceID, f.SpanID = traceID, spanID
		}
	}
	if v, ok := contracts.HeaderString(headers, contracts.HeaderUserID); ok {
		if id, err := uuid.Parse(strings.TrimSpace(v)); err == nil {
			f.ActorID = id
		}
	}
	if v, ok := contracts.HeaderString(headers, contracts.HeaderUserRoles); ok {
		f.Roles = contracts.SplitRoles(v)
	}

	return f
}

// HeaderGetter is satisfied by http.Header.
type HeaderGetter interface {
	Get(key string) string
}

// ContextFromHeaders begins a call context for an inbound request whose headers
// follow the same convention as message headers. The caller must run release when
// the request ends.
func (p *Propagator) ContextFromHeaders(ctx context.Context, h HeaderGetter) (context.Context, *callctx.CallContext, func()) {
	headers := amqp.Table{}
	for _, key := range []string{
		contracts.HeaderTraceparent,
		"tracestate",
		"baggage",
		contracts.HeaderUserID,
		contracts.HeaderUserRoles,
	} {
		if v := h.Get(key); v != "" {
			headers[key] = v
		}
	}

	ctx, fields := p.Extract(ctx, headers)
	return callctx.Begin(ctx, seedFields(fields, trace.SpanContextFromContext(ctx)))
}

// seedFields prefers the ids of sc when it is valid and continues the trace the
// headers named. Raw header ids win otherwise.
func seedFields(fields callctx.Fields, sc trace.SpanContext) callctx.Fields {
	if !sc.IsValid() {
		return fields
	}
	if fields.TraceID != "" && fields.TraceID != sc.TraceID().String() {
		return fields
	}
	fields.TraceID = sc.TraceID().String()
	fields.SpanID = sc.SpanID().String()
	return fields
}
