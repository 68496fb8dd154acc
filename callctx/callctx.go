// Package callctx carries the ambient state of one unit of work: who is acting, with
// which roles, and where the work sits in the distributed trace.
//
// A CallContext lives inside a context.Context. It is created at an inbound boundary
// (an HTTP request or a broker delivery), read by the dispatch engine, and cleared when
// the unit of work ends.
package callctx

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const holderKey contextKey = "hostel:callctx"

// Fields seeds a new CallContext.
type Fields struct {
	ActorID uuid.UUID
	Roles   []string
	TraceID string
	SpanID  string
}

// CallContext is read-only once created.
type CallContext struct {
	actorID uuid.UUID
	roles   []string
	traceID string
	spanID  string
}

func newCallContext(f Fields) *CallContext {
	return &CallContext{
		actorID: f.ActorID,
		roles:   NormalizeRoles(f.Roles),
		traceID: f.TraceID,
		spanID:  f.SpanID,
	}
}

// ActorID returns the acting user, or uuid.Nil when the work is anonymous.
func (c *CallContext) ActorID() uuid.UUID { return c.actorID }

// HasActor reports whether an actor id is set.
func (c *CallContext) HasActor() bool { return c.actorID != uuid.Nil }

// Roles returns a copy of the role set, sorted.
func (c *CallContext) Roles() []string {
	out := make([]string, len(c.roles))
	copy(out, c.roles)
	return out
}

// HasRole reports whether the actor holds role.
func (c *CallContext) HasRole(role string) bool {
	i := sort.SearchStrings(c.roles, role)
	return i < len(c.roles) && c.roles[i] == role
}

// TraceID returns the trace id.
func (c *CallContext) TraceID() string { return c.traceID }

// SpanID returns the span id.
func (c *CallContext) SpanID() string { return c.spanID }

// holder is installed once per unit of work. Clearing empties it in place so every
// context derived from the boundary observes the clear.
type holder struct {
	current atomic.Pointer[CallContext]
}

func holderFrom(ctx context.Context) *holder {
	h, _ := ctx.Value(holderKey).(*holder)
	return h
}

// Create installs a CallContext. If one is already current in ctx, that same instance
// is returned and f is ignored, so nested boundaries do not overwrite the outer one.
func Create(ctx context.Context, f Fields) (context.Context, *CallContext) {
	ctx, cc, _ := create(ctx, f)
	return ctx, cc
}

func create(ctx context.Context, f Fields) (context.Context, *CallContext, bool) {
	h := holderFrom(ctx)
	if h == nil {
		h = &holder{}
		ctx = context.WithValue(ctx, holderKey, h)
	}
	if cur := h.current.Load(); cur != nil {
		return ctx, cur, false
	}
	cc := newCallContext(f)
	if !h.current.CompareAndSwap(nil, cc) {
		return ctx, h.current.Load(), false
	}
	return ctx, cc, true
}

// Get returns the current CallContext.
func Get(ctx context.Context) (*CallContext, bool) {
	h := holderFrom(ctx)
	if h == nil {
		return nil, false
	}
	cc := h.current.Load()
	return cc, cc != nil
}

// Clear removes the current CallContext. It is safe to call when none is set.
func Clear(ctx context.Context) {
	if h := holderFrom(ctx); h != nil {
		h.current.Store(nil)
	}
}

// Detach returns a context that carries no CallContext while keeping ctx's values
// and deadline. Clearing in the result does not affect ctx.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, holderKey, &holder{})
}

// Begin is the scoped form of Create. The returned release func clears the context
// only when this call created it, and is safe to call more than once.
//
//	ctx, cc, release := callctx.Begin(ctx, fields)
//	defer release()
func Begin(ctx context.Context, f Fields) (context.Context, *CallContext, func()) {
	ctx, cc, created := create(ctx, f)
	if !created {
		return ctx, cc, func() {}
	}
	h := holderFrom(ctx)
	var once atomic.Bool
	return ctx, cc, func() {
		if once.CompareAndSwap(false, true) {
			h.current.CompareAndSwap(cc, nil)
		}
	}
}

// NormalizeRoles trims, deduplicates and sorts role names.
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
