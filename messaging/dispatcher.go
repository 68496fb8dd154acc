package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/clock"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

const (
	OpSend           = "send"
	OpSendAndReceive = "sendAndReceive"
	OpSendReply      = "sendReply"
	OpSendToService  = "sendToService"
	OpSendToExchange = "sendToExchange"
)

// Sender publishes typed messages to the transports configured for them.
type Sender interface {
	// Send publishes payload once to the transport of tag.
	Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error

	// SendAndReceive publishes payload and decodes the correlated reply into out.
	SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error

	// SendReply answers a request, keeping its correlation id and reply-to.
	SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error

	// SendToService publishes to the exchange of the service's transport with an
	// explicit routing key.
	SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error

	// SendToExchange publishes over the service's connection to an explicit exchange
	// and routing key.
	SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error
}

// Request sends payload and decodes the reply into a new R.
func Request[R any](ctx context.Context, s Sender, tag contracts.MessageType, messageID string, payload any) (R, error) {
	var out R
	err := s.SendAndReceive(ctx, tag, messageID, payload, &out)
	return out, err
}

// TransportResolver selects transports for the dispatcher.
type TransportResolver interface {
	ResolveByType(tag contracts.MessageType) (*registry.Descriptor, error)
	ResolveByService(service contracts.Service) (*registry.Descriptor, error)
}

// Dispatcher is the Sender backed by configured transports. Every operation
// publishes at most once; callers decide whether to retry.
type Dispatcher struct {
	resolver TransportResolver
	logger   *slog.Logger
}

// DispatcherOption configures the Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over resolver.
func NewDispatcher(resolver TransportResolver, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Send implements Sender.
func (d *Dispatcher) Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error {
	fail := failure{op: OpSend, tag: tag, messageID: messageID}
	if err := requireText(map[string]string{"messageId": messageID}); err != nil {
		return fail.with(contracts.KindValidation, err)
	}

	desc, err := d.resolver.ResolveByType(tag)
	if err != nil {
		return fail.with(contracts.KindConfiguration, err)
	}

	env, err := newEnvelope(ctx, desc, string(tag), messageID, payload)
	if err != nil {
		return fail.with(contracts.KindSerialization, err)
	}

	if err := desc.Publish(ctx, env.Publishing()); err != nil {
		return fail.broker(err)
	}

	d.logger.Debug("message published",
		"tag", tag,
		"messageId", messageID,
		"correlationId", env.CorrelationID,
		"exchange", desc.Exchange(),
		"routingKey", desc.RoutingKey(),
	)
	return nil
}

// SendAndReceive implements Sender. It blocks until the reply arrives, the
// sender's reply timeout passes or ctx is done.
func (d *Dispatcher) SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error {
	fail := failure{op: OpSendAndReceive, tag: tag, messageID: messageID}
	if err := requireText(map[string]string{"messageId": messageID}); err != nil {
		return fail.with(contracts.KindValidation, err)
	}
	if out == nil {
		return fail.with(contracts.KindValidation, errors.New("reply target is nil"))
	}

	desc, err := d.resolver.ResolveByType(tag)
	if err != nil {
		return fail.with(contracts.KindConfiguration, err)
	}

	env, err := newEnvelope(ctx, desc, string(tag), messageID, payload)
	if err != nil {
		return fail.with(contracts.KindSerialization, err)
	}

	reply, err := desc.Request(ctx, env.Publishing())
	if err != nil {
		return fail.broker(err)
	}

	body := bytes.TrimSpace(reply.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return fail.with(contracts.KindEmptyReply, fmt.Errorf("reply to correlationId %s has no body", env.CorrelationID))
	}
	if err := desc.Codec().Decode(body, out); err != nil {
		return fail.with(contracts.KindSerialization, err)
	}
	return nil
}

// SendReply implements Sender. The reply goes to the default exchange with the
// original reply-to as routing key.
func (d *Dispatcher) SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error {
	fail := failure{op: OpSendReply, tag: tag, messageID: original.MessageID}
	if err := requireText(map[string]string{
		"replyTo":       original.ReplyTo,
		"correlationId": original.CorrelationID,
	}); err != nil {
		return fail.with(contracts.KindValidation, err)
	}

	desc, err := d.resolver.ResolveByType(tag)
	if err != nil {
		return fail.with(contracts.KindConfiguration, err)
	}

	messageID := original.MessageID
	if messageID == "" {
		messageID = original.CorrelationID
	}
	env, err := newEnvelope(ctx, desc, string(tag), messageID, payload)
	if err != nil {
		return fail.with(contracts.KindSerialization, err)
	}
	env.CorrelationID = original.CorrelationID
	env.Exchange = ""
	env.RoutingKey = original.ReplyTo

	if err := desc.PublishTo(ctx, env.Exchange, env.RoutingKey, env.Publishing()); err != nil {
		return fail.broker(err)
	}
	return nil
}

// SendToService implements Sender. The service's profile must enable direct
// routing.
func (d *Dispatcher) SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error {
	fail := failure{op: OpSendToService, service: service, messageID: messageID}
	if err := requireText(map[string]string{
		"messageId":  messageID,
		"routingKey": routingKey,
	}); err != nil {
		return fail.with(contracts.KindValidation, err)
	}

	desc, err := d.direct(service)
	if err != nil {
		return fail.classified(err)
	}
	return d.sendDirect(ctx, fail, desc, desc.Exchange(), routingKey, messageID, payload)
}

// SendToExchange implements Sender. The service's profile must enable direct
// routing.
func (d *Dispatcher) SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error {
	fail := failure{op: OpSendToExchange, service: service, messageID: messageID}
	if err := requireText(map[string]string{
		"messageId":  messageID,
		"exchange":   exchange,
		"routingKey": routingKey,
	}); err != nil {
		return fail.with(contracts.KindValidation, err)
	}

	desc, err := d.direct(service)
	if err != nil {
		return fail.classified(err)
	}
	return d.sendDirect(ctx, fail, desc, exchange, routingKey, messageID, payload)
}

func (d *Dispatcher) direct(service contracts.Service) (*registry.Descriptor, error) {
	desc, err := d.resolver.ResolveByService(service)
	if err != nil {
		return nil, contracts.NewError("", contracts.KindConfiguration, err)
	}
	if !desc.DirectRouting() {
		return nil, contracts.NewError("", contracts.KindNotImplemented,
			fmt.Errorf("direct routing is disabled for %s/%s", desc.Service(), desc.Profile()))
	}
	return desc, nil
}

func (d *Dispatcher) sendDirect(ctx context.Context, fail failure, desc *registry.Descriptor, exchange, routingKey, messageID string, payload any) error {
	env, err := newEnvelope(ctx, desc, desc.Sender(), messageID, payload)
	if err != nil {
		return fail.with(contracts.KindSerialization, err)
	}
	env.Exchange = exchange
	env.RoutingKey = routingKey

	if err := desc.PublishTo(ctx, exchange, routingKey, env.Publishing()); err != nil {
		return fail.broker(err)
	}
	return nil
}

// newEnvelope encodes payload and stamps the message properties. Sender defaults go
// underneath; the identity of the current CallContext goes on top.
func newEnvelope(ctx context.Context, desc *registry.Descriptor, typ, messageID string, payload any) (*contracts.Envelope, error) {
	body, err := desc.Codec().Encode(payload)
	if err != nil {
		return nil, err
	}

	defaults := desc.Properties()
	env := &contracts.Envelope{
		Properties: contracts.Properties{
			MessageID:     messageID,
			CorrelationID: uuid.NewString(),
			ContentType:   defaults.ContentType,
			Type:          typ,
			Expiration:    defaults.Expiration,
			DeliveryMode:  defaults.DeliveryMode,
			Priority:      defaults.Priority,
			Timestamp:     clock.Now(),
			Headers:       defaults.Headers,
		},
		Exchange:   desc.Exchange(),
		RoutingKey: desc.RoutingKey(),
		Body:       body,
	}

	if cc, ok := callctx.Get(ctx); ok {
		if cc.HasActor() {
			env.SetHeader(contracts.HeaderUserID, cc.ActorID().String())
		}
		if roles := cc.Roles(); len(roles) > 0 {
			env.SetHeader(contracts.HeaderUserRoles, contracts.JoinRoles(roles))
		}
	}
	return env, nil
}

func requireText(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%s must not be blank", strings.Join(missing, ", "))
}

// failure carries what is known about an operation for the error it may return.
type failure struct {
	op        string
	tag       contracts.MessageType
	service   contracts.Service
	messageID string
}

func (f failure) with(kind contracts.Kind, err error) error {
	e := contracts.NewError(f.op, kind, err)
	e.Tag = f.tag
	e.Service = f.service
	e.MessageID = f.messageID
	return e
}

// classified re-stamps an error already carrying a kind.
func (f failure) classified(err error) error {
	var de *contracts.DispatchError
	if errors.As(err, &de) {
		return f.with(de.Kind, de.Err)
	}
	return f.with(contracts.KindOf(err), err)
}

// broker maps a transport failure. Misconfigured transports are not retryable;
// everything else the broker returns is.
func (f failure) broker(err error) error {
	if errors.Is(err, rabbitmq.ErrInvalidConfiguration) {
		return f.with(contracts.KindConfiguration, err)
	}
	return f.with(contracts.KindUnavailable, err)
}
