// Package registry builds and owns every broker transport the configuration
// declares: one connection per (service, profile), one descriptor per sender and
// one receiver per listener.
//
// A Registry is built once and is read-only afterwards. It is safe for concurrent
// use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/TpaBKa251/Hostel-Internal-Library/config"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
	"github.com/TpaBKa251/Hostel-Internal-Library/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type options struct {
	customizers *Customizers
	dial        rabbitmq.Dialer
	tracing     []tracing.Option
	logger      *slog.Logger
	codec       serialization.Codec
}

// Option configures Build
type Option func(*options)

// WithCustomizers sets the named customizers configuration may refer to.
func WithCustomizers(c *Customizers) Option {
	return func(o *options) {
		o.customizers = c
	}
}

// WithDialer replaces the broker dialer. Connections are traced either way.
func WithDialer(dial rabbitmq.Dialer) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// WithTracing passes options to the tracing decorators.
func WithTracing(opts ...tracing.Option) Option {
	return func(o *options) {
		o.tracing = append(o.tracing, opts...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDefaultCodec sets the codec used when a profile names none.
func WithDefaultCodec(codec serialization.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

type receiverKey struct {
	service  contracts.Service
	profile  string
	listener string
}

// Registry owns the transports built from configuration.
type Registry struct {
	descriptors     []*Descriptor
	receivers       []*Receiver
	receiversByKey  map[receiverKey]*Receiver
	receiversByName map[string]*Receiver
	transports      []*profileTransport
	connections     []Connection
	logger          *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// profilePlan is everything about a profile that can be decided before dialing.
type profilePlan struct {
	profile     config.Profile
	connection  rabbitmq.ConnectionSettings
	codec       serialization.Codec
	senders     []*Descriptor
	receivers   []*Receiver
	topology    rabbitmq.Topology
	declareTopo bool
}

// Build validates cfg, resolves every named customizer and codec, connects every
// profile and returns the registry. Nothing is dialed when validation fails. When
// any profile fails to connect, the connections already opened are closed and no
// registry is returned.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Registry, error) {
	o := &options{
		dial:   rabbitmq.DialAMQP,
		logger: slog.Default(),
		codec:  serialization.NewJSONCodec(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.customizers == nil {
		o.customizers = NewCustomizers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		return nil, err
	}

	plans := make([]*profilePlan, 0, len(profiles))
	var errs []error
	for _, p := range profiles {
		plan, err := o.plan(p, cfg.RabbitMQ.DeclareTopology)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plans = append(plans, plan)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	transports, err := o.connect(ctx, plans)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		receiversByKey:  make(map[receiverKey]*Receiver),
		receiversByName: make(map[string]*Receiver),
		transports:      transports,
		logger:          o.logger,
	}
	for i, plan := range plans {
		t := transports[i]
		for _, d := range plan.senders {
			d.transport = t
			reg.descriptors = append(reg.descriptors, d)
		}
		for _, r := range plan.receivers {
			r.transport = t
			reg.receivers = append(reg.receivers, r)
			reg.receiversByKey[receiverKey{r.service, r.profile, r.listener}] = r
			reg.receiversByName[r.name] = r
		}
		reg.connections = append(reg.connections, Connection{
			Service:   plan.profile.Service,
			Profile:   plan.profile.Name,
			Target:    plan.connection.String(),
			transport: t,
		})

		if plan.declareTopo && !plan.topology.Empty() {
			if err := rabbitmq.NewTopologyManager(t.pool).Declare(ctx, plan.topology); err != nil {
				_ = reg.Close()
				return nil, fmt.Errorf("%w: declare topology for %s.%s: %w",
					contracts.ErrUnavailable, plan.profile.Service, plan.profile.Name, err)
			}
		}
	}

	o.logger.Info("transport registry built",
		"profiles", len(plans),
		"senders", len(reg.descriptors),
		"receivers", len(reg.receivers),
	)
	return reg, nil
}

func (o *options) plan(p config.Profile, declareTopology bool) (*profilePlan, error) {
	path := fmt.Sprintf("%s.%s", p.Service, p.Name)
	props := p.Properties

	addresses, err := props.Connection.AddressList()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", contracts.ErrValidation, path, err)
	}
	settings := rabbitmq.ConnectionSettings{
		Username:       props.Connection.Username,
		Password:       props.Connection.Password,
		VirtualHost:    props.Connection.VirtualHost,
		Timeout:        props.Connection.ConnectionTimeout.Duration(),
		ConnectionName: fmt.Sprintf("%s-%s", p.Service.ServiceName(), p.Name),
	}
	for _, a := range addresses {
		settings.Addresses = append(settings.Addresses, rabbitmq.Address{Host: a.Host, Port: a.Port})
	}

	customize, ok, err := o.customizers.Connections.Lookup(props.Connection.CustomizerName)
	if err != nil {
		return nil, fmt.Errorf("%s: connection customizer: %w", path, err)
	}
	if ok {
		customize(&settings)
	}

	codec, err := o.codecs().Lookup(props.MessageConverterName, o.codec)
	if err != nil {
		return nil, fmt.Errorf("%s: message converter: %w", path, err)
	}

	plan := &profilePlan{
		profile:     p,
		connection:  settings,
		codec:       codec,
		declareTopo: declareTopology,
	}

	var errs []error
	for _, name := range config.SortedKeys(props.Queueing.Senders) {
		d, err := o.descriptor(p, name, props.Queueing.Senders[name], settings, codec)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.senders.%s: %w", path, name, err))
			continue
		}
		plan.senders = append(plan.senders, d)
		plan.topology.AddSender(d.settings.Exchange, d.settings.Queue, d.settings.RoutingKey)
	}
	for _, name := range config.SortedKeys(props.Queueing.Listeners) {
		r, err := o.receiver(p, name, props.Queueing.Listeners[name], codec)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.listeners.%s: %w", path, name, err))
			continue
		}
		plan.receivers = append(plan.receivers, r)
		plan.topology.AddListener(r.settings.Queue)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return plan, nil
}

func (o *options) codecs() *serialization.Registry {
	if o.customizers.Codecs == nil {
		return serialization.NewRegistry()
	}
	return o.customizers.Codecs
}

func (o *options) descriptor(p config.Profile, name string, sp config.SenderProperties, conn rabbitmq.ConnectionSettings, codec serialization.Codec) (*Descriptor, error) {
	settings := SenderSettings{
		Exchange:     sp.ExchangeName,
		RoutingKey:   sp.RoutingKey,
		Queue:        sp.QueueName,
		Transacted:   sp.Transacted(),
		ReplyTimeout: sp.EffectiveReplyTimeout(),
	}

	customize, ok, err := o.customizers.Senders.Lookup(sp.RabbitTemplateCustomizerName)
	if err != nil {
		return nil, fmt.Errorf("sender customizer: %w", err)
	}
	if ok {
		customize(&settings)
	}
	if err := requireNonBlank(map[string]string{
		"exchange":   settings.Exchange,
		"routingKey": settings.RoutingKey,
		"queue":      settings.Queue,
	}); err != nil {
		return nil, err
	}
	if settings.ReplyTimeout <= 0 {
		settings.ReplyTimeout = config.DefaultReplyTimeout
	}

	properties := MessageProperties{
		ContentType:  codec.ContentType(),
		DeliveryMode: amqp.Persistent,
	}
	override, ok, err := o.customizers.Properties.Lookup(sp.MessagePropertiesBeanName)
	if err != nil {
		return nil, fmt.Errorf("message properties: %w", err)
	}
	if ok {
		properties = mergeProperties(properties, override.Clone())
	}

	return &Descriptor{
		service:       p.Service,
		profile:       p.Name,
		sender:        name,
		connection:    conn,
		settings:      settings,
		codec:         codec,
		properties:    properties,
		directRouting: p.Properties.DirectRouting,
	}, nil
}

func (o *options) receiver(p config.Profile, name string, lp config.ListenerProperties, codec serialization.Codec) (*Receiver, error) {
	settings := ListenerSettings{
		Queue:       lp.QueueName,
		Prefetch:    rabbitmq.DefaultPrefetch,
		ConsumerTag: strings.ToLower(string(p.Service)) + "-" + p.Name,
	}

	customize, ok, err := o.customizers.Listeners.Lookup(lp.CustomizerName)
	if err != nil {
		return nil, fmt.Errorf("listener customizer: %w", err)
	}
	if ok {
		customize(&settings)
	}
	if err := requireNonBlank(map[string]string{"queue": settings.Queue}); err != nil {
		return nil, err
	}
	if settings.Prefetch <= 0 {
		settings.Prefetch = rabbitmq.DefaultPrefetch
	}

	return &Receiver{
		name:     ReceiverName(p.Service, p.Name, name),
		service:  p.Service,
		profile:  p.Name,
		listener: name,
		settings: settings,
		codec:    codec,
	}, nil
}

// connect opens every profile concurrently. On failure every opened transport is
// closed.
func (o *options) connect(ctx context.Context, plans []*profilePlan) ([]*profileTransport, error) {
	dial := tracing.WrapDialer(o.dial, o.tracing...)
	transports := make([]*profileTransport, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		g.Go(func() error {
			logger := o.logger.With("service", plan.profile.Service, "profile", plan.profile.Name)
			t, err := openTransport(gctx, plan.connection, dial, logger)
			if err != nil {
				return fmt.Errorf("%w: connect %s.%s: %w",
					contracts.ErrUnavailable, plan.profile.Service, plan.profile.Name, err)
			}
			transports[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var closeErr error
		for _, t := range transports {
			if t != nil {
				closeErr = multierr.Append(closeErr, t.close())
			}
		}
		if closeErr != nil {
			o.logger.Warn("closing connections after failed build", "error", closeErr)
		}
		return nil, err
	}
	return transports, nil
}

func requireNonBlank(fields map[string]string) error {
	var errs []error
	for _, name := range config.SortedKeys(fields) {
		if strings.TrimSpace(fields[name]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", contracts.ErrValidation, errors.Join(errs...))
	}
	return nil
}

func mergeProperties(base, override MessageProperties) MessageProperties {
	if override.ContentType != "" {
		base.ContentType = override.ContentType
	}
	if override.DeliveryMode != 0 {
		base.DeliveryMode = override.DeliveryMode
	}
	if override.Priority != 0 {
		base.Priority = override.Priority
	}
	if override.Expiration != "" {
		base.Expiration = override.Expiration
	}
	if len(override.Headers) > 0 {
		base.Headers = override.Headers
	}
	return base
}

// Descriptors returns every sender descriptor in registration order: service
// declaration order, then profile name, then sender name.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Receivers returns every receiver in registration order.
func (r *Registry) Receivers() []*Receiver {
	out := make([]*Receiver, len(r.receivers))
	copy(out, r.receivers)
	return out
}

// Receiver returns the receiver of (service, profile, listener).
func (r *Registry) Receiver(service contracts.Service, profile, listener string) (*Receiver, error) {
	rec, ok := r.receiversByKey[receiverKey{service, profile, listener}]
	if !ok {
		return nil, fmt.Errorf("%w: no listener %q in %s.%s", contracts.ErrNotConfigured, listener, service, profile)
	}
	return rec, nil
}

// ReceiverByName returns the receiver registered under its deterministic name.
func (r *Registry) ReceiverByName(name string) (*Receiver, error) {
	rec, ok := r.receiversByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no receiver named %q", contracts.ErrNotConfigured, name)
	}
	return rec, nil
}

// ReceiverNameFor resolves a receiver name from a service given in any accepted
// form ("USER", "user", "user-service").
func (r *Registry) ReceiverNameFor(service, profile, listener string) (string, error) {
	if strings.TrimSpace(service) == "" || strings.TrimSpace(profile) == "" || strings.TrimSpace(listener) == "" {
		return "", fmt.Errorf("%w: service, profile and listener are required", contracts.ErrValidation)
	}
	s, err := contracts.ParseService(service)
	if err != nil {
		return "", err
	}
	rec, err := r.Receiver(s, profile, listener)
	if err != nil {
		return "", err
	}
	return rec.Name(), nil
}

// Connections returns the connection of every profile.
func (r *Registry) Connections() []Connection {
	out := make([]Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// Close closes every connection. Later calls return the first result.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		for _, t := range r.transports {
			r.closeErr = multierr.Append(r.closeErr, t.close())
		}
		r.logger.Info("transport registry closed", "connections", len(r.transports))
	})
	return r.closeErr
}
