// Copyright 2026 Hostel Internal Library Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/TpaBKa251/Hostel-Internal-Library/config"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/health"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/metrics"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/messaging"
	"github.com/TpaBKa251/Hostel-Internal-Library/notification"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
	"github.com/TpaBKa251/Hostel-Internal-Library/tracing"
)

// Client provides the main entry point for services talking to each other over
// RabbitMQ. It owns the transport registry and everything built on it.
type Client struct {
	registry  *registry.Registry
	resolver  *messaging.Resolver
	sender    messaging.Sender
	listener  *messaging.Listener
	notifier  *notification.Sender
	health    *health.Registry
	collector *metrics.Collector
	logger    *slog.Logger

	mu   sync.Mutex
	subs []*messaging.Subscription

	closeOnce sync.Once
	closeErr  error
}

// clientConfig holds client configuration
type clientConfig struct {
	logger      *slog.Logger
	customizers *registry.Customizers
	dialer      rabbitmq.Dialer
	tracing     []tracing.Option
	strict      bool
	configs     []messaging.MessagingConfig
	registerer  prometheus.Registerer
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithCustomizers sets the named customizers referenced by the configuration
func WithCustomizers(c *registry.Customizers) ClientOption {
	return func(cfg *clientConfig) {
		cfg.customizers = c
	}
}

// WithDialer replaces the broker dialer
func WithDialer(dial rabbitmq.Dialer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dialer = dial
	}
}

// WithTracing configures the tracer provider and propagator used on both the
// publish and the consume side
func WithTracing(opts ...tracing.Option) ClientOption {
	return func(cfg *clientConfig) {
		cfg.tracing = append(cfg.tracing, opts...)
	}
}

// WithStrictMatching rejects configurations where a type tag names more than one
// sender
func WithStrictMatching() ClientOption {
	return func(cfg *clientConfig) {
		cfg.strict = true
	}
}

// WithMessagingConfigs appends custom resolver entries
func WithMessagingConfigs(configs ...messaging.MessagingConfig) ClientOption {
	return func(cfg *clientConfig) {
		cfg.configs = append(cfg.configs, configs...)
	}
}

// WithMetrics records dispatch and connection metrics on registerer
func WithMetrics(registerer prometheus.Registerer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.registerer = registerer
	}
}

// NewClientFromFile loads the YAML configuration at path and creates a client.
func NewClientFromFile(ctx context.Context, path string, options ...ClientOption) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, cfg, options...)
}

// NewClient connects every configured profile and wires the dispatch pipeline.
// Nothing is left open when it fails.
func NewClient(ctx context.Context, cfg *config.Config, options ...ClientOption) (*Client, error) {
	cc := &clientConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(cc)
	}
	tracingOpts := append([]tracing.Option{tracing.WithLogger(cc.logger)}, cc.tracing...)

	regOpts := []registry.Option{
		registry.WithLogger(cc.logger),
		registry.WithTracing(tracingOpts...),
	}
	if cc.customizers != nil {
		regOpts = append(regOpts, registry.WithCustomizers(cc.customizers))
	}
	if cc.dialer != nil {
		regOpts = append(regOpts, registry.WithDialer(cc.dialer))
	}

	reg, err := registry.Build(ctx, cfg, regOpts...)
	if err != nil {
		return nil, err
	}

	resolverOpts := []messaging.ResolverOption{
		messaging.WithResolverLogger(cc.logger),
		messaging.WithConfigs(cc.configs...),
	}
	if cc.strict {
		resolverOpts = append(resolverOpts, messaging.WithStrictMatching())
	}
	resolver, err := messaging.NewResolver(reg, resolverOpts...)
	if err != nil {
		return nil, multierr.Append(err, reg.Close())
	}

	c := &Client{
		registry: reg,
		resolver: resolver,
		logger:   cc.logger,
		listener: messaging.NewListener(reg,
			messaging.WithListenerLogger(cc.logger),
			messaging.WithListenerTracing(tracingOpts...),
		),
		health: health.NewRegistry(health.ConnectionCheckers(reg.Connections())...),
	}

	var sender messaging.Sender = messaging.NewDispatcher(resolver, messaging.WithDispatcherLogger(cc.logger))
	if cc.registerer != nil {
		c.collector = metrics.NewCollector(cc.registerer)
		if err := c.collector.Register(); err != nil {
			return nil, multierr.Append(fmt.Errorf("register metrics: %w", err), reg.Close())
		}
		for _, conn := range reg.Connections() {
			c.collector.SetConnectionUp(conn.Service, conn.Profile, conn.IsConnected())
			conn.AddStateListener(c.collector.ConnectionListener(conn.Service, conn.Profile))
		}
		sender = metrics.NewSender(sender, c.collector)
	}
	c.sender = messaging.NewLoggingSender(sender, cc.logger)
	c.notifier = notification.NewSender(c.sender, notification.WithLogger(cc.logger))

	cc.logger.Info("hostel client started",
		"connections", len(reg.Connections()),
		"senders", len(reg.Descriptors()),
		"listeners", len(reg.Receivers()),
	)
	return c, nil
}

// Send publishes payload once to the transport configured for tag.
func (c *Client) Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error {
	return c.sender.Send(ctx, tag, messageID, payload)
}

// SendAndReceive publishes payload and decodes the correlated reply into out.
func (c *Client) SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error {
	return c.sender.SendAndReceive(ctx, tag, messageID, payload, out)
}

// SendReply answers a request.
func (c *Client) SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error {
	return c.sender.SendReply(ctx, tag, original, payload)
}

// SendToService publishes with an explicit routing key over a service's transport.
func (c *Client) SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error {
	return c.sender.SendToService(ctx, service, routingKey, messageID, payload)
}

// SendToExchange publishes to an explicit exchange over a service's connection.
func (c *Client) SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error {
	return c.sender.SendToExchange(ctx, service, exchange, routingKey, messageID, payload)
}

// Listen starts the configured listener. The subscription stops with the client.
func (c *Client) Listen(ctx context.Context, service contracts.Service, profile, listener string, h messaging.Handler) (*messaging.Subscription, error) {
	sub, err := c.listener.Listen(ctx, service, profile, listener, h)
	if err != nil {
		return nil, err
	}
	c.track(sub)
	return sub, nil
}

// ListenByName starts the listener with the given container name.
func (c *Client) ListenByName(ctx context.Context, name string, h messaging.Handler) (*messaging.Subscription, error) {
	sub, err := c.listener.ListenByName(ctx, name, h)
	if err != nil {
		return nil, err
	}
	c.track(sub)
	return sub, nil
}

func (c *Client) track(sub *messaging.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, sub)
}

// Sender returns the decorated sender the client dispatches through.
func (c *Client) Sender() messaging.Sender {
	return c.sender
}

// Notifier returns the best-effort notification sender.
func (c *Client) Notifier() *notification.Sender {
	return c.notifier
}

// Health returns the health registry with one checker per connection.
func (c *Client) Health() *health.Registry {
	return c.health
}

// Registry returns the transport registry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Resolver returns the transport resolver.
func (c *Client) Resolver() *messaging.Resolver {
	return c.resolver
}

// Close stops all subscriptions and closes every connection. It is safe to call
// twice.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()

		var err error
		for _, sub := range subs {
			err = multierr.Append(err, sub.Stop())
		}
		c.closeErr = multierr.Append(err, c.registry.Close())
		c.logger.Info("hostel client closed")
	})
	return c.closeErr
}
