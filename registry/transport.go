package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// profileTransport is the single connection of one (service, profile) and the
// publishing machinery built on it. Every descriptor and receiver of the profile
// shares it. Consumers open their own channels, so the publishing pools serve
// senders and health pings only.
type profileTransport struct {
	manager   *rabbitmq.ConnectionManager
	pool      *rabbitmq.ChannelPool
	txPool    *rabbitmq.ChannelPool
	publisher *rabbitmq.Publisher
	replies   *rabbitmq.ReplyClient

	mu        sync.Mutex
	consumers []*rabbitmq.Consumer
}

func connectionOptions(s rabbitmq.ConnectionSettings) []rabbitmq.ConnectionOption {
	var opts []rabbitmq.ConnectionOption
	if s.ReconnectDelay > 0 {
		opts = append(opts, rabbitmq.WithReconnectDelay(s.ReconnectDelay))
	}
	if s.MaxReconnectDelay > 0 {
		opts = append(opts, rabbitmq.WithMaxReconnectDelay(s.MaxReconnectDelay))
	}
	if s.MaxReconnectAttempts > 0 {
		opts = append(opts, rabbitmq.WithMaxRetries(s.MaxReconnectAttempts))
	}
	return opts
}

func poolOptions(s rabbitmq.ConnectionSettings, logger *slog.Logger) []rabbitmq.ChannelPoolOption {
	opts := []rabbitmq.ChannelPoolOption{rabbitmq.WithChannelLogger(logger)}
	if s.ChannelPoolSize > 0 {
		opts = append(opts, rabbitmq.WithMaxSize(s.ChannelPoolSize))
	}
	if s.ChannelWaitTimeout > 0 {
		opts = append(opts, rabbitmq.WithWaitTimeout(s.ChannelWaitTimeout))
	}
	return opts
}

func openTransport(ctx context.Context, settings rabbitmq.ConnectionSettings, dial rabbitmq.Dialer, logger *slog.Logger) (*profileTransport, error) {
	manager := rabbitmq.NewConnectionManager(settings, append([]rabbitmq.ConnectionOption{
		rabbitmq.WithDialer(dial),
		rabbitmq.WithLogger(logger),
	}, connectionOptions(settings)...)...)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}

	pool, err := rabbitmq.NewChannelPool(manager, poolOptions(settings, logger)...)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}
	txPool, err := rabbitmq.NewChannelPool(manager,
		append(poolOptions(settings, logger), rabbitmq.WithTransactedChannels())...)
	if err != nil {
		_ = pool.Close()
		_ = manager.Close()
		return nil, err
	}

	publisherOpts := []rabbitmq.PublisherOption{
		rabbitmq.WithTransactionalPool(txPool),
		rabbitmq.WithPublisherLogger(logger),
	}
	if settings.PublishTimeout > 0 {
		publisherOpts = append(publisherOpts, rabbitmq.WithPublishTimeout(settings.PublishTimeout))
	}

	return &profileTransport{
		manager:   manager,
		pool:      pool,
		txPool:    txPool,
		publisher: rabbitmq.NewPublisher(pool, publisherOpts...),
		replies:   rabbitmq.NewReplyClient(manager, rabbitmq.WithReplyLogger(logger)),
	}, nil
}

func (t *profileTransport) publish(ctx context.Context, exchange, routingKey string, transacted bool, msg amqp.Publishing) error {
	return t.publisher.Publish(ctx, rabbitmq.PublishMessage{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Transacted: transacted,
		Message:    msg,
	})
}

func (t *profileTransport) newConsumer(opts ...rabbitmq.ConsumerOption) *rabbitmq.Consumer {
	c := rabbitmq.NewConsumer(t.manager, opts...)
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c
}

// activeConsumers counts running subscriptions across the profile's receivers.
func (t *profileTransport) activeConsumers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.consumers {
		n += c.Active()
	}
	return n
}

// close stops every consumer before the connection goes away.
func (t *profileTransport) close() error {
	t.mu.Lock()
	consumers := t.consumers
	t.consumers = nil
	t.mu.Unlock()
	for _, c := range consumers {
		c.UnsubscribeAll()
	}

	return multierr.Combine(
		t.replies.Close(),
		t.publisher.Close(),
		t.manager.Close(),
	)
}
