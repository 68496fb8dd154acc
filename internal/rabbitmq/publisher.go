package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes on channels borrowed from a pool. It never retries: a
// failed publish is reported to the caller, which decides what to do.
type Publisher struct {
	pool           *ChannelPool
	txPool         *ChannelPool
	publishTimeout time.Duration
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithPublishTimeout bounds a publish when ctx carries no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithTransactionalPool sets the pool used for transacted publishes
func WithTransactionalPool(pool *ChannelPool) PublisherOption {
	return func(p *Publisher) {
		p.txPool = pool
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// DefaultPublishTimeout bounds a publish whose context has no deadline.
const DefaultPublishTimeout = 10 * time.Second

// NewPublisher creates a new publisher
func NewPublisher(pool *ChannelPool, options ...PublisherOption) *Publisher {
	p := &Publisher{
		pool:           pool,
		publishTimeout: DefaultPublishTimeout,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// PublishMessage is one message addressed to an exchange
type PublishMessage struct {
	Exchange   string
	RoutingKey string
	Transacted bool
	Message    amqp.Publishing
}

// Publish sends msg once. Transacted messages are committed before Publish returns.
func (p *Publisher) Publish(ctx context.Context, msg PublishMessage) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	if msg.Transacted {
		return p.publishTransacted(ctx, msg)
	}

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return p.publishError(msg, err)
	}
	defer p.pool.Put(ch)

	if err := ch.PublishWithContext(ctx, msg.Exchange, msg.RoutingKey, false, false, msg.Message); err != nil {
		return p.publishError(msg, err)
	}

	p.logger.Debug("published message",
		"exchange", msg.Exchange,
		"routingKey", msg.RoutingKey,
		"messageId", msg.Message.MessageId,
		"channelId", ch.ID(),
	)
	return nil
}

func (p *Publisher) publishTransacted(ctx context.Context, msg PublishMessage) error {
	if p.txPool == nil {
		return p.publishError(msg, ErrInvalidConfiguration)
	}

	ch, err := p.txPool.Get(ctx)
	if err != nil {
		return p.publishError(msg, err)
	}

	if err := ch.PublishWithContext(ctx, msg.Exchange, msg.RoutingKey, false, false, msg.Message); err != nil {
		if rbErr := ch.TxRollback(); rbErr != nil {
			p.logger.Warn("transaction rollback failed", "channelId", ch.ID(), "error", rbErr)
			p.txPool.Discard(ch)
		} else {
			p.txPool.Put(ch)
		}
		return p.publishError(msg, err)
	}

	if err := ch.TxCommit(); err != nil {
		p.txPool.Discard(ch)
		return p.publishError(msg, err)
	}

	p.txPool.Put(ch)
	p.logger.Debug("published message in transaction",
		"exchange", msg.Exchange,
		"routingKey", msg.RoutingKey,
		"messageId", msg.Message.MessageId,
	)
	return nil
}

func (p *Publisher) publishError(msg PublishMessage, err error) error {
	return &PublishError{
		Exchange:   msg.Exchange,
		RoutingKey: msg.RoutingKey,
		Transacted: msg.Transacted,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

// Close releases the pools the publisher owns
func (p *Publisher) Close() error {
	err := p.pool.Close()
	if p.txPool != nil {
		if txErr := p.txPool.Close(); err == nil {
			err = txErr
		}
	}
	return err
}
