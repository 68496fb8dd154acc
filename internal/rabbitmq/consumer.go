package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes one delivery
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// AckMode decides who settles a delivery
type AckMode int

const (
	// AckOnSuccess acks when the handler returns nil and nacks otherwise
	AckOnSuccess AckMode = iota
	// AckManual leaves settling to the handler, e.g. a tracing wrapper that
	// settles inside its span
	AckManual
)

// DefaultPrefetch is the per-consumer prefetch when none is configured.
const DefaultPrefetch = 250

// Settle acks the delivery when err is nil and nacks it otherwise.
func Settle(delivery amqp.Delivery, err error, requeue bool) error {
	if err == nil {
		return delivery.Ack(false)
	}
	return delivery.Nack(false, requeue)
}

// Consumer consumes queues on the connection of a manager. Each subscription opens
// a channel of its own and closes it when it stops, so subscriptions never hold
// publishing channels.
type Consumer struct {
	manager        *ConnectionManager
	prefetchCount  int
	exclusive      bool
	requeueOnError bool
	ackMode        AckMode
	handlerTimeout time.Duration
	consumerTag    string
	logger         *slog.Logger
	active         sync.Map
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithExclusive sets exclusive consumer mode
func WithExclusive(exclusive bool) ConsumerOption {
	return func(c *Consumer) {
		c.exclusive = exclusive
	}
}

// WithRequeueOnError requeues deliveries whose handler failed
func WithRequeueOnError(requeue bool) ConsumerOption {
	return func(c *Consumer) {
		c.requeueOnError = requeue
	}
}

// WithAckMode sets who settles deliveries
func WithAckMode(mode AckMode) ConsumerOption {
	return func(c *Consumer) {
		c.ackMode = mode
	}
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithConsumerTag sets the consumer tag prefix
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.consumerTag = tag
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(manager *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		manager:       manager,
		prefetchCount: DefaultPrefetch,
		ackMode:       AckOnSuccess,
		consumerTag:   "hostel",
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

type consumerInfo struct {
	queue   string
	tag     string
	channel Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// Subscribe starts consuming queue and returns the consumer tag.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler) (string, error) {
	tag := fmt.Sprintf("%s-%s", c.consumerTag, ulid.Make().String())

	if err := ctx.Err(); err != nil {
		return "", c.consumerError(queue, tag, "subscribe", err)
	}
	conn, err := c.manager.GetConnection()
	if err != nil {
		return "", c.consumerError(queue, tag, "subscribe", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return "", c.consumerError(queue, tag, "open channel", fmt.Errorf("%w: %w", ErrChannelCreationFailed, err))
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return "", c.consumerError(queue, tag, "qos", err)
	}

	deliveries, err := ch.Consume(
		queue,
		tag,
		false, // auto-ack
		c.exclusive,
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return "", c.consumerError(queue, tag, "consume", err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	info := &consumerInfo{
		queue:   queue,
		tag:     tag,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.active.Store(tag, info)

	go c.processMessages(consumerCtx, info, deliveries, handler)

	c.logger.Info("subscribed to queue",
		"queue", queue,
		"consumerTag", tag,
		"prefetchCount", c.prefetchCount,
	)

	return tag, nil
}

func (c *Consumer) processMessages(ctx context.Context, info *consumerInfo, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer func() {
		if !info.channel.IsClosed() {
			_ = info.channel.Close()
		}
		c.active.Delete(info.tag)
		close(info.done)
		c.logger.Info("consumer stopped", "queue", info.queue, "consumerTag", info.tag)
	}()

	for {
		select {
		case <-ctx.Done():
			if err := info.channel.Cancel(info.tag, false); err != nil {
				c.logger.Debug("consumer cancel failed", "consumerTag", info.tag, "error", err)
			}
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", info.queue, "consumerTag", info.tag)
				return
			}

			if err := c.handleMessage(ctx, delivery, handler); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", info.queue,
					"messageId", delivery.MessageId,
				)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) (err error) {
	msgCtx := ctx
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		msgCtx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in message handler: %v", r)
			}
		}()
		err = handler(msgCtx, delivery)
	}()

	if c.ackMode == AckOnSuccess {
		if settleErr := Settle(delivery, err, c.requeueOnError); settleErr != nil {
			c.logger.Error("failed to settle message",
				"error", settleErr,
				"originalError", err,
				"deliveryTag", delivery.DeliveryTag,
			)
		}
	}

	return err
}

// Unsubscribe stops the consumer with the given tag and waits for it to exit
func (c *Consumer) Unsubscribe(tag string) error {
	value, ok := c.active.Load(tag)
	if !ok {
		return fmt.Errorf("no active consumer with tag: %s", tag)
	}

	info := value.(*consumerInfo)
	info.cancel()
	<-info.done

	return nil
}

// UnsubscribeAll stops all active consumers
func (c *Consumer) UnsubscribeAll() {
	var wg sync.WaitGroup

	c.active.Range(func(key, _ any) bool {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			if err := c.Unsubscribe(tag); err != nil {
				c.logger.Debug("unsubscribe skipped", "consumerTag", tag, "error", err)
			}
		}(key.(string))
		return true
	})

	wg.Wait()
}

// Active returns the number of running subscriptions
func (c *Consumer) Active() int {
	n := 0
	c.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Consumer) consumerError(queue, tag, op string, err error) error {
	return &ConsumerError{
		Queue:       queue,
		ConsumerTag: tag,
		Op:          op,
		Err:         err,
		Timestamp:   time.Now(),
	}
}
