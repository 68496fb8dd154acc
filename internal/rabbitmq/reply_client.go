package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DirectReplyTo is the broker pseudo queue for request/reply without a reply queue.
const DirectReplyTo = "amq.rabbitmq.reply-to"

// DefaultReplyTimeout bounds a request when no timeout is given.
const DefaultReplyTimeout = 5 * time.Second

// ReplyClient sends requests and waits for correlated replies over direct reply-to.
// Publishing and consuming share one channel, as the broker requires.
type ReplyClient struct {
	manager *ConnectionManager
	logger  *slog.Logger

	mu      sync.Mutex // guards ch, gone and publishes on ch
	ch      Channel
	gone    chan struct{}
	closed  bool
	pending map[string]chan amqp.Delivery
	pmu     sync.RWMutex
}

// ReplyClientOption configures the reply client
type ReplyClientOption func(*ReplyClient)

// WithReplyLogger sets the logger
func WithReplyLogger(logger *slog.Logger) ReplyClientOption {
	return func(rc *ReplyClient) {
		rc.logger = logger
	}
}

// NewReplyClient creates a reply client. The reply channel opens on first use.
func NewReplyClient(manager *ConnectionManager, options ...ReplyClientOption) *ReplyClient {
	rc := &ReplyClient{
		manager: manager,
		logger:  slog.Default(),
		pending: make(map[string]chan amqp.Delivery),
	}
	for _, opt := range options {
		opt(rc)
	}
	return rc
}

// Request publishes msg with a reply-to of DirectReplyTo and waits for the delivery
// carrying the same correlation id. The pending entry is removed on every exit.
func (rc *ReplyClient) Request(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) (amqp.Delivery, error) {
	if msg.CorrelationId == "" {
		return amqp.Delivery{}, fmt.Errorf("%w: correlation id is required", ErrInvalidConfiguration)
	}
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}

	replies := make(chan amqp.Delivery, 1)
	rc.pmu.Lock()
	rc.pending[msg.CorrelationId] = replies
	rc.pmu.Unlock()
	defer func() {
		rc.pmu.Lock()
		delete(rc.pending, msg.CorrelationId)
		rc.pmu.Unlock()
	}()

	msg.ReplyTo = DirectReplyTo
	gone, err := rc.publish(ctx, exchange, routingKey, msg)
	if err != nil {
		return amqp.Delivery{}, &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return amqp.Delivery{}, fmt.Errorf("%w after %s (correlationId=%s)", ErrReplyTimeout, timeout, msg.CorrelationId)
	case <-gone:
		return amqp.Delivery{}, ErrReplyClosed
	case <-ctx.Done():
		return amqp.Delivery{}, ctx.Err()
	}
}

func (rc *ReplyClient) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (<-chan struct{}, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err := rc.ensureChannel(); err != nil {
		return nil, err
	}
	if err := rc.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return nil, err
	}
	return rc.gone, nil
}

// ensureChannel must be called with rc.mu held.
func (rc *ReplyClient) ensureChannel() error {
	if rc.closed {
		return ErrReplyClosed
	}
	if rc.ch != nil && !rc.ch.IsClosed() {
		return nil
	}

	conn, err := rc.manager.GetConnection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return &ChannelError{Op: "open reply channel", ChannelID: DirectReplyTo, Err: err, Timestamp: time.Now()}
	}

	deliveries, err := ch.Consume(DirectReplyTo, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return &ConsumerError{Queue: DirectReplyTo, Op: "consume replies", Err: err, Timestamp: time.Now()}
	}

	rc.ch = ch
	rc.gone = make(chan struct{})
	go rc.dispatch(deliveries, rc.gone)
	return nil
}

func (rc *ReplyClient) dispatch(deliveries <-chan amqp.Delivery, gone chan struct{}) {
	defer close(gone)

	for d := range deliveries {
		rc.pmu.RLock()
		replies, ok := rc.pending[d.CorrelationId]
		rc.pmu.RUnlock()

		if !ok {
			rc.logger.Warn("dropping reply without a waiting request", "correlationId", d.CorrelationId)
			continue
		}
		select {
		case replies <- d:
		default:
			rc.logger.Warn("dropping duplicate reply", "correlationId", d.CorrelationId)
		}
	}
	rc.logger.Debug("reply consumer stopped")
}

// Pending returns the number of requests waiting for a reply.
func (rc *ReplyClient) Pending() int {
	rc.pmu.RLock()
	defer rc.pmu.RUnlock()
	return len(rc.pending)
}

// Close closes the reply channel. Waiting requests fail with ErrReplyClosed.
func (rc *ReplyClient) Close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return nil
	}
	rc.closed = true
	if rc.ch == nil {
		return nil
	}
	err := rc.ch.Close()
	if errors.Is(err, amqp.ErrClosed) {
		err = nil
	}
	return err
}
