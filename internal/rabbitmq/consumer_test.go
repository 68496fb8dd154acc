package rabbitmq_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsumer(t *testing.T, broker *rabbitmqtest.Broker, opts ...rabbitmq.ConsumerOption) *rabbitmq.Consumer {
	t.Helper()
	consumer := rabbitmq.NewConsumer(connectedManager(t, broker), opts...)
	t.Cleanup(consumer.UnsubscribeAll)
	return consumer
}

func waitSettled(t *testing.T, broker *rabbitmqtest.Broker, n int) []rabbitmqtest.Settlement {
	t.Helper()
	require.Eventually(t, func() bool { return len(broker.Settled()) >= n }, time.Second, 5*time.Millisecond)
	return broker.Settled()
}

func TestConsumer(t *testing.T) {
	t.Run("acks on success with the default prefetch", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		consumer := newConsumer(t, broker)

		got := make(chan string, 1)
		tag, err := consumer.Subscribe(context.Background(), "q.schedule", func(_ context.Context, d amqp.Delivery) error {
			got <- d.MessageId
			return nil
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(tag, "hostel-"))

		deliveryTag := broker.Deliver("q.schedule", amqp.Delivery{MessageId: "m-1"})
		assert.Equal(t, "m-1", <-got)

		settled := waitSettled(t, broker, 1)
		assert.Equal(t, rabbitmqtest.Settlement{Op: "ack", DeliveryTag: deliveryTag}, settled[0])
		assert.Equal(t, []int{rabbitmq.DefaultPrefetch}, broker.Prefetch())
	})

	t.Run("nacks without requeue on error", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		consumer := newConsumer(t, broker)

		_, err := consumer.Subscribe(context.Background(), "q", func(context.Context, amqp.Delivery) error {
			return errors.New("bad payload")
		})
		require.NoError(t, err)

		tag := broker.Deliver("q", amqp.Delivery{})
		settled := waitSettled(t, broker, 1)
		assert.Equal(t, rabbitmqtest.Settlement{Op: "nack", DeliveryTag: tag}, settled[0])
	})

	t.Run("requeues when configured", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		consumer := newConsumer(t, broker, rabbitmq.WithRequeueOnError(true), rabbitmq.WithPrefetchCount(5))

		_, err := consumer.Subscribe(context.Background(), "q", func(context.Context, amqp.Delivery) error {
			return errors.New("later")
		})
		require.NoError(t, err)

		broker.Deliver("q", amqp.Delivery{})
		settled := waitSettled(t, broker, 1)
		assert.True(t, settled[0].Requeue)
		assert.Equal(t, []int{5}, broker.Prefetch())
	})

	t.Run("a panicking handler is nacked and the consumer keeps going", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		consumer := newConsumer(t, broker)

		_, err := consumer.Subscribe(context.Background(), "q", func(_ context.Context, d amqp.Delivery) error {
			if d.MessageId == "boom" {
				panic("boom")
			}
			return nil
		})
		require.NoError(t, err)

		broker.Deliver("q", amqp.Delivery{MessageId: "boom"})
		broker.Deliver("q", amqp.Delivery{MessageId: "fine"})
		settled := waitSettled(t, broker, 2)
		assert.Equal(t, "nack", settled[0].Op)
		assert.Equal(t, "ack", settled[1].Op)
	})

	t.Run("manual mode leaves settling to the handler", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		consumer := newConsumer(t, broker, rabbitmq.WithAckMode(rabbitmq.AckManual))

		_, err := consumer.Subscribe(context.Background(), "q", func(_ context.Context, d amqp.Delivery) error {
			return d.Reject(false)
		})
		require.NoError(t, err)

		broker.Deliver("q", amqp.Delivery{})
		settled := waitSettled(t, broker, 1)
		require.Len(t, settled, 1)
		assert.Equal(t, "reject", settled[0].Op)
	})

	t.Run("Unsubscribe stops the consumer", func(t *testing.T) {
		consumer := newConsumer(t, rabbitmqtest.NewBroker())

		tag, err := consumer.Subscribe(context.Background(), "q", func(context.Context, amqp.Delivery) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 1, consumer.Active())

		require.NoError(t, consumer.Unsubscribe(tag))
		assert.Equal(t, 0, consumer.Active())
		assert.Error(t, consumer.Unsubscribe(tag))
	})

	t.Run("every subscription opens its own channel", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		manager := connectedManager(t, broker)
		pool, err := rabbitmq.NewChannelPool(manager, rabbitmq.WithMaxSize(1), rabbitmq.WithWaitTimeout(10*time.Millisecond))
		require.NoError(t, err)
		defer pool.Close()

		consumer := rabbitmq.NewConsumer(manager)
		for _, queue := range []string{"q1", "q2", "q3"} {
			_, err := consumer.Subscribe(context.Background(), queue, func(context.Context, amqp.Delivery) error { return nil })
			require.NoError(t, err)
		}
		assert.Equal(t, 3, consumer.Active())
		assert.Equal(t, 3, broker.Connections()[0].ChannelsOpened())

		require.NoError(t, pool.Execute(context.Background(), func(*rabbitmq.PooledChannel) error { return nil }))

		consumer.UnsubscribeAll()
		assert.Equal(t, 0, consumer.Active())
	})

	t.Run("Subscribe fails once the connection is closed", func(t *testing.T) {
		manager := connectedManager(t, rabbitmqtest.NewBroker())
		consumer := rabbitmq.NewConsumer(manager)
		require.NoError(t, manager.Close())

		_, err := consumer.Subscribe(context.Background(), "q", func(context.Context, amqp.Delivery) error { return nil })
		var consumerErr *rabbitmq.ConsumerError
		require.ErrorAs(t, err, &consumerErr)
		assert.ErrorIs(t, err, rabbitmq.ErrConnectionClosed)
	})
}

func TestSettle(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	acked := amqp.Delivery{Acknowledger: broker, DeliveryTag: 1}
	nacked := amqp.Delivery{Acknowledger: broker, DeliveryTag: 2}

	require.NoError(t, rabbitmq.Settle(acked, nil, true))
	require.NoError(t, rabbitmq.Settle(nacked, errors.New("x"), true))

	assert.Equal(t, []rabbitmqtest.Settlement{
		{Op: "ack", DeliveryTag: 1},
		{Op: "nack", DeliveryTag: 2, Requeue: true},
	}, broker.Settled())
}
