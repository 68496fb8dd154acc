package rabbitmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublisher(t *testing.T, broker *rabbitmqtest.Broker) *rabbitmq.Publisher {
	t.Helper()
	manager := connectedManager(t, broker)
	pool, err := rabbitmq.NewChannelPool(manager)
	require.NoError(t, err)
	txPool, err := rabbitmq.NewChannelPool(manager, rabbitmq.WithTransactedChannels())
	require.NoError(t, err)

	publisher := rabbitmq.NewPublisher(pool, rabbitmq.WithTransactionalPool(txPool))
	t.Cleanup(func() { _ = publisher.Close() })
	return publisher
}

func TestPublisher(t *testing.T) {
	t.Run("publishes once to the exchange and routing key", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		publisher := newPublisher(t, broker)

		err := publisher.Publish(context.Background(), rabbitmq.PublishMessage{
			Exchange:   "schedule",
			RoutingKey: "schedule.book",
			Message:    amqp.Publishing{MessageId: "m-1", Body: []byte(`{}`)},
		})
		require.NoError(t, err)

		published := broker.Published()
		require.Len(t, published, 1)
		assert.Equal(t, "schedule", published[0].Exchange)
		assert.Equal(t, "schedule.book", published[0].RoutingKey)
		assert.Equal(t, "m-1", published[0].Msg.MessageId)
	})

	t.Run("transacted publish is committed", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		publisher := newPublisher(t, broker)

		err := publisher.Publish(context.Background(), rabbitmq.PublishMessage{
			Exchange:   "booking",
			RoutingKey: "booking.cancel",
			Transacted: true,
			Message:    amqp.Publishing{MessageId: "m-2"},
		})
		require.NoError(t, err)
		require.Len(t, broker.Published(), 1)
		assert.Equal(t, "m-2", broker.Published()[0].Msg.MessageId)
	})

	t.Run("transacted publish without a tx pool is a configuration error", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()))
		require.NoError(t, err)
		publisher := rabbitmq.NewPublisher(pool)
		defer publisher.Close()

		err = publisher.Publish(context.Background(), rabbitmq.PublishMessage{Exchange: "x", RoutingKey: "k", Transacted: true})
		assert.ErrorIs(t, err, rabbitmq.ErrInvalidConfiguration)
	})

	t.Run("broker failure is a PublishError and is not retried", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		publisher := newPublisher(t, broker)
		broker.FailPublish(errors.New("channel closed by broker"))

		err := publisher.Publish(context.Background(), rabbitmq.PublishMessage{Exchange: "x", RoutingKey: "k"})

		var pubErr *rabbitmq.PublishError
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, "x", pubErr.Exchange)
		assert.Equal(t, "k", pubErr.RoutingKey)
		assert.Empty(t, broker.Published())
	})
}
