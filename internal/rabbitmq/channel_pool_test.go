package rabbitmq_test

import (
	"context"
	"testing"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPool(t *testing.T) {
	t.Run("rejects a nil manager and bad sizes", func(t *testing.T) {
		_, err := rabbitmq.NewChannelPool(nil)
		assert.ErrorIs(t, err, rabbitmq.ErrInvalidConfiguration)

		manager := connectedManager(t, rabbitmqtest.NewBroker())
		_, err = rabbitmq.NewChannelPool(manager, rabbitmq.WithMaxSize(0))
		assert.ErrorIs(t, err, rabbitmq.ErrInvalidConfiguration)
		_, err = rabbitmq.NewChannelPool(manager, rabbitmq.WithWaitTimeout(0))
		assert.ErrorIs(t, err, rabbitmq.ErrInvalidConfiguration)
	})

	t.Run("reuses returned channels", func(t *testing.T) {
		broker := rabbitmqtest.NewBroker()
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, broker), rabbitmq.WithMaxSize(2))
		require.NoError(t, err)
		defer pool.Close()

		first, err := pool.Get(context.Background())
		require.NoError(t, err)
		pool.Put(first)

		second, err := pool.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first.ID(), second.ID())
		assert.Equal(t, 1, pool.Size())
		assert.Equal(t, 1, broker.Connections()[0].ChannelsOpened())
	})

	t.Run("fails when exhausted", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()),
			rabbitmq.WithMaxSize(1),
			rabbitmq.WithWaitTimeout(10*time.Millisecond),
		)
		require.NoError(t, err)
		defer pool.Close()

		_, err = pool.Get(context.Background())
		require.NoError(t, err)

		_, err = pool.Get(context.Background())
		assert.ErrorIs(t, err, rabbitmq.ErrChannelPoolExhausted)
	})

	t.Run("drops closed channels", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()))
		require.NoError(t, err)
		defer pool.Close()

		ch, err := pool.Get(context.Background())
		require.NoError(t, err)
		require.NoError(t, ch.Close())
		pool.Put(ch)
		assert.Equal(t, 0, pool.Size())
	})

	t.Run("transacted pool selects tx on every channel", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()),
			rabbitmq.WithTransactedChannels(),
		)
		require.NoError(t, err)
		defer pool.Close()

		ch, err := pool.Get(context.Background())
		require.NoError(t, err)
		assert.True(t, ch.Transacted())
	})

	t.Run("Execute turns a panic into an error and discards the channel", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()))
		require.NoError(t, err)
		defer pool.Close()

		err = pool.Execute(context.Background(), func(*rabbitmq.PooledChannel) error {
			panic("boom")
		})
		assert.ErrorContains(t, err, "boom")
		assert.Equal(t, 0, pool.Size())
	})

	t.Run("Get after Close fails", func(t *testing.T) {
		pool, err := rabbitmq.NewChannelPool(connectedManager(t, rabbitmqtest.NewBroker()))
		require.NoError(t, err)
		require.NoError(t, pool.Close())

		_, err = pool.Get(context.Background())
		assert.ErrorIs(t, err, rabbitmq.ErrChannelPoolClosed)
	})
}
