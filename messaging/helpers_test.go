package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/config"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

const messagingYAML = `
rabbitmq:
  properties:
    booking-service:
      default:
        directRouting: true
        connectionProperties:
          username: booking
          password: secret
          virtualHost: /booking
          addresses: rabbit
          connectionTimeout: 1s
        queueingProperties:
          senders:
            GET_BOOKING:
              exchangeName: booking-exchange
              queueName: booking-get
              routingKey: get
              channelTransacted: false
              replyTimeout: 200ms
          listeners:
            booking requests:
              queueName: booking-requests
            failing:
              queueName: booking-failing
    schedule-service:
      default:
        connectionProperties:
          username: schedule
          password: secret
          virtualHost: /schedule
          addresses: rabbit
          connectionTimeout: 1s
        queueingProperties:
          senders:
            BOOK:
              exchangeName: schedule-exchange
              queueName: schedule-book
              routingKey: book
              channelTransacted: false
            CANCEL:
              exchangeName: schedule-exchange
              queueName: schedule-cancel
              routingKey: cancel
              channelTransacted: true
`

func newRegistry(t *testing.T, data string, opts ...registry.Option) (*registry.Registry, *rabbitmqtest.Broker) {
	t.Helper()
	cfg, err := config.Parse([]byte(data))
	require.NoError(t, err)

	broker := rabbitmqtest.NewBroker()
	opts = append([]registry.Option{registry.WithDialer(broker.Dial)}, opts...)
	reg, err := registry.Build(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, broker
}
