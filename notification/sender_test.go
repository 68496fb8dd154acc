package notification_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/config"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	"github.com/TpaBKa251/Hostel-Internal-Library/messaging"
	"github.com/TpaBKa251/Hostel-Internal-Library/notification"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error {
	return m.Called(ctx, tag, messageID, payload).Error(0)
}

func (m *mockSender) SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error {
	return m.Called(ctx, tag, messageID, payload, out).Error(0)
}

func (m *mockSender) SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error {
	return m.Called(ctx, tag, original, payload).Error(0)
}

func (m *mockSender) SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error {
	return m.Called(ctx, service, routingKey, messageID, payload).Error(0)
}

func (m *mockSender) SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error {
	return m.Called(ctx, service, exchange, routingKey, messageID, payload).Error(0)
}

func TestSender(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("notify uses the user id as message id", func(t *testing.T) {
		next := &mockSender{}
		next.On("Send", ctx, notification.MessageType, userID.String(), mock.MatchedBy(func(req *notification.Request) bool {
			return req.UserID == userID &&
				req.Type == notification.Balance &&
				req.Title == notification.DefaultTitle(notification.Balance)
		})).Return(nil).Once()

		notification.NewSender(next).Notify(ctx, userID, notification.Balance)
		next.AssertExpectations(t)
	})

	t.Run("rejected text is not sent", func(t *testing.T) {
		var buf bytes.Buffer
		next := &mockSender{}
		s := notification.NewSender(next, notification.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		s.NotifyMessage(ctx, userID, notification.Duty, " ")
		s.NotifyTitled(ctx, userID, notification.Duty, "", "text")

		next.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Contains(t, buf.String(), "notification is empty")
	})

	t.Run("broker failure is swallowed", func(t *testing.T) {
		var buf bytes.Buffer
		next := &mockSender{}
		next.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(contracts.NewError(messaging.OpSend, contracts.KindUnavailable, errors.New("down")))
		s := notification.NewSender(next, notification.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		assert.NotPanics(t, func() {
			s.NotifyTitled(ctx, userID, notification.Role, "Должность", "Назначены старостой")
		})
		next.AssertNumberOfCalls(t, "Send", 1)
		assert.Contains(t, buf.String(), "failed to send notification")
		assert.Contains(t, buf.String(), userID.String())
	})

	t.Run("incomplete request is dropped", func(t *testing.T) {
		next := &mockSender{}
		s := notification.NewSender(next, notification.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

		s.Send(ctx, &notification.Request{UserID: userID, Type: notification.Booking, Title: "t"})
		s.Send(ctx, nil)
		next.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("batch skips nil and incomplete entries", func(t *testing.T) {
		other := uuid.New()
		next := &mockSender{}
		next.On("Send", ctx, notification.MessageType, userID.String(), mock.Anything).Return(nil).Once()
		next.On("Send", ctx, notification.MessageType, other.String(), mock.Anything).Return(errors.New("down")).Once()
		s := notification.NewSender(next, notification.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

		s.SendAll(ctx,
			&notification.Request{UserID: userID, Type: notification.Booking, Title: "t", Message: "m"},
			nil,
			&notification.Request{UserID: uuid.New(), Type: notification.Booking},
			&notification.Request{UserID: other, Type: notification.Duty, Title: "t", Message: "m"},
		)
		next.AssertExpectations(t)
		next.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("empty batch", func(t *testing.T) {
		var buf bytes.Buffer
		next := &mockSender{}
		s := notification.NewSender(next, notification.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		s.SendAll(ctx)
		assert.Contains(t, buf.String(), "notification list is empty")
		next.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

const notificationYAML = `
rabbitmq:
  properties:
    notification-service:
      default:
        connectionProperties:
          username: notification
          password: secret
          virtualHost: /notification
          addresses: rabbit
          connectionTimeout: 1s
        queueingProperties:
          senders:
            SEND_NOTIFICATION:
              exchangeName: notification-exchange
              queueName: notification-send
              routingKey: send
              channelTransacted: false
`

func TestSenderOverBroker(t *testing.T) {
	cfg, err := config.Parse([]byte(notificationYAML))
	require.NoError(t, err)

	broker := rabbitmqtest.NewBroker()
	reg, err := registry.Build(context.Background(), cfg, registry.WithDialer(broker.Dial))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	resolver, err := messaging.NewResolver(reg)
	require.NoError(t, err)
	s := notification.NewSender(messaging.NewDispatcher(resolver))

	userID := uuid.New()
	s.NotifyMessage(context.Background(), userID, notification.KitchenSchedule, "Ваша очередь")

	published := broker.Published()
	require.Len(t, published, 1)
	msg := published[0]
	assert.Equal(t, "notification-exchange", msg.Exchange)
	assert.Equal(t, "send", msg.RoutingKey)
	assert.Equal(t, userID.String(), msg.Msg.MessageId)
	assert.Equal(t, serialization.ContentTypeJSON, msg.Msg.ContentType)

	var got notification.Request
	require.NoError(t, serialization.NewJSONCodec().Decode(msg.Msg.Body, &got))
	assert.Equal(t, notification.Request{
		UserID:  userID,
		Type:    notification.KitchenSchedule,
		Title:   "Уведомление о Дежурство на кухне",
		Message: "Ваша очередь",
	}, got)
}
