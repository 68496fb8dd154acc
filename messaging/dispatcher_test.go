package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/callctx"
	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq/rabbitmqtest"
	"github.com/TpaBKa251/Hostel-Internal-Library/messaging"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

type bookRequest struct {
	RoomID string `json:"roomId"`
	Note   string `json:"note,omitempty"`
}

type bookingReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type unencodable struct{}

func (unencodable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveByType(tag contracts.MessageType) (*registry.Descriptor, error) {
	args := m.Called(tag)
	d, _ := args.Get(0).(*registry.Descriptor)
	return d, args.Error(1)
}

func (m *mockResolver) ResolveByService(service contracts.Service) (*registry.Descriptor, error) {
	args := m.Called(service)
	d, _ := args.Get(0).(*registry.Descriptor)
	return d, args.Error(1)
}

func newDispatcher(t *testing.T) (*messaging.Dispatcher, *rabbitmqtest.Broker) {
	t.Helper()
	reg, broker := newRegistry(t, messagingYAML)
	resolver, err := messaging.NewResolver(reg)
	require.NoError(t, err)
	return messaging.NewDispatcher(resolver), broker
}

func TestSend(t *testing.T) {
	t.Run("publishes to the tag's transport", func(t *testing.T) {
		d, broker := newDispatcher(t)

		err := d.Send(context.Background(), "BOOK", "booking-1", bookRequest{RoomID: "r-101"})
		require.NoError(t, err)

		published := broker.Published()
		require.Len(t, published, 1)
		p := published[0]
		assert.Equal(t, "schedule-exchange", p.Exchange)
		assert.Equal(t, "book", p.RoutingKey)
		assert.Equal(t, "booking-1", p.Msg.MessageId)
		assert.Equal(t, "BOOK", p.Msg.Type)
		assert.Equal(t, "application/json", p.Msg.ContentType)
		assert.Equal(t, amqp.Persistent, p.Msg.DeliveryMode)
		assert.False(t, p.Msg.Timestamp.IsZero())
		assert.JSONEq(t, `{"roomId":"r-101"}`, string(p.Msg.Body))
		_, err = uuid.Parse(p.Msg.CorrelationId)
		assert.NoError(t, err)
	})

	t.Run("fresh correlation id per send", func(t *testing.T) {
		d, broker := newDispatcher(t)

		require.NoError(t, d.Send(context.Background(), "BOOK", "same-id", bookRequest{RoomID: "a"}))
		require.NoError(t, d.Send(context.Background(), "BOOK", "same-id", bookRequest{RoomID: "a"}))

		published := broker.Published()
		require.Len(t, published, 2)
		assert.Equal(t, published[0].Msg.MessageId, published[1].Msg.MessageId)
		assert.NotEqual(t, published[0].Msg.CorrelationId, published[1].Msg.CorrelationId)
	})

	t.Run("transacted sender commits", func(t *testing.T) {
		d, broker := newDispatcher(t)

		require.NoError(t, d.Send(context.Background(), "CANCEL", "booking-2", bookRequest{RoomID: "r-1"}))
		published := broker.Published()
		require.Len(t, published, 1)
		assert.Equal(t, "cancel", published[0].RoutingKey)
	})

	t.Run("stamps caller identity", func(t *testing.T) {
		d, broker := newDispatcher(t)
		actor := uuid.New()
		ctx, _, release := callctx.Begin(context.Background(), callctx.Fields{
			ActorID: actor,
			Roles:   []string{"STUDENT", "ADMINISTRATION"},
			TraceID: "abc123",
			SpanID:  "def456",
		})
		defer release()

		require.NoError(t, d.Send(ctx, "BOOK", "booking-3", bookRequest{RoomID: "r"}))

		headers := broker.Published()[0].Msg.Headers
		assert.Equal(t, actor.String(), headers[contracts.HeaderUserID])
		assert.Equal(t, "ADMINISTRATION,STUDENT", headers[contracts.HeaderUserRoles])
		assert.Equal(t, "00-abc123-def456-01", headers[contracts.HeaderTraceparent])
	})

	t.Run("anonymous caller sends no identity", func(t *testing.T) {
		d, broker := newDispatcher(t)

		require.NoError(t, d.Send(context.Background(), "BOOK", "booking-4", bookRequest{RoomID: "r"}))

		headers := broker.Published()[0].Msg.Headers
		assert.NotContains(t, headers, contracts.HeaderUserID)
		assert.NotContains(t, headers, contracts.HeaderUserRoles)
	})

	t.Run("blank message id never resolves", func(t *testing.T) {
		resolver := &mockResolver{}
		d := messaging.NewDispatcher(resolver)

		err := d.Send(context.Background(), "BOOK", "  ", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrValidation)
		assert.Equal(t, contracts.KindValidation, contracts.KindOf(err))
		resolver.AssertNotCalled(t, "ResolveByType", mock.Anything)
	})

	t.Run("unknown tag", func(t *testing.T) {
		d, broker := newDispatcher(t)

		err := d.Send(context.Background(), "UNKNOWN", "id", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
		assert.True(t, contracts.IsFatal(err))
		assert.Empty(t, broker.Published())

		var de *contracts.DispatchError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, messaging.OpSend, de.Op)
		assert.Equal(t, contracts.MessageType("UNKNOWN"), de.Tag)
		assert.Equal(t, "id", de.MessageID)
	})

	t.Run("encode failure", func(t *testing.T) {
		d, broker := newDispatcher(t)

		err := d.Send(context.Background(), "BOOK", "id", unencodable{})
		assert.ErrorIs(t, err, contracts.ErrSerialization)
		assert.Empty(t, broker.Published())
	})

	t.Run("broker failure is retryable", func(t *testing.T) {
		d, broker := newDispatcher(t)
		refused := errors.New("channel refused")
		broker.FailPublish(refused)

		err := d.Send(context.Background(), "BOOK", "id", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrUnavailable)
		assert.ErrorIs(t, err, refused)
		assert.True(t, contracts.IsRetryable(err))
	})
}

func TestSendAndReceive(t *testing.T) {
	t.Run("decodes the reply", func(t *testing.T) {
		d, broker := newDispatcher(t)
		broker.Respond(func(req rabbitmqtest.Published) *amqp.Publishing {
			assert.Equal(t, "booking-exchange", req.Exchange)
			assert.Equal(t, rabbitmq.DirectReplyTo, req.Msg.ReplyTo)
			return &amqp.Publishing{Body: []byte(`{"id":"b-1","status":"CONFIRMED","extra":true}`)}
		})

		reply, err := messaging.Request[bookingReply](context.Background(), d, "GET_BOOKING", "req-1", bookRequest{RoomID: "r"})
		require.NoError(t, err)
		assert.Equal(t, bookingReply{ID: "b-1", Status: "CONFIRMED"}, reply)
	})

	t.Run("empty reply", func(t *testing.T) {
		for _, body := range []string{"", "  ", "null"} {
			d, broker := newDispatcher(t)
			broker.Respond(func(rabbitmqtest.Published) *amqp.Publishing {
				return &amqp.Publishing{Body: []byte(body)}
			})

			_, err := messaging.Request[bookingReply](context.Background(), d, "GET_BOOKING", "req-1", bookRequest{})
			assert.ErrorIs(t, err, contracts.ErrEmptyReply, "body %q", body)
			assert.ErrorIs(t, err, contracts.ErrUnavailable, "body %q", body)
		}
	})

	t.Run("undecodable reply", func(t *testing.T) {
		d, broker := newDispatcher(t)
		broker.Respond(func(rabbitmqtest.Published) *amqp.Publishing {
			return &amqp.Publishing{Body: []byte(`{"id":`)}
		})

		_, err := messaging.Request[bookingReply](context.Background(), d, "GET_BOOKING", "req-1", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrSerialization)
	})

	t.Run("times out", func(t *testing.T) {
		d, _ := newDispatcher(t)

		start := time.Now()
		_, err := messaging.Request[bookingReply](context.Background(), d, "GET_BOOKING", "req-1", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrUnavailable)
		assert.ErrorIs(t, err, rabbitmq.ErrReplyTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		d, _ := newDispatcher(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := messaging.Request[bookingReply](ctx, d, "GET_BOOKING", "req-1", bookRequest{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil target", func(t *testing.T) {
		d, _ := newDispatcher(t)
		err := d.SendAndReceive(context.Background(), "GET_BOOKING", "req-1", bookRequest{}, nil)
		assert.ErrorIs(t, err, contracts.ErrValidation)
	})
}

func TestSendReply(t *testing.T) {
	t.Run("answers to reply-to", func(t *testing.T) {
		d, broker := newDispatcher(t)
		original := contracts.Properties{
			MessageID:     "req-7",
			CorrelationID: "corr-7",
			ReplyTo:       "amq.rabbitmq.reply-to.g1h2",
		}

		require.NoError(t, d.SendReply(context.Background(), "GET_BOOKING", original, bookingReply{ID: "b-7"}))

		published := broker.Published()
		require.Len(t, published, 1)
		p := published[0]
		assert.Equal(t, "", p.Exchange)
		assert.Equal(t, "amq.rabbitmq.reply-to.g1h2", p.RoutingKey)
		assert.Equal(t, "corr-7", p.Msg.CorrelationId)
		assert.Equal(t, "req-7", p.Msg.MessageId)
		assert.False(t, p.Msg.Timestamp.IsZero())
	})

	t.Run("requires reply-to", func(t *testing.T) {
		d, broker := newDispatcher(t)
		err := d.SendReply(context.Background(), "GET_BOOKING", contracts.Properties{CorrelationID: "c"}, nil)
		assert.ErrorIs(t, err, contracts.ErrValidation)
		assert.Empty(t, broker.Published())
	})
}

func TestSendDirect(t *testing.T) {
	t.Run("to service", func(t *testing.T) {
		d, broker := newDispatcher(t)

		require.NoError(t, d.SendToService(context.Background(), contracts.Booking, "audit", "m-1", bookRequest{RoomID: "r"}))

		p := broker.Published()[0]
		assert.Equal(t, "booking-exchange", p.Exchange)
		assert.Equal(t, "audit", p.RoutingKey)
		assert.Equal(t, "m-1", p.Msg.MessageId)
	})

	t.Run("to exchange", func(t *testing.T) {
		d, broker := newDispatcher(t)

		require.NoError(t, d.SendToExchange(context.Background(), contracts.Booking, "booking-events", "created", "m-2", bookRequest{}))

		p := broker.Published()[0]
		assert.Equal(t, "booking-events", p.Exchange)
		assert.Equal(t, "created", p.RoutingKey)
	})

	t.Run("disabled direct routing", func(t *testing.T) {
		d, broker := newDispatcher(t)

		err := d.SendToService(context.Background(), contracts.Schedule, "book", "m-3", bookRequest{})
		assert.ErrorIs(t, err, contracts.ErrNotImplemented)
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
		assert.Equal(t, contracts.KindNotImplemented, contracts.KindOf(err))
		assert.Empty(t, broker.Published())
	})

	t.Run("unknown service", func(t *testing.T) {
		d, _ := newDispatcher(t)
		err := d.SendToExchange(context.Background(), contracts.User, "x", "k", "m-4", nil)
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
		assert.Equal(t, contracts.KindConfiguration, contracts.KindOf(err))
	})

	t.Run("validates before resolving", func(t *testing.T) {
		resolver := &mockResolver{}
		d := messaging.NewDispatcher(resolver)

		assert.ErrorIs(t, d.SendToService(context.Background(), contracts.Booking, "", "m", nil), contracts.ErrValidation)
		assert.ErrorIs(t, d.SendToExchange(context.Background(), contracts.Booking, " ", "k", "m", nil), contracts.ErrValidation)
		assert.ErrorIs(t, d.SendToExchange(context.Background(), contracts.Booking, "x", "k", "", nil), contracts.ErrValidation)
		resolver.AssertNotCalled(t, "ResolveByService", mock.Anything)
	})

	t.Run("resolver errors are wrapped", func(t *testing.T) {
		resolver := &mockResolver{}
		resolver.On("ResolveByService", contracts.Notification).Return(nil, errors.New("boom"))
		d := messaging.NewDispatcher(resolver)

		err := d.SendToService(context.Background(), contracts.Notification, "k", "m", nil)
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
		resolver.AssertExpectations(t)
	})
}
