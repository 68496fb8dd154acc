package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

func TestReceiverName(t *testing.T) {
	tests := []struct {
		name     string
		service  contracts.Service
		profile  string
		listener string
		want     string
	}{
		{"words", contracts.Schedule, "default", "booking responses", "scheduleDefaultBookingResponsesRabbitListener"},
		{"single word", contracts.User, "main", "events", "userMainEventsRabbitListener"},
		{"extra spaces", contracts.Booking, " audit ", "  late   replies ", "bookingAuditLateRepliesRabbitListener"},
		{"already capitalized", contracts.Notification, "Default", "Push", "notificationDefaultPushRabbitListener"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReceiverName(tt.service, tt.profile, tt.listener))
		})
	}
}

func TestNamed(t *testing.T) {
	var n Named[int]

	assert.NoError(t, n.Register("one", 1))
	assert.ErrorIs(t, n.Register("one", 2), contracts.ErrValidation)
	assert.ErrorIs(t, n.Register("  ", 3), contracts.ErrValidation)

	v, ok, err := n.Lookup(" one ")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = n.Lookup("")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = n.Lookup("two")
	assert.ErrorIs(t, err, contracts.ErrNotConfigured)
	assert.False(t, ok)

	assert.Equal(t, []string{"one"}, n.Names())
}

func TestMessagePropertiesClone(t *testing.T) {
	p := MessageProperties{Headers: map[string]interface{}{"a": 1}}
	c := p.Clone()
	c.Headers["a"] = 2
	assert.Equal(t, 1, p.Headers["a"])
}

func TestMergeProperties(t *testing.T) {
	base := MessageProperties{ContentType: "application/json", DeliveryMode: 2}
	got := mergeProperties(base, MessageProperties{Priority: 3, Expiration: "60000"})
	assert.Equal(t, MessageProperties{
		ContentType:  "application/json",
		DeliveryMode: 2,
		Priority:     3,
		Expiration:   "60000",
	}, got)
}
