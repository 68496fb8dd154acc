package notification_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/notification"
)

func TestTypes(t *testing.T) {
	types := notification.Types()
	require.Len(t, types, 6)
	for _, typ := range types {
		assert.True(t, typ.Valid(), typ)
		assert.NotEmpty(t, typ.DisplayName(), typ)
	}
	assert.Equal(t, "Дежурство на кухне", notification.KitchenSchedule.DisplayName())
	assert.False(t, notification.Type("PARKING").Valid())

	parsed, err := notification.ParseType(" kitchen_schedule ")
	require.NoError(t, err)
	assert.Equal(t, notification.KitchenSchedule, parsed)

	_, err = notification.ParseType("parking")
	assert.Error(t, err)
}

func TestRequestBuilder(t *testing.T) {
	userID := uuid.New()

	t.Run("defaults", func(t *testing.T) {
		b := notification.NewRequestBuilder(nil)
		req := b.Build(userID, notification.Balance)
		require.NotNil(t, req)
		assert.Equal(t, userID, req.UserID)
		assert.Equal(t, notification.Balance, req.Type)
		assert.Equal(t, "Уведомление о Баланс", req.Title)
		assert.Equal(t, notification.DefaultMessage(notification.Balance), req.Message)
		assert.Contains(t, req.Message, "Вам пришло уведомление о Баланс.")
		assert.True(t, req.Complete())
	})

	t.Run("message keeps default title", func(t *testing.T) {
		b := notification.NewRequestBuilder(nil)
		req := b.BuildMessage(userID, notification.Duty, "Завтра дежурство")
		require.NotNil(t, req)
		assert.Equal(t, notification.DefaultTitle(notification.Duty), req.Title)
		assert.Equal(t, "Завтра дежурство", req.Message)
	})

	t.Run("titled", func(t *testing.T) {
		b := notification.NewRequestBuilder(nil)
		req := b.BuildTitled(userID, notification.Booking, "Запись", "Подтверждена")
		require.NotNil(t, req)
		assert.Equal(t, "Запись", req.Title)
		assert.Equal(t, "Подтверждена", req.Message)
	})

	t.Run("blank text is rejected and logged", func(t *testing.T) {
		var buf bytes.Buffer
		b := notification.NewRequestBuilder(slog.New(slog.NewTextHandler(&buf, nil)))

		assert.Nil(t, b.BuildMessage(userID, notification.Role, "  "))
		assert.Nil(t, b.BuildTitled(userID, notification.Role, "", "text"))
		assert.Nil(t, b.BuildTitled(userID, notification.Role, "title", "\t"))
		assert.Contains(t, buf.String(), "failed to build notification")
	})
}

func TestRequestComplete(t *testing.T) {
	full := &notification.Request{UserID: uuid.New(), Type: notification.Document, Title: "t", Message: "m"}
	assert.True(t, full.Complete())

	var missing *notification.Request
	assert.False(t, missing.Complete())

	noUser := *full
	noUser.UserID = uuid.Nil
	assert.False(t, noUser.Complete())

	noType := *full
	noType.Type = ""
	assert.False(t, noType.Complete())

	blank := *full
	blank.Title = " "
	assert.False(t, blank.Complete())
}
