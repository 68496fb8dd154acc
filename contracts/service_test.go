package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseService(t *testing.T) {
	t.Run("accepts identifier in any case", func(t *testing.T) {
		s, err := ParseService("schedule")
		require.NoError(t, err)
		assert.Equal(t, Schedule, s)

		s, err = ParseService("USER")
		require.NoError(t, err)
		assert.Equal(t, User, s)
	})

	t.Run("accepts deployment name", func(t *testing.T) {
		s, err := ParseService("notification-service")
		require.NoError(t, err)
		assert.Equal(t, Notification, s)
	})

	t.Run("rejects unknown service", func(t *testing.T) {
		_, err := ParseService("billing-service")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("deployment name round trips", func(t *testing.T) {
		for _, s := range Services() {
			parsed, err := ParseService(s.ServiceName())
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
			assert.True(t, parsed.Valid())
		}
	})
}

func TestMessageTypeMatches(t *testing.T) {
	assert.True(t, MessageType("BOOK").Matches("book"))
	assert.True(t, MessageType("book").Matches(" BOOK "))
	assert.False(t, MessageType("BOOK").Matches("CANCEL"))
}
