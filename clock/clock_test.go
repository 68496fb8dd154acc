package clock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZone(t *testing.T) {
	t.Run("defaults to UTC+7", func(t *testing.T) {
		_, offset := Now().Zone()
		assert.Equal(t, 7*3600, offset)
		assert.Equal(t, "UTC+7", Zone().String())
	})

	t.Run("names fractional offsets", func(t *testing.T) {
		assert.Equal(t, "UTC+05:30", FixedZone(5*time.Hour+30*time.Minute).String())
		assert.Equal(t, "UTC", FixedZone(0).String())
		assert.Equal(t, "UTC-3", FixedZone(-3*time.Hour).String())
	})

	t.Run("formats millis in zone", func(t *testing.T) {
		// 2025-01-01T00:00:00Z
		assert.Equal(t, "2025-01-01 07:00:00.000", FormatMillis(1735689600000))
	})
}

func TestTimestamp(t *testing.T) {
	type payload struct {
		At Timestamp `json:"at"`
	}

	t.Run("writes in the process zone", func(t *testing.T) {
		p := payload{At: NewTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))}
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"at":"2025-01-01T07:00:00.000+07:00"}`, string(data))
	})

	t.Run("reads offsets and normalizes", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"at":"2025-01-01T00:00:00Z"}`), &p))
		assert.Equal(t, 7, p.At.Hour())
		assert.True(t, p.At.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("reads local wall time in the process zone", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"at":"2025-01-01T07:00:00"}`), &p))
		assert.True(t, p.At.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("reads epoch millis", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"at":1735689600000}`), &p))
		assert.True(t, p.At.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("zero is null", func(t *testing.T) {
		data, err := json.Marshal(payload{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"at":null}`, string(data))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var p payload
		assert.Error(t, json.Unmarshal([]byte(`{"at":"yesterday"}`), &p))
	})
}
