package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

func fastPolicy(attempts uint) Policy {
	return Policy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxAttempts: attempts}
}

func TestRetry(t *testing.T) {
	t.Run("retries unavailable until success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
			calls++
			if calls < 3 {
				return contracts.NewError("send", contracts.KindUnavailable, errors.New("down"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(2), func(context.Context) error {
			calls++
			return contracts.NewError("send", contracts.KindUnavailable, errors.New("down"))
		})
		assert.ErrorIs(t, err, contracts.ErrUnavailable)
		assert.Equal(t, 2, calls)
	})

	t.Run("does not retry configuration errors", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
			calls++
			return contracts.NewError("send", contracts.KindConfiguration, errors.New("no transport"))
		})
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
		assert.Equal(t, 1, calls)
	})

	t.Run("empty reply counts as unavailable", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(2), func(context.Context) error {
			calls++
			return contracts.NewError("sendAndReceive", contracts.KindEmptyReply, nil)
		})
		assert.ErrorIs(t, err, contracts.ErrEmptyReply)
		assert.Equal(t, 2, calls)
	})

	t.Run("zero attempts means one call", func(t *testing.T) {
		calls := 0
		_ = Retry(context.Background(), Policy{}, func(context.Context) error {
			calls++
			return contracts.NewError("send", contracts.KindUnavailable, errors.New("down"))
		})
		assert.Equal(t, 1, calls)
	})
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, uint(3), p.MaxAttempts)
	b := p.backOff()
	assert.Equal(t, 200*time.Millisecond, b.InitialInterval)
	assert.Equal(t, 5*time.Second, b.MaxInterval)
}
