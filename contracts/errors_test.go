package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchError(t *testing.T) {
	t.Run("matches class sentinel and cause", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := NewError("send", KindUnavailable, cause)
		err.Tag = "BOOK"

		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrSerialization)
		assert.Contains(t, err.Error(), "BOOK")
	})

	t.Run("empty reply is a connectivity error", func(t *testing.T) {
		err := NewError("sendAndReceive", KindEmptyReply, nil)
		assert.ErrorIs(t, err, ErrEmptyReply)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, IsRetryable(err))
	})

	t.Run("not implemented is a configuration error", func(t *testing.T) {
		err := NewError("sendToService", KindNotImplemented, nil)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.True(t, IsFatal(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("errors.As finds the typed error through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", NewError("send", KindSerialization, errors.New("bad")))
		var de *DispatchError
		assert.ErrorAs(t, err, &de)
		assert.Equal(t, KindSerialization, de.Kind)
		assert.Equal(t, KindSerialization, KindOf(err))
	})

	t.Run("KindOf classifies bare sentinels", func(t *testing.T) {
		assert.Equal(t, KindEmptyReply, KindOf(ErrEmptyReply))
		assert.Equal(t, KindNotImplemented, KindOf(ErrNotImplemented))
		assert.Equal(t, KindValidation, KindOf(fmt.Errorf("%w: blank", ErrValidation)))
		assert.Equal(t, Kind(0), KindOf(errors.New("other")))
	})
}
