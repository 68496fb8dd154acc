package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

func TestRegistry(t *testing.T) {
	t.Run("empty name falls back", func(t *testing.T) {
		r := NewRegistry()
		fallback := NewJSONCodec()
		got, err := r.Lookup("", fallback)
		require.NoError(t, err)
		assert.Same(t, fallback, got)
	})

	t.Run("unknown name is a configuration error", func(t *testing.T) {
		_, err := NewRegistry().Lookup("xmlConverter", NewJSONCodec())
		assert.ErrorIs(t, err, contracts.ErrNotConfigured)
	})

	t.Run("registers and rejects duplicates", func(t *testing.T) {
		r := NewRegistry()
		codec := NewJSONCodec(WithKeepNulls())
		require.NoError(t, r.Register("verbose", codec))
		assert.ErrorIs(t, r.Register("verbose", codec), contracts.ErrValidation)
		assert.ErrorIs(t, r.Register("", codec), contracts.ErrValidation)
		assert.ErrorIs(t, r.Register("nil", nil), contracts.ErrValidation)

		got, err := r.Lookup("verbose", nil)
		require.NoError(t, err)
		assert.Same(t, codec, got)
		assert.Equal(t, []string{"verbose"}, r.Names())
	})
}
