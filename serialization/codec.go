// Package serialization provides the pluggable payload codecs used by transports.
package serialization

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

const ContentTypeJSON = "application/json"

// Codec turns payloads into message bodies and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// JSONCodec is the default codec. It tolerates unknown fields on read and drops null
// object members on write. Date-time fields declared as clock.Timestamp are written
// and read in the process zone.
type JSONCodec struct {
	api       sonic.API
	treeAPI   sonic.API
	keepNulls bool
}

// JSONOption configures a JSONCodec
type JSONOption func(*JSONCodec)

// WithKeepNulls writes null members instead of dropping them.
func WithKeepNulls() JSONOption {
	return func(c *JSONCodec) {
		c.keepNulls = true
	}
}

// WithSonicConfig replaces the sonic configuration used for encoding and decoding.
func WithSonicConfig(cfg sonic.Config) JSONOption {
	return func(c *JSONCodec) {
		c.api = cfg.Froze()
	}
}

// NewJSONCodec creates a JSON codec backed by sonic.
func NewJSONCodec(options ...JSONOption) *JSONCodec {
	c := &JSONCodec{
		api: sonic.ConfigStd,
		treeAPI: sonic.Config{
			EscapeHTML:       true,
			SortMapKeys:      true,
			CompactMarshaler: true,
			UseNumber:        true,
		}.Froze(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// ContentType implements Codec.
func (c *JSONCodec) ContentType() string {
	return ContentTypeJSON
}

// Encode implements Codec.
func (c *JSONCodec) Encode(v any) ([]byte, error) {
	data, err := c.api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %T: %v", contracts.ErrSerialization, v, err)
	}
	if c.keepNulls {
		return data, nil
	}
	return c.pruneNulls(data)
}

// Decode implements Codec.
func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: decode %T: empty body", contracts.ErrSerialization, v)
	}
	if err := c.api.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %T: %v", contracts.ErrSerialization, v, err)
	}
	return nil
}

func (c *JSONCodec) pruneNulls(data []byte) ([]byte, error) {
	var tree any
	if err := c.treeAPI.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: prune nulls: %v", contracts.ErrSerialization, err)
	}
	if !prune(tree) {
		return data, nil
	}
	out, err := c.treeAPI.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: prune nulls: %v", contracts.ErrSerialization, err)
	}
	return out, nil
}

// prune removes null members from objects in place and reports whether anything was
// removed. Nulls inside arrays are positional and are kept.
func prune(node any) bool {
	changed := false
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if v == nil {
				delete(n, k)
				changed = true
				continue
			}
			if prune(v) {
				changed = true
			}
		}
	case []any:
		for _, v := range n {
			if prune(v) {
				changed = true
			}
		}
	}
	return changed
}
