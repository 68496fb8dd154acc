package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/internal/rabbitmq"
	"github.com/TpaBKa251/Hostel-Internal-Library/serialization"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Named holds values under unique names. The zero value is ready to use.
type Named[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// Register adds v under name. Blank and duplicate names are rejected.
func (n *Named[T]) Register(name string, v T) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", contracts.ErrValidation)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.items == nil {
		n.items = make(map[string]T)
	}
	if _, exists := n.items[name]; exists {
		return fmt.Errorf("%w: %q is already registered", contracts.ErrValidation, name)
	}
	n.items[name] = v
	return nil
}

// Lookup returns the value registered under name. A blank name is not a lookup and
// returns ok=false with no error. An unknown name fails with ErrNotConfigured.
func (n *Named[T]) Lookup(name string) (v T, ok bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return v, false, nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	v, ok = n.items[name]
	if !ok {
		return v, false, fmt.Errorf("%w: %q is not registered", contracts.ErrNotConfigured, name)
	}
	return v, true, nil
}

// Names returns the registered names, sorted.
func (n *Named[T]) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	names := make([]string, 0, len(n.items))
	for name := range n.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectionCustomizer adjusts connection settings before a profile dials.
type ConnectionCustomizer func(*rabbitmq.ConnectionSettings)

// SenderCustomizer adjusts the settings of one sender.
type SenderCustomizer func(*SenderSettings)

// ListenerCustomizer adjusts the settings of one listener.
type ListenerCustomizer func(*ListenerSettings)

// SenderSettings is what a sender publishes with.
type SenderSettings struct {
	Exchange     string
	RoutingKey   string
	Queue        string
	Transacted   bool
	ReplyTimeout time.Duration
}

// ListenerSettings is what a receiver consumes with.
type ListenerSettings struct {
	Queue          string
	Prefetch       int
	Exclusive      bool
	RequeueOnError bool
	ConsumerTag    string
	HandlerTimeout time.Duration
}

// MessageProperties are defaults stamped on every message of a sender. Explicit
// envelope values win over them.
type MessageProperties struct {
	ContentType  string
	DeliveryMode uint8
	Priority     uint8
	Expiration   string
	Headers      amqp.Table
}

// Clone returns a copy that does not share the header table.
func (p MessageProperties) Clone() MessageProperties {
	if p.Headers != nil {
		headers := make(amqp.Table, len(p.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
		p.Headers = headers
	}
	return p
}

// Customizers is the explicit registry of everything configuration may refer to by
// name.
type Customizers struct {
	Connections Named[ConnectionCustomizer]
	Senders     Named[SenderCustomizer]
	Listeners   Named[ListenerCustomizer]
	Properties  Named[MessageProperties]
	Codecs      *serialization.Registry
}

// NewCustomizers creates an empty registry.
func NewCustomizers() *Customizers {
	return &Customizers{Codecs: serialization.NewRegistry()}
}
