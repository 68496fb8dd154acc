package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnectionClosed   = errors.New("rabbitmq: connection is closed")
	ErrConnectionNotReady = errors.New("rabbitmq: connection not ready")
	ErrConnectionTimeout  = errors.New("rabbitmq: connection timeout")
	ErrMaxRetriesExceeded = errors.New("rabbitmq: maximum reconnection attempts exceeded")
	ErrNoAddresses        = errors.New("rabbitmq: no broker addresses")

	ErrChannelPoolClosed     = errors.New("rabbitmq: channel pool is closed")
	ErrChannelPoolExhausted  = errors.New("rabbitmq: channel pool exhausted")
	ErrChannelCreationFailed = errors.New("rabbitmq: failed to create channel")

	ErrReplyTimeout = errors.New("rabbitmq: reply timeout")
	ErrReplyClosed  = errors.New("rabbitmq: reply consumer closed")

	// ErrInvalidConfiguration marks failures no retry can fix.
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")
)

// ConnectionError is a failed dial or reconnect. URL never carries the password.
type ConnectionError struct {
	Op        string
	URL       string
	Attempts  int
	Err       error
	Timestamp time.Time
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("rabbitmq: %s %s", e.Op, e.URL)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (%d attempts)", e.Attempts)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ChannelError is a failure to open, configure or borrow a channel.
type ChannelError struct {
	Op        string
	ChannelID string
	Err       error
	Timestamp time.Time
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("rabbitmq: %s [channel %s]: %v", e.Op, e.ChannelID, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// PublishError is a publish the broker did not accept.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Transacted bool
	Err        error
	Timestamp  time.Time
}

func (e *PublishError) Error() string {
	mode := "plain"
	if e.Transacted {
		mode = "tx"
	}
	return fmt.Sprintf("rabbitmq: publish %s exchange=%q key=%q: %v", mode, e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ConsumerError is a failure to start or run a consumer.
type ConsumerError struct {
	Queue       string
	ConsumerTag string
	Op          string
	Err         error
	Timestamp   time.Time
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("rabbitmq: %s queue=%q consumer=%q: %v", e.Op, e.Queue, e.ConsumerTag, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }

// TopologyError is a rejected exchange, queue or binding declaration.
type TopologyError struct {
	Component string
	Name      string
	Op        string
	Err       error
	Timestamp time.Time
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq: %s %s %q: %v", e.Op, e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }
