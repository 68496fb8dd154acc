package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// Channel is the subset of *amqp.Channel the library uses. A channel must be owned by
// one goroutine at a time.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Cancel(consumer string, noWait bool) error
	Tx() error
	TxCommit() error
	TxRollback() error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Close() error
	IsClosed() bool
}

var _ Channel = (*amqp.Channel)(nil)

// Connection is a broker connection that opens channels.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens a connection described by settings.
type Dialer func(ctx context.Context, settings ConnectionSettings) (Connection, error)

// Address is one broker endpoint.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ConnectionSettings is the connection builder that customizers modify before dialing.
type ConnectionSettings struct {
	Addresses        []Address
	Username         string
	Password         string
	VirtualHost      string
	Timeout          time.Duration
	Heartbeat        time.Duration
	ChannelMax       uint16
	FrameSize        int
	Locale           string
	ConnectionName   string
	TLS              *tls.Config
	ShuffleAddresses bool

	// Publishing and reconnect tuning. Zero keeps the default.
	ChannelPoolSize      int
	ChannelWaitTimeout   time.Duration
	PublishTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
}

// String describes the settings without the password.
func (s ConnectionSettings) String() string {
	addrs := make([]string, len(s.Addresses))
	for i, a := range s.Addresses {
		addrs[i] = a.String()
	}
	return fmt.Sprintf("%s@%s%s", s.Username, strings.Join(addrs, ","), s.VirtualHost)
}

// URL renders the amqp URI for one address.
func (s ConnectionSettings) URL(addr Address) string {
	scheme := "amqp"
	if s.TLS != nil {
		scheme = "amqps"
	}
	return amqp.URI{
		Scheme:   scheme,
		Host:     addr.Host,
		Port:     addr.Port,
		Username: s.Username,
		Password: s.Password,
		Vhost:    s.VirtualHost,
	}.String()
}

func (s ConnectionSettings) amqpConfig() amqp.Config {
	props := amqp.NewConnectionProperties()
	if s.ConnectionName != "" {
		props.SetClientConnectionName(s.ConnectionName)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return amqp.Config{
		SASL:            []amqp.Authentication{&amqp.PlainAuth{Username: s.Username, Password: s.Password}},
		Vhost:           s.VirtualHost,
		ChannelMax:      s.ChannelMax,
		FrameSize:       s.FrameSize,
		Heartbeat:       s.Heartbeat,
		TLSClientConfig: s.TLS,
		Properties:      props,
		Locale:          s.Locale,
		Dial:            amqp.DefaultDial(timeout),
	}
}

func (s ConnectionSettings) orderedAddresses() []Address {
	addrs := make([]Address, len(s.Addresses))
	copy(addrs, s.Addresses)
	if s.ShuffleAddresses {
		rand.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
	}
	return addrs
}

// amqpConnection adapts *amqp.Connection to Connection.
type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// DialAMQP tries every address in order and returns the first connection that opens.
// Each attempt is bounded by settings.Timeout and by ctx.
func DialAMQP(ctx context.Context, settings ConnectionSettings) (Connection, error) {
	addrs := settings.orderedAddresses()
	if len(addrs) == 0 {
		return nil, &ConnectionError{
			Op:        "connect",
			URL:       settings.String(),
			Err:       ErrNoAddresses,
			Timestamp: time.Now(),
		}
	}

	var errs error
	for i, addr := range addrs {
		conn, err := dialOne(ctx, settings, addr)
		if err == nil {
			return conn, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			return nil, &ConnectionError{
				Op:        "connect",
				URL:       settings.String(),
				Err:       multierr.Append(errs, ctx.Err()),
				Timestamp: time.Now(),
				Attempts:  i + 1,
			}
		}
	}

	return nil, &ConnectionError{
		Op:        "connect",
		URL:       settings.String(),
		Err:       errs,
		Timestamp: time.Now(),
		Attempts:  len(addrs),
	}
}

func dialOne(ctx context.Context, settings ConnectionSettings, addr Address) (Connection, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan result, 1)

	go func() {
		conn, err := amqp.DialConfig(settings.URL(addr), settings.amqpConfig())
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &amqpConnection{conn: r.conn}, nil
	case <-connCtx.Done():
		// The dial goroutine may still succeed; close whatever it produces.
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ErrConnectionTimeout
	}
}
