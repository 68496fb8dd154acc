// Package metrics exports dispatch and connection metrics to Prometheus.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

const (
	namespace = "hostel"

	OutcomeSuccess = "success"
)

// Collector holds the Prometheus collectors of the messaging runtime.
type Collector struct {
	mu sync.Mutex

	messagesTotal  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	connectionUp   *prometheus.GaugeVec
	reconnectTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewCollector creates the collectors. A nil registerer means the default one.
func NewCollector(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Collector{
		registerer:    registerer,
		messagesTotal: newCounterVec("dispatch", "messages_total", "Messages dispatched, by operation, target and outcome", []string{"op", "target", "outcome"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Dispatch latency, including the reply wait of request/reply",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op", "outcome"},
		),
		connectionUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "up",
				Help:      "Whether the broker connection of a profile is open",
			},
			[]string{"service", "profile"},
		),
		reconnectTotal: newCounterVec("connection", "reconnect_attempts_total", "Broker reconnection attempts", []string{"service", "profile"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (c *Collector) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return nil
	}

	for _, col := range []prometheus.Collector{c.messagesTotal, c.duration, c.connectionUp, c.reconnectTotal} {
		if err := c.registerer.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	c.registered = true
	return nil
}

// Outcome names the result of an operation: "success" or the error kind.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if kind := contracts.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "unknown"
}

// RecordDispatch records one dispatch operation.
func (c *Collector) RecordDispatch(op, target string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	c.messagesTotal.WithLabelValues(op, target, outcome).Inc()
	c.duration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}

// SetConnectionUp records the state of a profile's connection.
func (c *Collector) SetConnectionUp(service contracts.Service, profile string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	c.connectionUp.WithLabelValues(string(service), profile).Set(v)
}

// ConnectionListener returns a listener that keeps the connection metrics of one
// profile current.
func (c *Collector) ConnectionListener(service contracts.Service, profile string) *ConnectionListener {
	return &ConnectionListener{collector: c, service: service, profile: profile}
}

// ConnectionListener feeds connection state changes into a Collector.
type ConnectionListener struct {
	collector *Collector
	service   contracts.Service
	profile   string
}

// OnConnected implements rabbitmq.ConnectionStateListener.
func (l *ConnectionListener) OnConnected() {
	l.collector.SetConnectionUp(l.service, l.profile, true)
}

// OnDisconnected implements rabbitmq.ConnectionStateListener.
func (l *ConnectionListener) OnDisconnected(error) {
	l.collector.SetConnectionUp(l.service, l.profile, false)
}

// OnReconnecting implements rabbitmq.ConnectionStateListener.
func (l *ConnectionListener) OnReconnecting(int) {
	l.collector.reconnectTotal.WithLabelValues(string(l.service), l.profile).Inc()
}
