package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology is a set of declarations applied together. Names are unique within
// each list.
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []Binding
}

// QuorumQueue is a durable quorum queue declaration.
func QuorumQueue(name string) QueueDeclaration {
	return QueueDeclaration{
		Name:      name,
		Durable:   true,
		Arguments: amqp.Table{"x-queue-type": "quorum"},
	}
}

// AddSender adds a durable direct exchange and a quorum queue bound with routingKey.
func (t *Topology) AddSender(exchange, queue, routingKey string) {
	t.addExchange(ExchangeDeclaration{Name: exchange, Type: "direct", Durable: true})
	t.addQueue(QuorumQueue(queue))
	for _, b := range t.Bindings {
		if b.Queue == queue && b.Exchange == exchange && b.RoutingKey == routingKey {
			return
		}
	}
	t.Bindings = append(t.Bindings, Binding{Queue: queue, Exchange: exchange, RoutingKey: routingKey})
}

// AddListener adds the quorum queue a listener consumes from.
func (t *Topology) AddListener(queue string) {
	t.addQueue(QuorumQueue(queue))
}

// Empty reports whether there is nothing to declare.
func (t Topology) Empty() bool {
	return len(t.Exchanges) == 0 && len(t.Queues) == 0 && len(t.Bindings) == 0
}

func (t *Topology) addExchange(decl ExchangeDeclaration) {
	for _, e := range t.Exchanges {
		if e.Name == decl.Name {
			return
		}
	}
	t.Exchanges = append(t.Exchanges, decl)
}

func (t *Topology) addQueue(decl QueueDeclaration) {
	for _, q := range t.Queues {
		if q.Name == decl.Name {
			return
		}
	}
	t.Queues = append(t.Queues, decl)
}

// TopologyManager declares topology on a channel borrowed from a pool
type TopologyManager struct {
	pool *ChannelPool
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(pool *ChannelPool) *TopologyManager {
	return &TopologyManager{pool: pool}
}

// Declare declares exchanges, then queues, then bindings. It stops at the first
// failure.
func (tm *TopologyManager) Declare(ctx context.Context, topology Topology) error {
	return tm.pool.Execute(ctx, func(ch *PooledChannel) error {
		return DeclareOn(ch, topology)
	})
}

// DeclareOn declares topology on ch.
func DeclareOn(ch Channel, topology Topology) error {
	for _, exchange := range topology.Exchanges {
		err := ch.ExchangeDeclare(
			exchange.Name,
			exchange.Type,
			exchange.Durable,
			exchange.AutoDelete,
			false, // internal
			false, // no-wait
			exchange.Arguments,
		)
		if err != nil {
			return topologyError("exchange", exchange.Name, "declare", err)
		}
	}

	for _, queue := range topology.Queues {
		_, err := ch.QueueDeclare(
			queue.Name,
			queue.Durable,
			queue.AutoDelete,
			queue.Exclusive,
			false, // no-wait
			queue.Arguments,
		)
		if err != nil {
			return topologyError("queue", queue.Name, "declare", err)
		}
	}

	for _, binding := range topology.Bindings {
		if err := ch.QueueBind(binding.Queue, binding.RoutingKey, binding.Exchange, false, binding.Arguments); err != nil {
			return topologyError("binding", binding.Queue+"->"+binding.Exchange, "create", err)
		}
	}

	return nil
}

func topologyError(component, name, op string, err error) error {
	return &TopologyError{
		Component: component,
		Name:      name,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}
