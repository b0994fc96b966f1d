package rabbitmq

import (
	"fmt"

	"ride-hail-sim/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type exchangeDecl struct {
	name string
	kind string
}

type bindingDecl struct {
	queue      string
	exchange   string
	routingKey string
}

// Topology is the set of exchanges, queues and bindings the simulator
// publishes to and consumes from.
type Topology struct {
	Exchanges []exchangeDecl
	Queues    []string
	Bindings  []bindingDecl
}

// SimulatorTopology: ride status on the ride topic, positions on the
// location fanout.
func SimulatorTopology() Topology {
	return Topology{
		Exchanges: []exchangeDecl{
			{contracts.ExchangeRideTopic, amqp.ExchangeTopic},
			{contracts.ExchangeLocationFanout, amqp.ExchangeFanout},
		},
		Queues: []string{
			contracts.QueueRideStatus,
			contracts.QueueLocationUpdatesRide,
		},
		Bindings: []bindingDecl{
			{contracts.QueueRideStatus, contracts.ExchangeRideTopic, contracts.RouteRideStatusAll},
			{contracts.QueueLocationUpdatesRide, contracts.ExchangeLocationFanout, ""},
		},
	}
}

// declarer is the subset of *amqp.Channel used to declare topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareTopology(ch declarer, topo Topology) error {
	for _, ex := range topo.Exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range topo.Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	for _, b := range topo.Bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
