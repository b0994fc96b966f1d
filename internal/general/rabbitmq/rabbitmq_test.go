package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-hail-sim/internal/general/config"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingDeclarer struct {
	exchanges []string
	queues    []string
	bindings  []string
	failOn    string
}

func (r *recordingDeclarer) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if name == r.failOn {
		return errors.New("boom")
	}
	r.exchanges = append(r.exchanges, name+":"+kind)
	return nil
}

func (r *recordingDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	r.queues = append(r.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (r *recordingDeclarer) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	r.bindings = append(r.bindings, name+"<-"+exchange+"/"+key)
	return nil
}

func TestDeclareSimulatorTopology(t *testing.T) {
	d := &recordingDeclarer{}
	require.NoError(t, declareTopology(d, SimulatorTopology()))

	assert.Equal(t, []string{"ride_topic:topic", "location_fanout:fanout"}, d.exchanges)
	assert.Equal(t, []string{contracts.QueueRideStatus, contracts.QueueLocationUpdatesRide}, d.queues)
	assert.Equal(t, []string{
		"ride_status<-ride_topic/ride.status.*",
		"location_updates_ride<-location_fanout/",
	}, d.bindings)
}

func TestDeclareTopologyStopsOnError(t *testing.T) {
	d := &recordingDeclarer{failOn: contracts.ExchangeLocationFanout}
	err := declareTopology(d, SimulatorTopology())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location_fanout")
	assert.Empty(t, d.queues)
}

func TestAMQPURLEscapesCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.RabbitMQ.User = "sim"
	cfg.RabbitMQ.Password = "p@ss/word"
	cfg.RabbitMQ.Host = "mq"
	cfg.RabbitMQ.Port = 5672

	assert.Equal(t, "amqp://sim:p%40ss%2Fword@mq:5672/", AMQPURL(cfg))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, minBackoff, nextBackoff(0))
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
	assert.Equal(t, maxBackoff, nextBackoff(20*time.Second))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff))
}

func TestAbandonPublisherForcesRedial(t *testing.T) {
	client := &Client{
		logger:      logger.Nop(),
		logCtx:      context.Background(),
		reconnect:   make(chan struct{}, 1),
		pubConfirms: make(chan amqp.Confirmation, 1),
	}

	client.pubMu.Lock()
	client.abandonPublisher(nil)
	client.pubMu.Unlock()

	assert.Nil(t, client.pubConfirms)
	assert.False(t, client.Healthy())
	select {
	case <-client.reconnect:
	default:
		t.Fatal("expected a reconnect signal")
	}

	err := client.PublishMessage(context.Background(), contracts.ExchangeRideTopic, "ride.status.en_route", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)
}
