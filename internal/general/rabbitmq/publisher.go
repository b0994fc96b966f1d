package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// confirmDrainTimeout bounds how long a timed-out publish waits for the
// confirm it is owed before giving up on the channel.
var confirmDrainTimeout = 2 * time.Second

var (
	ErrNotConnected = errors.New("rabbitmq: connection is not open")
	ErrNacked       = errors.New("rabbitmq: publish not acknowledged")
)

// MQPublisher marshals messages to JSON and publishes them through a Client.
type MQPublisher struct {
	Client *Client
}

func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

// Publish JSON-encodes msg and publishes it persistently to exchange.
func (publisher *MQPublisher) Publish(ctx context.Context, exchange, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode message: %w", err)
	}
	return publisher.Client.PublishMessage(ctx, exchange, routingKey, body)
}

// PublishMessage publishes body and waits for the broker confirm.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() || ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	// confirms arrive in publish order, so publishes are serialized
	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms
	if confirms == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", exchange, err)
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return ErrNotConnected
		}
		if !c.Ack {
			return ErrNacked
		}
		return nil
	case <-ctx.Done():
		// drain the confirm we are owed so the next publisher reads its own
		select {
		case <-confirms:
		case <-time.After(confirmDrainTimeout):
			client.abandonPublisher(ch)
		}
		return ctx.Err()
	}
}

// abandonPublisher drops a publishing channel whose confirm sequence can no
// longer be trusted and asks the watcher to redial. Callers hold pubMu.
func (client *Client) abandonPublisher(ch *amqp.Channel) {
	client.pubConfirms = nil

	client.mu.Lock()
	if client.pubChan == ch {
		client.pubChan = nil
	}
	client.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	client.logger.Warn(client.logCtx, "rabbitmq_confirm_lost", "Publish confirm never arrived, resetting publishing channel", nil)

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}
