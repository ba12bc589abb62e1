package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange auction traffic flows through.
const DefaultExchange = "auction.events"

// RabbitMQPublisher implements EventPublisher
type RabbitMQPublisher struct {
	channel     *amqp.Channel
	contentType string
}

// NewRabbitMQPublisher opens a channel on conn and declares exchange as a
// durable topic exchange.
func NewRabbitMQPublisher(conn *amqp.Connection, exchange, contentType string) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	return &RabbitMQPublisher{
		channel:     ch,
		contentType: contentType,
	}, nil
}

// DeclareExchange ensures the topic exchange exists.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// Close closes the channel
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes a message to the broker
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  p.contentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
