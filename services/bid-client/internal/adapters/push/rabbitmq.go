package push

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/gavel-live/pkg/events"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// AMQPSubscriber receives updates from a RabbitMQ topic exchange. Each
// connection binds its own exclusive queue, so every view gets every update.
type AMQPSubscriber struct {
	url        string
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewAMQPSubscriber creates a subscriber binding routingKey on exchange.
func NewAMQPSubscriber(url, exchange, routingKey string, logger *slog.Logger) *AMQPSubscriber {
	if exchange == "" {
		exchange = pkgevents.DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultTopic
	}
	return &AMQPSubscriber{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With("component", "amqp_subscriber"),
	}
}

// Subscribe implements auctions.Subscriber.
func (s *AMQPSubscriber) Subscribe(ctx context.Context, sink auctions.Sink) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	queue, err := s.setupRabbitMQ(ch)
	if err != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", err)
	}

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	sink.Connected()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return fmt.Errorf("connection closed")
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}

			update, err := DecodeUpdate(d.Body)
			if err != nil {
				s.logger.Warn("Dropping push message", "error", err, "routing_key", d.RoutingKey)
				// If we can't parse it, we probably can't process it ever.
				if nackErr := d.Nack(false, false); nackErr != nil {
					s.logger.Error("Failed to Nack message", "error", nackErr)
				}
				continue
			}

			sink.Deliver(update)
			if ackErr := d.Ack(false); ackErr != nil {
				s.logger.Error("Failed to Ack message", "error", ackErr)
			}
		}
	}
}

func (s *AMQPSubscriber) setupRabbitMQ(ch *amqp.Channel) (string, error) {
	if err := pkgevents.DeclareExchange(ch, s.exchange); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return "", err
	}

	err = ch.QueueBind(
		q.Name,       // queue name
		s.routingKey, // routing key
		s.exchange,   // exchange
		false,
		nil,
	)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}
