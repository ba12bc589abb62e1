package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// RedisSubscriber receives updates from a Redis Pub/Sub channel.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisSubscriber creates a subscriber for channel.
func NewRedisSubscriber(client *redis.Client, channel string, logger *slog.Logger) *RedisSubscriber {
	if channel == "" {
		channel = DefaultTopic
	}
	return &RedisSubscriber{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_subscriber"),
	}
}

// Subscribe implements auctions.Subscriber.
func (s *RedisSubscriber) Subscribe(ctx context.Context, sink auctions.Sink) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	sink.Connected()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}

		update, err := DecodeUpdate([]byte(msg.Payload))
		if err != nil {
			s.logger.Warn("Dropping push message", "error", err, "channel", msg.Channel)
			continue
		}
		sink.Deliver(update)
	}
}
