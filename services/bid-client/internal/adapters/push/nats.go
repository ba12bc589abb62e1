package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

// NATSSubscriber receives updates from a NATS subject. Reconnection is left
// to the push channel, so the NATS client's own reconnect is disabled.
type NATSSubscriber struct {
	url     string
	subject string
	logger  *slog.Logger
}

// NewNATSSubscriber creates a subscriber for subject.
func NewNATSSubscriber(url, subject string, logger *slog.Logger) *NATSSubscriber {
	if subject == "" {
		subject = DefaultTopic
	}
	return &NATSSubscriber{
		url:     url,
		subject: subject,
		logger:  logger.With("component", "nats_subscriber"),
	}
}

// Subscribe implements auctions.Subscriber.
func (s *NATSSubscriber) Subscribe(ctx context.Context, sink auctions.Sink) error {
	lost := make(chan error, 1)
	report := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	nc, err := nats.Connect(s.url,
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = fmt.Errorf("disconnected")
			}
			report(err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			report(fmt.Errorf("connection closed"))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush subscription: %w", err)
	}

	sink.Connected()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-lost:
			return err
		case msg := <-msgs:
			update, err := DecodeUpdate(msg.Data)
			if err != nil {
				s.logger.Warn("Dropping push message", "error", err, "subject", msg.Subject)
				continue
			}
			sink.Deliver(update)
		}
	}
}
