package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/floroz/gavel-live/pkg/auth"
	"github.com/floroz/gavel-live/pkg/config"
	pkgevents "github.com/floroz/gavel-live/pkg/events"
	"github.com/floroz/gavel-live/services/bid-client/internal/adapters/events"
	"github.com/floroz/gavel-live/services/bid-client/internal/adapters/push"
	"github.com/floroz/gavel-live/services/bid-client/internal/adapters/rest"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
)

// NewBackend creates the REST client. Every request carries the access
// token when one is configured.
func NewBackend(cfg config.APIConfig, logger *slog.Logger) (*rest.Client, error) {
	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: auth.NewTransport(cfg.AccessToken, nil),
	}

	opts := []rest.Option{rest.WithHTTPClient(httpClient)}
	if cfg.RateLimit > 0 {
		opts = append(opts, rest.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	return rest.NewClient(cfg.BaseURL, logger, opts...)
}

// LoadBidder resolves the bidder from the configured access token. The
// token signature is checked when a public key path is set.
func LoadBidder(cfg config.APIConfig) (*bids.Bidder, error) {
	var verifier *auth.Verifier
	if cfg.PublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		verifier, err = auth.NewVerifier(pem, cfg.TokenIssuer)
		if err != nil {
			return nil, err
		}
	}

	identity, err := auth.IdentityFromToken(cfg.AccessToken, verifier)
	if err != nil {
		return nil, err
	}
	return &bids.Bidder{ID: identity.UserID, Name: identity.Name}, nil
}

// ReconnectPolicy maps the push settings onto a backoff policy.
func ReconnectPolicy(cfg config.PushConfig) auctions.ReconnectPolicy {
	policy := auctions.DefaultReconnectPolicy
	if cfg.ReconnectInitial > 0 {
		policy.InitialDelay = cfg.ReconnectInitial
	}
	if cfg.ReconnectMax > 0 {
		policy.MaxDelay = cfg.ReconnectMax
	}
	policy.MaxRetries = cfg.ReconnectAttempts
	return policy
}

// NewSubscriber builds the configured push transport. It returns a nil
// subscriber for the "none" transport. The closer releases clients the
// transport holds between connections.
func NewSubscriber(cfg config.PushConfig, accessToken string, logger *slog.Logger) (auctions.Subscriber, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		opts := []push.WebSocketOption{push.WithDestination("/topic/" + cfg.Topic)}
		if accessToken != "" {
			opts = append(opts, push.WithAccessToken(accessToken))
		}
		return push.NewWebSocketSubscriber(cfg.WebSocketURL, logger, opts...), nopCloser{}, nil
	case config.TransportAMQP:
		return push.NewAMQPSubscriber(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey, logger), nopCloser{}, nil
	case config.TransportRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return push.NewRedisSubscriber(client, cfg.RedisChannel, logger), client, nil
	case config.TransportNATS:
		return push.NewNATSSubscriber(cfg.NATSURL, cfg.NATSSubject, logger), nopCloser{}, nil
	case config.TransportNone:
		return nil, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownTransport, cfg.Transport)
	}
}

// Notifications is the notification side effect of accepted submissions:
// an in-memory outbox relayed to RabbitMQ.
type Notifications struct {
	Notifier bids.Notifier
	Relay    Runner

	conn      *amqp.Connection
	publisher *pkgevents.RabbitMQPublisher
}

// NewNotifications connects to the broker and wires the outbox relay.
func NewNotifications(cfg config.NotifyConfig, logger *slog.Logger) (*Notifications, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	publisher, err := pkgevents.NewRabbitMQPublisher(conn, cfg.Exchange, "application/protobuf")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create RabbitMQ publisher: %w", err)
	}

	outbox := pkgevents.NewMemoryOutbox(cfg.Capacity)
	relay := pkgevents.NewOutboxRelay(
		outbox,
		publisher,
		cfg.BatchSize,
		cfg.MaxAttempts,
		cfg.RelayInterval,
		cfg.Exchange,
		logger.With("component", "outbox_relay"),
	)

	return &Notifications{
		Notifier:  events.NewOutboxNotifier(outbox),
		Relay:     relay,
		conn:      conn,
		publisher: publisher,
	}, nil
}

// Close releases the broker connection.
func (n *Notifications) Close() error {
	_ = n.publisher.Close()
	return n.conn.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
