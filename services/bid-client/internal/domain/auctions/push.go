package auctions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChannelState is the connection state of a push channel.
type ChannelState int

const (
	ChannelIdle ChannelState = iota
	ChannelConnecting
	ChannelConnected
	ChannelReconnecting
	ChannelFailed
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelIdle:
		return "idle"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	case ChannelReconnecting:
		return "reconnecting"
	case ChannelFailed:
		return "failed"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReconnectPolicy is the exponential backoff applied between connection
// attempts. MaxRetries consecutive failures move the channel to
// ChannelFailed; zero means retry forever.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	MaxRetries   uint64
}

// DefaultReconnectPolicy starts at the backend's historical fixed 5s delay.
var DefaultReconnectPolicy = ReconnectPolicy{
	InitialDelay: 5 * time.Second,
	MaxDelay:     time.Minute,
	Multiplier:   2,
	Jitter:       0.2,
	MaxRetries:   10,
}

func (p ReconnectPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	if p.MaxRetries == 0 {
		return b
	}
	return backoff.WithMaxRetries(b, p.MaxRetries)
}

// PushChannel supervises a Subscriber: it connects on Run, reconnects with
// backoff after a lost connection and disconnects when ctx is cancelled.
// Transport errors are logged, never returned to the view.
type PushChannel struct {
	subscriber Subscriber
	sink       Sink
	policy     ReconnectPolicy
	logger     *slog.Logger

	mu       sync.RWMutex
	state    ChannelState
	failures uint64
	backoff  backoff.BackOff
}

// PushOption configures a PushChannel.
type PushOption func(*PushChannel)

// WithReconnectPolicy overrides DefaultReconnectPolicy.
func WithReconnectPolicy(p ReconnectPolicy) PushOption {
	return func(c *PushChannel) {
		c.policy = p
	}
}

// NewPushChannel creates a supervisor delivering into sink.
func NewPushChannel(subscriber Subscriber, sink Sink, logger *slog.Logger, opts ...PushOption) *PushChannel {
	c := &PushChannel{
		subscriber: subscriber,
		sink:       sink,
		policy:     DefaultReconnectPolicy,
		logger:     logger.With("component", "push_channel"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff = c.policy.backOff()
	return c
}

// State returns the current connection state.
func (c *PushChannel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Failures returns the number of consecutive failed connections.
func (c *PushChannel) Failures() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failures
}

// Run blocks until ctx is cancelled, returning nil, or until the reconnect
// policy is exhausted, returning ErrChannelExhausted.
func (c *PushChannel) Run(ctx context.Context) error {
	c.setState(ChannelConnecting)

	for {
		err := c.subscriber.Subscribe(ctx, &supervisedSink{channel: c})
		if ctx.Err() != nil {
			c.setState(ChannelClosed)
			return nil
		}

		c.mu.Lock()
		c.failures++
		delay := c.backoff.NextBackOff()
		failures := c.failures
		c.mu.Unlock()

		if delay == backoff.Stop {
			c.logger.Error("Push channel exhausted reconnect attempts", "error", err, "failures", failures)
			c.setState(ChannelFailed)
			return ErrChannelExhausted
		}

		c.logger.Warn("Push connection lost, reconnecting",
			"error", err, "failures", failures, "delay", delay)
		c.setState(ChannelReconnecting)

		if !waitForReconnect(ctx, delay) {
			c.setState(ChannelClosed)
			return nil
		}
	}
}

func (c *PushChannel) connected() {
	c.mu.Lock()
	c.failures = 0
	c.backoff.Reset()
	c.state = ChannelConnected
	c.mu.Unlock()

	c.logger.Info("Push channel connected")
	c.sink.Connected()
}

func (c *PushChannel) setState(s ChannelState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type supervisedSink struct {
	channel *PushChannel
}

func (s *supervisedSink) Connected() {
	s.channel.connected()
}

func (s *supervisedSink) Deliver(u Update) {
	s.channel.sink.Deliver(u)
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
