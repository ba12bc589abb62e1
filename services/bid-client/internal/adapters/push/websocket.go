package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

const (
	defaultKeepAlive        = 20 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = time.Second
)

// WebSocketSubscriber receives updates as STOMP frames over a WebSocket.
type WebSocketSubscriber struct {
	url         string
	destination string
	header      http.Header
	token       string
	keepAlive   time.Duration
	dialer      *websocket.Dialer
	logger      *slog.Logger
}

// WebSocketOption configures a WebSocketSubscriber.
type WebSocketOption func(*WebSocketSubscriber)

// WithDestination overrides the STOMP destination, /topic/auction-updates by
// default.
func WithDestination(d string) WebSocketOption {
	return func(s *WebSocketSubscriber) {
		s.destination = d
	}
}

// WithAccessToken sends the token in the STOMP CONNECT frame.
func WithAccessToken(token string) WebSocketOption {
	return func(s *WebSocketSubscriber) {
		s.token = token
	}
}

// WithKeepAlive sets the websocket ping interval.
func WithKeepAlive(d time.Duration) WebSocketOption {
	return func(s *WebSocketSubscriber) {
		s.keepAlive = d
	}
}

// NewWebSocketSubscriber creates a subscriber for the STOMP endpoint at rawURL.
func NewWebSocketSubscriber(rawURL string, logger *slog.Logger, opts ...WebSocketOption) *WebSocketSubscriber {
	s := &WebSocketSubscriber{
		url:         rawURL,
		destination: "/topic/" + DefaultTopic,
		header:      http.Header{},
		keepAlive:   defaultKeepAlive,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			Subprotocols:     []string{"v12.stomp"},
		},
		logger: logger.With("component", "websocket_subscriber"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements auctions.Subscriber.
func (s *WebSocketSubscriber) Subscribe(ctx context.Context, sink auctions.Sink) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	defer conn.Close()

	if err := s.handshake(conn); err != nil {
		return err
	}

	sink.Connected()

	// Closing the connection unblocks the read loop.
	stop := context.AfterFunc(ctx, func() {
		_ = s.write(conn, Frame{Command: cmdDisconnect})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	})
	defer stop()

	pingCancel := startPingLoop(ctx, conn, s.keepAlive, s.logger)
	defer pingCancel()

	err = s.readMessages(ctx, conn, sink)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *WebSocketSubscriber) handshake(conn *websocket.Conn) error {
	host := s.url
	if u, err := url.Parse(s.url); err == nil {
		host = u.Hostname()
	}

	connect := Frame{Command: cmdConnect, Headers: []Header{
		{Key: "accept-version", Value: "1.2"},
		{Key: "host", Value: host},
		{Key: "heart-beat", Value: "0,0"},
	}}
	if s.token != "" {
		connect.Headers = append(connect.Headers, Header{Key: "Authorization", Value: "Bearer " + s.token})
	}
	if err := s.write(conn, connect); err != nil {
		return fmt.Errorf("failed to send CONNECT: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultHandshakeTimeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read CONNECTED: %w", err)
		}
		frame, err := DecodeFrame(msg)
		if errors.Is(err, errHeartbeat) {
			continue
		}
		if err != nil {
			return err
		}
		if frame.Command == cmdError {
			msg, _ := frame.Get("message")
			return fmt.Errorf("broker refused connection: %s", msg)
		}
		if frame.Command != cmdConnected {
			return fmt.Errorf("unexpected %s frame during handshake", frame.Command)
		}
		break
	}
	_ = conn.SetReadDeadline(time.Time{})

	subscribe := Frame{Command: cmdSubscribe, Headers: []Header{
		{Key: "id", Value: "sub-0"},
		{Key: "destination", Value: s.destination},
		{Key: "ack", Value: "auto"},
	}}
	if err := s.write(conn, subscribe); err != nil {
		return fmt.Errorf("failed to send SUBSCRIBE: %w", err)
	}
	return nil
}

func (s *WebSocketSubscriber) readMessages(ctx context.Context, conn *websocket.Conn, sink auctions.Sink) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := DecodeFrame(msg)
		if errors.Is(err, errHeartbeat) {
			continue
		}
		if err != nil {
			s.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}

		switch frame.Command {
		case cmdMessage:
			update, err := DecodeUpdate(frame.Body)
			if err != nil {
				s.logger.Warn("Dropping push message", "error", err)
				continue
			}
			sink.Deliver(update)
		case cmdError:
			msg, _ := frame.Get("message")
			return fmt.Errorf("broker error: %s", msg)
		}
	}
}

func (s *WebSocketSubscriber) write(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, f.Encode())
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, logger *slog.Logger) context.CancelFunc {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					logger.Warn("Failed to send websocket ping", "error", err)
					return
				}
			}
		}
	}()
	return cancel
}
