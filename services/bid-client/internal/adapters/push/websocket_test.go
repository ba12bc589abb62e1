package push

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSink struct {
	mu        sync.Mutex
	connected int
	updates   []auctions.Update
}

func (s *recordingSink) Connected() {
	s.mu.Lock()
	s.connected++
	s.mu.Unlock()
}

func (s *recordingSink) Deliver(u auctions.Update) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() (int, []auctions.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, append([]auctions.Update(nil), s.updates...)
}

// stompServer accepts one STOMP session per connection and lets the test
// push frames to the subscriber.
type stompServer struct {
	upgrader websocket.Upgrader
	frames   chan string
	refuse   bool
	mu       sync.Mutex
	headers  []Frame
}

func newStompServer(t *testing.T, refuse bool) (*stompServer, string) {
	s := &stompServer{frames: make(chan string, 16), refuse: refuse}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (s *stompServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	read := func() (Frame, bool) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return Frame{}, false
		}
		f, err := DecodeFrame(msg)
		if err != nil {
			return Frame{}, false
		}
		s.mu.Lock()
		s.headers = append(s.headers, f)
		s.mu.Unlock()
		return f, true
	}

	if f, ok := read(); !ok || f.Command != cmdConnect {
		return
	}
	if s.refuse {
		_ = conn.WriteMessage(websocket.TextMessage, Frame{Command: cmdError, Headers: []Header{{Key: "message", Value: "unauthorized"}}}.Encode())
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, Frame{Command: cmdConnected, Headers: []Header{{Key: "version", Value: "1.2"}}}.Encode())

	if f, ok := read(); !ok || f.Command != cmdSubscribe {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var body string
		select {
		case <-gone:
			return
		case body = <-s.frames:
		}
		if body == "" {
			return
		}
		msg := Frame{Command: cmdMessage, Headers: []Header{{Key: "destination", Value: "/topic/auction-updates"}}, Body: []byte(body)}
		if err := conn.WriteMessage(websocket.TextMessage, msg.Encode()); err != nil {
			return
		}
	}
}

func (s *stompServer) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.headers...)
}

func TestWebSocketSubscriber_DeliversMessages(t *testing.T) {
	server, url := newStompServer(t, false)
	sub := NewWebSocketSubscriber(url, discardLogger, WithAccessToken("tok"), WithKeepAlive(10*time.Millisecond))
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Subscribe(ctx, sink) }()

	server.frames <- `{"id":1,"bidCount":4}`
	server.frames <- `garbage`
	server.frames <- `{"id":"2","isClosed":true}`

	require.Eventually(t, func() bool {
		_, updates := sink.snapshot()
		return len(updates) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	connected, updates := sink.snapshot()
	assert.Equal(t, 1, connected)
	assert.Equal(t, auctions.ID("1"), updates[0].ID)
	assert.Equal(t, auctions.ID("2"), updates[1].ID)

	frames := server.received()
	require.GreaterOrEqual(t, len(frames), 2)
	auth, _ := frames[0].Get("Authorization")
	assert.Equal(t, "Bearer tok", auth)
	dest, _ := frames[1].Get("destination")
	assert.Equal(t, "/topic/auction-updates", dest)
}

func TestWebSocketSubscriber_ServerCloseReturnsError(t *testing.T) {
	server, url := newStompServer(t, false)
	sub := NewWebSocketSubscriber(url, discardLogger)
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() { done <- sub.Subscribe(context.Background(), sink) }()

	require.Eventually(t, func() bool {
		connected, _ := sink.snapshot()
		return connected == 1
	}, 2*time.Second, 5*time.Millisecond)
	server.frames <- ""

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.NotErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not notice the closed connection")
	}
}

func TestWebSocketSubscriber_BrokerRefusal(t *testing.T) {
	_, url := newStompServer(t, true)
	sub := NewWebSocketSubscriber(url, discardLogger)
	sink := &recordingSink{}

	err := sub.Subscribe(context.Background(), sink)

	assert.ErrorContains(t, err, "unauthorized")
	connected, _ := sink.snapshot()
	assert.Zero(t, connected)
}

func TestWebSocketSubscriber_DialFailure(t *testing.T) {
	addr := closedAddr(t)
	sub := NewWebSocketSubscriber("ws://"+addr+"/ws", discardLogger)

	err := sub.Subscribe(context.Background(), &recordingSink{})

	assert.ErrorContains(t, err, "failed to dial")
}

func TestPushChannel_ReconnectsOverWebSocket(t *testing.T) {
	server, url := newStompServer(t, false)
	sub := NewWebSocketSubscriber(url, discardLogger)

	board := auctions.NewBoard()
	cell := board.Track("1")
	require.True(t, cell.Replace(auctions.Snapshot{ID: "1", BidCount: 1}, auctions.SourcePoll))

	ch := auctions.NewPushChannel(sub, board, discardLogger, auctions.WithReconnectPolicy(auctions.ReconnectPolicy{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   5,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.State() == auctions.ChannelConnected }, 2*time.Second, 5*time.Millisecond)
	server.frames <- ""
	server.frames <- `{"id":1,"bidCount":9}`

	require.Eventually(t, func() bool { return cell.View().Snapshot.BidCount == 9 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRedisSubscriber_ConnectionRefused(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: closedAddr(t), MaxRetries: -1})
	defer client.Close()

	sub := NewRedisSubscriber(client, "", discardLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sub.Subscribe(ctx, &recordingSink{})

	assert.ErrorContains(t, err, "failed to subscribe to auction-updates")
}

func TestNATSSubscriber_ConnectionRefused(t *testing.T) {
	sub := NewNATSSubscriber("nats://"+closedAddr(t), "", discardLogger)

	err := sub.Subscribe(context.Background(), &recordingSink{})

	assert.ErrorContains(t, err, "failed to connect to NATS")
}

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
