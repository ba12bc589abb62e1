package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeBackend mimics the marketplace API.
type fakeBackend struct {
	mu       sync.Mutex
	auctions map[string]map[string]interface{}
	bids     []bids.PlaceBidRequest
	buyNows  []bids.BuyNowRequest
	views    map[string]int
	gets     atomic.Int32
	release  chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		auctions: make(map[string]map[string]interface{}),
		views:    make(map[string]int),
	}
}

func (b *fakeBackend) add(id int) map[string]interface{} {
	a := map[string]interface{}{
		"id":          id,
		"title":       gofakeit.ProductName(),
		"category":    "electronics",
		"brand":       gofakeit.Company(),
		"description": gofakeit.Sentence(6),
		"startAt":     "2026-03-14T10:00:00Z",
		"endAt":       "2026-03-14T18:00:00Z",
		"startPrice":  10000,
		"highestBid":  nil,
		"bidCount":    0,
		"viewCount":   3,
		"isClosed":    false,
		"sellerId":    gofakeit.UUID(),
	}
	b.mu.Lock()
	b.auctions[strconv.Itoa(id)] = a
	b.mu.Unlock()
	return a
}

func (b *fakeBackend) placedBids() []bids.PlaceBidRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bids.PlaceBidRequest(nil), b.bids...)
}

func (b *fakeBackend) purchases() []bids.BuyNowRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bids.BuyNowRequest(nil), b.buyNows...)
}

func (b *fakeBackend) viewCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.views[id]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/auctions/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.gets.Add(1)
		b.mu.Lock()
		release := b.release
		b.mu.Unlock()
		if release != nil {
			<-release
		}
		b.mu.Lock()
		a, ok := b.auctions[mux.Vars(req)["id"]]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Auction not found"})
			return
		}
		writeJSON(w, http.StatusOK, a)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/auctions", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		var list []map[string]interface{}
		for _, a := range b.auctions {
			if c := req.URL.Query().Get("category"); c != "" && a["category"] != c {
				continue
			}
			list = append(list, a)
		}
		if req.URL.Query().Get("page") != "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"content": list, "totalElements": len(list)})
			return
		}
		writeJSON(w, http.StatusOK, list)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/bids", func(w http.ResponseWriter, req *http.Request) {
		var in bids.PlaceBidRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
			return
		}
		if in.BidAmount < 15000 {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "A higher bid was already placed"})
			return
		}
		b.mu.Lock()
		b.bids = append(b.bids, in)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, bids.PlaceBidResult{Success: true, NewPrice: in.BidAmount})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/auctions/{id}/buy-now", func(w http.ResponseWriter, req *http.Request) {
		var in bids.BuyNowRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		if in.Price <= 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("price required"))
			return
		}
		b.mu.Lock()
		b.buyNows = append(b.buyNows, in)
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/auctions/{id}/view", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.views[mux.Vars(req)["id"]]++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	return r
}

func setup(t *testing.T) (*fakeBackend, *Client) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/api/", discardLogger, WithRateLimit(1000, 10))
	require.NoError(t, err)
	return backend, client
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/api", discardLogger)
	assert.Error(t, err)
}

func TestClient_GetAuction(t *testing.T) {
	backend, client := setup(t)
	a := backend.add(42)

	s, err := client.GetAuction(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, auctions.ID("42"), s.ID)
	assert.Equal(t, a["title"], s.Title)
	assert.Nil(t, s.HighestBid)
	assert.Equal(t, int64(10000), s.CurrentPrice())
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), s.EndAt.UTC())
}

func TestClient_GetAuctionNotFound(t *testing.T) {
	_, client := setup(t)

	_, err := client.GetAuction(context.Background(), "404")

	assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
}

func TestClient_GetAuctionSharesConcurrentRequests(t *testing.T) {
	backend, client := setup(t)
	backend.add(1)
	release := make(chan struct{})
	backend.mu.Lock()
	backend.release = release
	backend.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetAuction(context.Background(), "1")
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return backend.gets.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), backend.gets.Load())
}

func TestClient_ListAuctions(t *testing.T) {
	backend, client := setup(t)
	backend.add(1)
	backend.add(2)

	tests := []struct {
		name  string
		query auctions.ListQuery
		want  int
	}{
		{name: "bare array", query: auctions.ListQuery{}, want: 2},
		{name: "paged object", query: auctions.ListQuery{Page: 1, Size: 20}, want: 2},
		{name: "filtered", query: auctions.ListQuery{Category: "art"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := client.ListAuctions(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Len(t, list, tt.want)
		})
	}
}

func TestClient_PlaceBid(t *testing.T) {
	backend, client := setup(t)

	res, err := client.PlaceBid(context.Background(), bids.PlaceBidRequest{AuctionID: "1", BidAmount: 15000, Bidder: "ada"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(15000), res.NewPrice)
	placed := backend.placedBids()
	require.Len(t, placed, 1)
	assert.Equal(t, auctions.ID("1"), placed[0].AuctionID)
}

func TestClient_PlaceBidRejectedVerbatim(t *testing.T) {
	_, client := setup(t)

	_, err := client.PlaceBid(context.Background(), bids.PlaceBidRequest{AuctionID: "1", BidAmount: 11000, Bidder: "ada"})

	var rejection *bids.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, http.StatusConflict, rejection.StatusCode)
	assert.Equal(t, "A higher bid was already placed", err.Error())
}

func TestClient_BuyNow(t *testing.T) {
	backend, client := setup(t)

	err := client.BuyNow(context.Background(), "7", bids.BuyNowRequest{WinnerID: "u1", WinnerName: "Ada", Price: 500000})
	require.NoError(t, err)
	purchases := backend.purchases()
	require.Len(t, purchases, 1)
	assert.Equal(t, "Ada", purchases[0].WinnerName)

	err = client.BuyNow(context.Background(), "7", bids.BuyNowRequest{})
	assert.EqualError(t, err, "price required")
}

func TestClient_RecordView(t *testing.T) {
	backend, client := setup(t)

	require.NoError(t, client.RecordView(context.Background(), "9"))
	assert.Equal(t, 1, backend.viewCount("9"))
}

func TestClient_ContextCancelled(t *testing.T) {
	backend, client := setup(t)
	backend.add(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetAuction(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"message":"boom"}`)))
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n")))
}
