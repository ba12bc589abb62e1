package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/floroz/gavel-live/services/bid-client/internal/domain/auctions"
	"github.com/floroz/gavel-live/services/bid-client/internal/domain/bids"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the marketplace REST API. It implements auctions.Fetcher,
// auctions.Lister and bids.Gateway.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	group      singleflight.Group
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to add auth.Transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logger.With("component", "rest_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetAuction loads one auction. Concurrent loads of the same auction share a
// single request.
func (c *Client) GetAuction(ctx context.Context, id auctions.ID) (*auctions.Snapshot, error) {
	v, err, _ := c.group.Do("auction:"+id.String(), func() (interface{}, error) {
		var s auctions.Snapshot
		if err := c.do(ctx, http.MethodGet, "/auctions/"+url.PathEscape(id.String()), nil, nil, &s); err != nil {
			return nil, err
		}
		return &s, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, auctions.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction %s: %w", id, err)
	}

	s := *v.(*auctions.Snapshot)
	return &s, nil
}

// ListAuctions loads a filtered page. Both a bare array and a paged object
// with a "content" field are accepted.
func (c *Client) ListAuctions(ctx context.Context, query auctions.ListQuery) ([]auctions.Snapshot, error) {
	params := url.Values{}
	for k, v := range query.Values() {
		params.Set(k, v)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/auctions", params, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []auctions.Snapshot
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to decode auction list: %w", err)
		}
		return list, nil
	}

	var page struct {
		Content []auctions.Snapshot `json:"content"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode auction page: %w", err)
	}
	return page.Content, nil
}

// PlaceBid submits a bid. Refusals come back as *bids.RejectionError with
// the backend's message.
func (c *Client) PlaceBid(ctx context.Context, req bids.PlaceBidRequest) (*bids.PlaceBidResult, error) {
	var result bids.PlaceBidResult
	if err := c.do(ctx, http.MethodPost, "/bids", nil, req, &result); err != nil {
		return nil, asRejection(err)
	}
	return &result, nil
}

// BuyNow purchases an auction at its buy-now price.
func (c *Client) BuyNow(ctx context.Context, id auctions.ID, req bids.BuyNowRequest) error {
	path := "/auctions/" + url.PathEscape(id.String()) + "/buy-now"
	if err := c.do(ctx, http.MethodPost, path, nil, req, nil); err != nil {
		return asRejection(err)
	}
	return nil
}

// RecordView increments the auction's view counter.
func (c *Client) RecordView(ctx context.Context, id auctions.ID) error {
	path := "/auctions/" + url.PathEscape(id.String()) + "/view"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

func asRejection(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &bids.RejectionError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("Request completed",
		"method", method, "path", u.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
