package auctions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is the backend's opaque auction identifier. The backend may encode it as
// a JSON number or a JSON string; both decode to the same value.
type ID string

// UnmarshalJSON accepts both quoted and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode auction id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode auction id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// timestampLayouts are tried in order. The zone-less layouts match what the
// backend emits for server-local date-times.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// TimestampLocation is used for timestamps that carry no zone offset.
var TimestampLocation = time.Local

// Timestamp is an ISO-8601 instant. A missing or unparseable value decodes to
// the zero time instead of failing the whole payload; the resolver treats a
// zero end time as ended.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses s with the accepted layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, TimestampLocation)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, _ := ParseTimestamp(s)
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Snapshot is the authoritative state of one auction as served by the backend.
type Snapshot struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Description string    `json:"description"`
	StartAt     Timestamp `json:"startAt"`
	EndAt       Timestamp `json:"endAt"`
	StartPrice  int64     `json:"startPrice"`
	HighestBid  *int64    `json:"highestBid"`
	BidCount    int64     `json:"bidCount"`
	ViewCount   int64     `json:"viewCount"`
	BuyNowPrice *int64    `json:"buyNowPrice,omitempty"`
	IsClosed    bool      `json:"isClosed"`
	SellerID    string    `json:"sellerId"`
	Version     int64     `json:"version,omitempty"`
}

// CurrentPrice is the price the next bid is measured against.
func (s Snapshot) CurrentPrice() int64 {
	if s.HighestBid != nil && *s.HighestBid > s.StartPrice {
		return *s.HighestBid
	}
	return s.StartPrice
}

// Window returns the fields the time-status resolver needs.
func (s Snapshot) Window() Window {
	return Window{
		StartAt: s.StartAt.Time,
		EndAt:   s.EndAt.Time,
		Closed:  s.IsClosed,
	}
}

// Validate checks the structural invariants of a snapshot.
func (s Snapshot) Validate() error {
	if s.ID == "" {
		return ErrMissingID
	}
	if !s.StartAt.IsZero() && !s.EndAt.IsZero() && !s.StartAt.Before(s.EndAt.Time) {
		return ErrInvalidWindow
	}
	if s.StartPrice < 0 || s.BidCount < 0 || s.ViewCount < 0 {
		return ErrNegativeValue
	}
	if s.HighestBid != nil && *s.HighestBid <= s.StartPrice {
		return fmt.Errorf("%w: highest bid %d does not exceed start price %d",
			ErrInvalidHighestBid, *s.HighestBid, s.StartPrice)
	}
	return nil
}

// Update is a partial snapshot as carried by push messages. Present fields
// overwrite the cell; absent fields are left untouched.
type Update struct {
	ID          ID         `json:"id"`
	Title       *string    `json:"title,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Brand       *string    `json:"brand,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartAt     *Timestamp `json:"startAt,omitempty"`
	EndAt       *Timestamp `json:"endAt,omitempty"`
	StartPrice  *int64     `json:"startPrice,omitempty"`
	HighestBid  *int64     `json:"highestBid,omitempty"`
	BidCount    *int64     `json:"bidCount,omitempty"`
	ViewCount   *int64     `json:"viewCount,omitempty"`
	BuyNowPrice *int64     `json:"buyNowPrice,omitempty"`
	IsClosed    *bool      `json:"isClosed,omitempty"`
	SellerID    *string    `json:"sellerId,omitempty"`
	Version     *int64     `json:"version,omitempty"`
}

// ApplyTo returns s with every present field of u written over it.
func (u Update) ApplyTo(s Snapshot) Snapshot {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Category != nil {
		s.Category = *u.Category
	}
	if u.Brand != nil {
		s.Brand = *u.Brand
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.StartAt != nil {
		s.StartAt = *u.StartAt
	}
	if u.EndAt != nil {
		s.EndAt = *u.EndAt
	}
	if u.StartPrice != nil {
		s.StartPrice = *u.StartPrice
	}
	if u.HighestBid != nil {
		v := *u.HighestBid
		s.HighestBid = &v
	}
	if u.BidCount != nil {
		s.BidCount = *u.BidCount
	}
	if u.ViewCount != nil {
		s.ViewCount = *u.ViewCount
	}
	if u.BuyNowPrice != nil {
		v := *u.BuyNowPrice
		s.BuyNowPrice = &v
	}
	if u.IsClosed != nil {
		s.IsClosed = *u.IsClosed
	}
	if u.SellerID != nil {
		s.SellerID = *u.SellerID
	}
	if u.Version != nil {
		s.Version = *u.Version
	}
	return s
}

// ListQuery filters the auction list.
type ListQuery struct {
	Category string
	Keyword  string
	Status   string
	Page     int
	Size     int
}

// Values renders the query as URL parameters, skipping empty filters.
func (q ListQuery) Values() map[string]string {
	v := make(map[string]string)
	if q.Category != "" {
		v["category"] = q.Category
	}
	if q.Keyword != "" {
		v["keyword"] = q.Keyword
	}
	if q.Status != "" {
		v["status"] = q.Status
	}
	if q.Page > 0 {
		v["page"] = strconv.Itoa(q.Page)
	}
	if q.Size > 0 {
		v["size"] = strconv.Itoa(q.Size)
	}
	return v
}
