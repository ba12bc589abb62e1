package auctions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_DecodeBackendPayload(t *testing.T) {
	payload := `{
		"id": 42,
		"title": "Vintage camera",
		"category": "electronics",
		"brand": "Leica",
		"startAt": "2026-03-14T10:00:00Z",
		"endAt": "2026-03-14T14:00:00+01:00",
		"startPrice": 10000,
		"highestBid": null,
		"bidCount": 0,
		"viewCount": 12,
		"buyNowPrice": 500000,
		"isClosed": false,
		"sellerId": "seller-1"
	}`

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &s))

	assert.Equal(t, ID("42"), s.ID)
	assert.Nil(t, s.HighestBid)
	assert.Equal(t, int64(500000), *s.BuyNowPrice)
	assert.True(t, s.StartAt.Equal(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)))
	assert.True(t, s.EndAt.Equal(time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(10000), s.CurrentPrice())
	assert.NoError(t, s.Validate())
}

func TestSnapshot_DecodeStringIDAndLocalTime(t *testing.T) {
	prev := TimestampLocation
	TimestampLocation = time.UTC
	t.Cleanup(func() { TimestampLocation = prev })

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a-1","startAt":"2026-03-14T10:00:00","endAt":"2026-03-14T11:30:00.250"}`), &s))

	assert.Equal(t, ID("a-1"), s.ID)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), s.StartAt.Time)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 30, 0, 250_000_000, time.UTC), s.EndAt.Time)
}

func TestSnapshot_UnparseableEndIsTreatedAsEnded(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","startAt":"2026-03-14T10:00:00Z","endAt":"tomorrow"}`), &s))

	assert.True(t, s.EndAt.IsZero())
	assert.Equal(t, StatusEnded, Resolve(fixtureNow, s.Window()).Status)
}

func TestSnapshot_CurrentPrice(t *testing.T) {
	s := Snapshot{StartPrice: 10_000}
	assert.Equal(t, int64(10_000), s.CurrentPrice())

	s.HighestBid = lo.ToPtr(int64(25_000))
	assert.Equal(t, int64(25_000), s.CurrentPrice())
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr error
	}{
		{name: "valid", mutate: func(*Snapshot) {}},
		{name: "missing id", mutate: func(s *Snapshot) { s.ID = "" }, wantErr: ErrMissingID},
		{
			name:    "start after end",
			mutate:  func(s *Snapshot) { s.StartAt, s.EndAt = s.EndAt, s.StartAt },
			wantErr: ErrInvalidWindow,
		},
		{name: "negative price", mutate: func(s *Snapshot) { s.StartPrice = -1 }, wantErr: ErrNegativeValue},
		{
			name:    "highest bid not above start",
			mutate:  func(s *Snapshot) { s.HighestBid = lo.ToPtr(s.StartPrice) },
			wantErr: ErrInvalidHighestBid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSnapshot("1")
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdate_ApplyToOverwritesOnlyPresentFields(t *testing.T) {
	base := newSnapshot("7")

	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"highestBid":20000,"bidCount":4}`), &u))

	got := u.ApplyTo(base)

	assert.Equal(t, int64(20000), *got.HighestBid)
	assert.Equal(t, int64(4), got.BidCount)
	assert.Equal(t, base.Title, got.Title)
	assert.Equal(t, base.EndAt, got.EndAt)
	assert.Equal(t, int64(15_000), *base.HighestBid, "base must not be aliased")
}

func TestListQuery_Values(t *testing.T) {
	q := ListQuery{Category: "art", Page: 2}
	assert.Equal(t, map[string]string{"category": "art", "page": "2"}, q.Values())
	assert.Empty(t, ListQuery{}.Values())
}
