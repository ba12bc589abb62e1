package auctions

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/samber/lo"
)

var fixtureNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newSnapshot(id ID) Snapshot {
	return Snapshot{
		ID:          id,
		Title:       gofakeit.ProductName(),
		Category:    gofakeit.ProductCategory(),
		Brand:       gofakeit.Company(),
		Description: gofakeit.Sentence(8),
		StartAt:     Timestamp{fixtureNow.Add(-time.Hour)},
		EndAt:       Timestamp{fixtureNow.Add(time.Hour)},
		StartPrice:  10_000,
		HighestBid:  lo.ToPtr(int64(15_000)),
		BidCount:    3,
		ViewCount:   int64(gofakeit.IntRange(0, 500)),
		SellerID:    gofakeit.UUID(),
	}
}
