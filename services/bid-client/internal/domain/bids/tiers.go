package bids

// Tier is one price bracket of the increment table. A tier applies from
// Floor (inclusive) up to the next tier's floor.
type Tier struct {
	Floor int64
	Step  int64
}

// DefaultIncrementStep applies below the lowest bracket.
const DefaultIncrementStep int64 = 1_000

// tiers is ordered from the highest floor down.
var tiers = []Tier{
	{Floor: 10_000_000, Step: 100_000},
	{Floor: 1_000_000, Step: 50_000},
	{Floor: 100_000, Step: 10_000},
	{Floor: 10_000, Step: 5_000},
	{Floor: 1_000, Step: 1_000},
}

// TierFor returns the bracket price falls into.
func TierFor(price int64) Tier {
	for _, t := range tiers {
		if price >= t.Floor {
			return t
		}
	}
	return Tier{Floor: 0, Step: DefaultIncrementStep}
}

// IncrementStep returns the minimum raise over price.
func IncrementStep(price int64) int64 {
	return TierFor(price).Step
}

// MinNextBid returns the lowest acceptable bid over price.
func MinNextBid(price int64) int64 {
	return price + IncrementStep(price)
}
