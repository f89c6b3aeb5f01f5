package domain

import "time"

// Signal is a strategy's recommendation to trade one side of a market.
// Executed flips false->true exactly once; TradeID is set only when an order went out.
type Signal struct {
	ID              string
	MarketID        string
	Strategy        StrategyTag
	Direction       Direction
	Confidence      float64 // 0..1
	EdgeSize        float64 // Fair probability minus observed price, as a fraction
	RecommendedSize float64 // Strategy suggestion in quote currency; risk sizing has the final say
	ObservedPrice   float64 // Market price of the recommended side at generation time
	FairValue       float64 // Model probability of the recommended side
	GeneratedAt     time.Time
	Executed        bool
	TradeID         *string
	Metadata        map[string]interface{}
}
