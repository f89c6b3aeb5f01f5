package domain

import (
	"strconv"
	"strings"
	"time"
)

// MarketStatus represents the trading status of a prediction market.
type MarketStatus string

const (
	MarketActive    MarketStatus = "active"
	MarketSuspended MarketStatus = "suspended"
	MarketResolved  MarketStatus = "resolved"
)

// MarketType describes what a market is settled on.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
)

// Market is a snapshot of a prediction market as of one fetch cycle.
// It is treated as immutable once handed to strategies.
type Market struct {
	ID        string       // Market identifier on the venue
	Sport     string       // Sport or category (e.g., "NFL")
	EventName string       // Human readable event name
	EventTime time.Time    // Scheduled start of the underlying event
	Type      MarketType   // moneyline, spread, total
	Desc      string       // Free-form description, used to recover the total line
	Line      float64      // Posted total line for total markets (0 if unknown)
	YesPrice  float64      // Price of a YES share (implied probability)
	NoPrice   float64      // Price of a NO share (implied probability)
	Liquidity float64      // Current liquidity in quote currency
	Status    MarketStatus // active, suspended, resolved
	Outcome   Position     // Winning side once resolved, empty otherwise
	UpdatedAt time.Time
}

// IsActive reports whether the market can be traded.
func (m *Market) IsActive() bool {
	return m.Status == MarketActive
}

// Price returns the current price of the given side.
func (m *Market) Price(p Position) float64 {
	if p == PositionNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// TotalLine returns the posted line, falling back to the description
// ("Total Points Over 45.5"). ok is false when neither source has one.
func (m *Market) TotalLine() (line float64, ok bool) {
	if m.Line > 0 {
		return m.Line, true
	}
	return ParseTotalLine(m.Desc)
}

// ParseTotalLine extracts the number that follows "over" or "under" in a description.
func ParseTotalLine(desc string) (float64, bool) {
	words := strings.Fields(desc)
	for i, w := range words {
		lw := strings.ToLower(w)
		if !strings.Contains(lw, "over") && !strings.Contains(lw, "under") {
			continue
		}
		if i+1 >= len(words) {
			continue
		}
		if v, err := strconv.ParseFloat(strings.Trim(words[i+1], "(),"), 64); err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// Bookmaker names a reference price source.
type Bookmaker string

const (
	BookmakerPinnacle   Bookmaker = "pinnacle"
	BookmakerBetfair    Bookmaker = "betfair"
	BookmakerDraftKings Bookmaker = "draftkings"
)

// ReferenceQuote is one bookmaker's implied probabilities for a market.
type ReferenceQuote struct {
	MarketID   string
	Bookmaker  Bookmaker
	YesProb    float64 // Implied probability of YES (vig included)
	NoProb     float64 // Implied probability of NO (vig included)
	ObservedAt time.Time
}

// TeamRating holds scoring inputs for one side of a matchup.
type TeamRating struct {
	Team          string
	PointsFor     float64 // Average points scored per game
	PointsAgainst float64 // Average points allowed per game
}

// Matchup pairs the two sides of a total market with an optional home edge in points.
type Matchup struct {
	MarketID      string
	Home          TeamRating
	Away          TeamRating
	HomeAdvantage float64
}

// MarketFilter bounds the active-market batch used by one generator cycle.
type MarketFilter struct {
	MinLiquidity float64
	StartsAfter  time.Time
	Limit        int
}
