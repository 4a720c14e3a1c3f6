package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the outcome token held: YES or NO.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Position is one trade in a binary market, open while Remaining > 0.
// Mutated only by the order executor (creation, partial/full sell, redeem).
type Position struct {
	ID          string // local UUID
	WalletID    string
	ConditionID string // market identifier
	TokenID     string // outcome token held
	Question    string
	Side        Side
	EntryPrice  float64
	Size        float64 // shares bought
	Remaining   float64 // shares not yet sold
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// NewPosition builds a validated open position. A non-positive entry price is
// a configuration error and is rejected here so the exit evaluator can divide
// by EntryPrice unconditionally.
func NewPosition(walletID, conditionID, tokenID, question string, side Side, entryPrice, size float64, openedAt time.Time) (Position, error) {
	if walletID == "" || conditionID == "" {
		return Position{}, fmt.Errorf("position: wallet and condition ids are required")
	}
	if side != SideYes && side != SideNo {
		return Position{}, fmt.Errorf("position: invalid side %q", side)
	}
	if entryPrice <= 0 {
		return Position{}, fmt.Errorf("position: entry price must be positive, got %.4f", entryPrice)
	}
	if size <= 0 {
		return Position{}, fmt.Errorf("position: size must be positive, got %.4f", size)
	}
	return Position{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		ConditionID: conditionID,
		TokenID:     tokenID,
		Question:    question,
		Side:        side,
		EntryPrice:  entryPrice,
		Size:        size,
		Remaining:   size,
		OpenedAt:    openedAt,
	}, nil
}

// IsOpen reports whether any shares remain unsold.
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil && p.Remaining > 0
}

// HoldTime returns how long the position has been open as of now.
func (p Position) HoldTime(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// Exposure returns the USDC still at risk (remaining shares at entry price).
func (p Position) Exposure() float64 {
	return p.Remaining * p.EntryPrice
}

// PriceUpdate is one tick from the price feed: ordered per instrument,
// unordered across instruments.
type PriceUpdate struct {
	ConditionID string
	TokenID     string
	Price       float64
	At          time.Time
}
