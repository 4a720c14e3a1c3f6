package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind classifies a trade-log entry.
type ActionKind string

const (
	ActionBuy     ActionKind = "BUY"
	ActionSell    ActionKind = "SELL"
	ActionSkip    ActionKind = "SKIP"    // decision evaluated, no order placed
	ActionFail    ActionKind = "FAIL"    // order attempted, abandoned with reason
	ActionSuspend ActionKind = "SUSPEND" // circuit breaker forced the wallet off
)

// AutoTradeLogEntry is the append-only audit record for every decision the
// engine takes, including skips and failures. Never mutated after creation.
type AutoTradeLogEntry struct {
	ID          string
	WalletID    string
	PositionID  string // empty for skips and buy failures
	Action      ActionKind
	ConditionID string
	Question    string
	Side        Side
	Price       float64
	Size        float64
	RealizedPnL float64 // only meaningful for sells
	Reason      string  // trigger, skip, or failure reason
	At          time.Time
}

// NewLogEntry stamps an entry with a fresh id and timestamp.
func NewLogEntry(walletID string, action ActionKind) AutoTradeLogEntry {
	return AutoTradeLogEntry{
		ID:       uuid.NewString(),
		WalletID: walletID,
		Action:   action,
		At:       time.Now().UTC(),
	}
}
