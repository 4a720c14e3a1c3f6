package domain

import "time"

// Opportunity is one scored entry candidate from the external scorer.
// Read-only to the engine; duplicates across consecutive batches are normal
// and deduplicated by the already-holding check.
type Opportunity struct {
	ConditionID   string
	TokenID       string
	Question      string
	Strategy      StrategyTag
	Side          Side
	Price         float64 // reference price at scoring time
	Edge          float64 // estimated probability advantage over price
	HoursToClose  float64
	MeetsBaseline bool // baseline screening, computed by the scorer
}

// OpportunityBatch is one delivery from the opportunity stream. Seq is
// monotonically increasing and keys the buy dedupe path.
type OpportunityBatch struct {
	Seq           int64
	Opportunities []Opportunity
	ReceivedAt    time.Time
}

// edgeSizingCap is the edge at which position sizing saturates: a 20% edge
// (or better) earns the full per-trade maximum.
const edgeSizingCap = 0.20

// BuySize returns the edge-proportional position size in USDC:
// maxPositionSize scaled by edge/0.20, capped at 1.0.
func BuySize(maxPositionSize, edge float64) float64 {
	if maxPositionSize <= 0 || edge <= 0 {
		return 0
	}
	frac := edge / edgeSizingCap
	if frac > 1.0 {
		frac = 1.0
	}
	return maxPositionSize * frac
}
