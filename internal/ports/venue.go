package ports

import (
	"context"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// OrderAction is the direction of a venue order.
type OrderAction string

const (
	OrderBuy  OrderAction = "BUY"
	OrderSell OrderAction = "SELL"
)

// OrderRequest is a fully resolved order ready for signing and submission.
// ClientID carries the engine's dedupe key so an ambiguous outcome can be
// reconciled by lookup.
type OrderRequest struct {
	ClientID    string
	WalletID    string
	ConditionID string
	TokenID     string
	Action      OrderAction
	Side        domain.Side
	Price       float64 // limit price (best counter-price at decision time)
	Size        float64 // USDC for buys, shares for sells
}

// OrderResult is the venue's confirmation of a filled order.
type OrderResult struct {
	VenueOrderID string
	FilledSize   float64
	FilledPrice  float64
}

// OrderVenue signs and submits orders against the external exchange. Errors
// are classified (domain.VenueError) by the adapter, never guessed by the
// engine.
type OrderVenue interface {
	// BestPrice returns the current best counter-price for taking liquidity
	// on tokenID: best ask for buys, best bid for sells.
	BestPrice(ctx context.Context, tokenID string, action OrderAction) (float64, error)

	// Submit places the order. The call must respect ctx deadlines; a
	// deadline expiry is an ambiguous outcome.
	Submit(ctx context.Context, req OrderRequest) (OrderResult, error)

	// LookupOrder reconciles an ambiguous outcome: returns the result for a
	// previously submitted ClientID, or found=false if the venue never
	// accepted it.
	LookupOrder(ctx context.Context, clientID string) (res OrderResult, found bool, err error)
}
