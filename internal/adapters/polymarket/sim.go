package polymarket

// sim.go — dry-run stand-in for the CLOB: fills every order at the requested
// price, no signing, no network. Lookup answers from the local record so the
// reconciliation path behaves like the real venue.

import (
	"context"
	"sync"

	"github.com/alejandrodnm/polypilot/internal/ports"
)

// SimVenue implements ports.OrderVenue in memory.
type SimVenue struct {
	mu     sync.Mutex
	prices map[string]float64 // tokenID → quote
	orders map[string]ports.OrderResult
	n      int64
}

// NewSimVenue creates an empty simulated venue.
func NewSimVenue() *SimVenue {
	return &SimVenue{
		prices: make(map[string]float64),
		orders: make(map[string]ports.OrderResult),
	}
}

// SetPrice sets the quote returned for a token.
func (v *SimVenue) SetPrice(tokenID string, price float64) {
	v.mu.Lock()
	v.prices[tokenID] = price
	v.mu.Unlock()
}

// BestPrice returns the configured quote, defaulting to 0.50.
func (v *SimVenue) BestPrice(_ context.Context, tokenID string, _ ports.OrderAction) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.prices[tokenID]; ok {
		return p, nil
	}
	return 0.50, nil
}

// Submit fills immediately at the requested price.
func (v *SimVenue) Submit(_ context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	shares := req.Size
	if req.Action == ports.OrderBuy && req.Price > 0 {
		shares = req.Size / req.Price
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.n++
	res := ports.OrderResult{
		VenueOrderID: "sim-" + req.ClientID,
		FilledSize:   shares,
		FilledPrice:  req.Price,
	}
	v.orders[req.ClientID] = res
	return res, nil
}

// LookupOrder returns the recorded fill for clientID, if any.
func (v *SimVenue) LookupOrder(_ context.Context, clientID string) (ports.OrderResult, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	res, ok := v.orders[clientID]
	return res, ok, nil
}
