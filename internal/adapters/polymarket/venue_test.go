package polymarket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypilot/internal/ports"
)

func TestParseUSDC(t *testing.T) {
	assert.InDelta(t, 25.0, parseUSDC("25000000"), 1e-9)
	assert.InDelta(t, 0.5, parseUSDC("500000"), 1e-9)
	assert.Zero(t, parseUSDC(""))
	assert.Zero(t, parseUSDC("not-a-number"))
}

func TestToOrderResult_Buy(t *testing.T) {
	// buy: making = USDC spent, taking = shares received
	resp := clobOrderResponse{
		OrderID:      "ord1",
		MakingAmount: "25000000", // 25 USDC
		TakingAmount: "50000000", // 50 shares
		Success:      true,
	}
	res := toOrderResult(resp, ports.OrderRequest{Price: 0.55}, true)

	assert.Equal(t, "ord1", res.VenueOrderID)
	assert.InDelta(t, 50.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 0.50, res.FilledPrice, 1e-9)
}

func TestToOrderResult_Sell(t *testing.T) {
	// sell: making = shares given, taking = USDC received
	resp := clobOrderResponse{
		OrderID:      "ord2",
		MakingAmount: "100000000", // 100 shares
		TakingAmount: "60000000",  // 60 USDC
		Success:      true,
	}
	res := toOrderResult(resp, ports.OrderRequest{Price: 0.55}, false)

	assert.InDelta(t, 100.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 0.60, res.FilledPrice, 1e-9)
}

func TestToOrderResult_FallsBackToRequestPrice(t *testing.T) {
	resp := clobOrderResponse{OrderID: "ord3", Success: true}
	res := toOrderResult(resp, ports.OrderRequest{Price: 0.42}, true)
	assert.InDelta(t, 0.42, res.FilledPrice, 1e-9)
}

func TestSimVenue_FillsAtRequestedPrice(t *testing.T) {
	v := NewSimVenue()
	ctx := context.Background()

	price, err := v.BestPrice(ctx, "tok", ports.OrderBuy)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, price, 1e-9)

	v.SetPrice("tok", 0.40)
	price, err = v.BestPrice(ctx, "tok", ports.OrderBuy)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, price, 1e-9)

	// buy sized in USDC converts to shares
	res, err := v.Submit(ctx, ports.OrderRequest{
		ClientID: "c1", TokenID: "tok", Action: ports.OrderBuy, Price: 0.40, Size: 20,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 0.40, res.FilledPrice, 1e-9)

	// lookup answers from the record
	got, found, err := v.LookupOrder(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, res.VenueOrderID, got.VenueOrderID)

	_, found, err = v.LookupOrder(ctx, "never-submitted")
	require.NoError(t, err)
	assert.False(t, found)
}
