package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

func newTestMonitor(f *execFixture) *Monitor {
	return NewMonitor(nil, f.store, f.store, f.peaks, f.exec)
}

func tick(m *Monitor, conditionID, tokenID string, price float64) {
	m.handleTick(context.Background(), domain.PriceUpdate{
		ConditionID: conditionID,
		TokenID:     tokenID,
		Price:       price,
		At:          time.Now().UTC(),
	})
	m.wg.Wait()
}

func TestMonitor_TakeProfitTickSells(t *testing.T) {
	f := newExecFixture(t, 5)
	f.registerWallet(t, "w1")
	pos := f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	// +10% does not trigger at the default 20% threshold
	tick(m, "0xa", pos.TokenID, 0.55)
	assert.Zero(t, f.venue.submitCount())

	tick(m, "0xa", pos.TokenID, 0.61)
	assert.Equal(t, 1, f.venue.submitCount())

	got, err := f.store.GetPosition(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOpen())
}

func TestMonitor_DisabledWalletNotEvaluated(t *testing.T) {
	f := newExecFixture(t, 5)
	ws := f.registerWallet(t, "w1")
	ws.Enabled = false
	require.NoError(t, f.store.Set(context.Background(), ws))
	pos := f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	tick(m, "0xa", pos.TokenID, 0.99)
	assert.Zero(t, f.venue.submitCount())
}

func TestMonitor_DisableTakesEffectMidStream(t *testing.T) {
	f := newExecFixture(t, 5)
	ws := f.registerWallet(t, "w1")
	pos := f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	tick(m, "0xa", pos.TokenID, 0.55)
	assert.Zero(t, f.venue.submitCount())

	// settings are read fresh each tick
	ws.Enabled = false
	require.NoError(t, f.store.Set(context.Background(), ws))

	tick(m, "0xa", pos.TokenID, 0.61)
	assert.Zero(t, f.venue.submitCount())
}

func TestMonitor_TrailingStopFromPeak(t *testing.T) {
	f := newExecFixture(t, 5)
	ws := f.registerWallet(t, "w1")
	ws.TakeProfitEnabled = false
	ws.StopLossEnabled = false
	ws.TrailingStopEnabled = true
	ws.TrailingStopPct = 0.10
	require.NoError(t, f.store.Set(context.Background(), ws))
	pos := f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	f.venue.mu.Lock()
	f.venue.price = 0.71
	f.venue.mu.Unlock()

	tick(m, "0xa", pos.TokenID, 0.60)
	tick(m, "0xa", pos.TokenID, 0.80) // peak
	tick(m, "0xa", pos.TokenID, 0.73) // -8.75%, inside allowance
	assert.Zero(t, f.venue.submitCount())

	tick(m, "0xa", pos.TokenID, 0.71) // -11.25% from peak
	assert.Equal(t, 1, f.venue.submitCount())

	// peak state released with the position
	_, tracked := f.peaks.Get(pos.ID)
	assert.False(t, tracked)
}

func TestMonitor_IgnoresOtherOutcomeToken(t *testing.T) {
	f := newExecFixture(t, 5)
	f.registerWallet(t, "w1")
	f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	// tick for the opposite outcome token of the same market
	tick(m, "0xa", "tok-other", 0.95)
	assert.Zero(t, f.venue.submitCount())
}

func TestMonitor_IgnoresNonPositiveTicks(t *testing.T) {
	f := newExecFixture(t, 5)
	f.registerWallet(t, "w1")
	pos := f.openPosition(t, "w1", "0xa", 0.50, 100)
	m := newTestMonitor(f)

	tick(m, "0xa", pos.TokenID, 0)
	tick(m, "0xa", pos.TokenID, -1)
	assert.Zero(t, f.venue.submitCount())
}

func TestMonitor_MultipleWalletsSameMarket(t *testing.T) {
	f := newExecFixture(t, 5)
	f.registerWallet(t, "w1")
	f.registerWallet(t, "w2")
	p1, err := domain.NewPosition("w1", "0xa", "tok-a", "q", domain.SideYes, 0.50, 100, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.store.CreatePosition(context.Background(), p1))
	p2, err := domain.NewPosition("w2", "0xa", "tok-a", "q", domain.SideYes, 0.50, 50, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.store.CreatePosition(context.Background(), p2))
	m := newTestMonitor(f)

	tick(m, "0xa", "tok-a", 0.61)

	// both wallets exit independently
	assert.Equal(t, 2, f.venue.submitCount())
	for _, id := range []string{"w1", "w2"} {
		positions, err := f.store.OpenPositions(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, positions, "wallet %s", id)
	}
}
