package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

func newTestBuyer(f *execFixture) *AutoBuyer {
	return NewAutoBuyer(nil, f.store, f.store, f.creds, f.exec)
}

func autoBuyWallet(t *testing.T, f *execFixture, walletID string) domain.WalletSettings {
	t.Helper()
	ws := domain.DefaultSettings(walletID)
	ws.Enabled = true
	ws.AutoBuyEnabled = true
	ws.MinEdge = 0.05
	ws.Strategies = []domain.StrategyTag{domain.StrategyValue}
	require.NoError(t, f.store.Set(context.Background(), ws))
	return ws
}

func valueOpp(conditionID string, edge float64) domain.Opportunity {
	return domain.Opportunity{
		ConditionID:   conditionID,
		TokenID:       "tok-" + conditionID,
		Question:      "q " + conditionID,
		Strategy:      domain.StrategyValue,
		Side:          domain.SideYes,
		Price:         0.55,
		Edge:          edge,
		HoursToClose:  48,
		MeetsBaseline: true,
	}
}

func runBatch(b *AutoBuyer, opps ...domain.Opportunity) {
	b.handleBatch(context.Background(), domain.OpportunityBatch{
		Seq:           1,
		Opportunities: opps,
		ReceivedAt:    time.Now().UTC(),
	})
	b.wg.Wait()
}

func TestAutoBuyer_ApprovedOpportunityBought(t *testing.T) {
	f := newExecFixture(t, 5)
	autoBuyWallet(t, f, "w1")
	b := newTestBuyer(f)

	runBatch(b, valueOpp("0xa", 0.10))

	positions, err := f.store.OpenPositions(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "0xa", positions[0].ConditionID)
	assert.Contains(t, f.logActions(t, "w1"), domain.ActionBuy)
}

func TestAutoBuyer_ScreenChecklist(t *testing.T) {
	f := newExecFixture(t, 5)
	ctx := context.Background()
	ws := autoBuyWallet(t, f, "w1")
	b := newTestBuyer(f)

	t.Run("strategy not enabled", func(t *testing.T) {
		opp := valueOpp("0xa", 0.10)
		opp.Strategy = domain.StrategyLongshot
		reason, err := b.screen(ctx, ws, opp)
		require.NoError(t, err)
		assert.Contains(t, reason, "strategy")
	})

	t.Run("unknown strategy never trades", func(t *testing.T) {
		opp := valueOpp("0xa", 0.10)
		opp.Strategy = domain.StrategyUnknown
		reason, err := b.screen(ctx, ws, opp)
		require.NoError(t, err)
		assert.NotEmpty(t, reason)
	})

	t.Run("fails baseline", func(t *testing.T) {
		opp := valueOpp("0xa", 0.10)
		opp.MeetsBaseline = false
		reason, err := b.screen(ctx, ws, opp)
		require.NoError(t, err)
		assert.Contains(t, reason, "baseline")
	})

	t.Run("edge below minimum", func(t *testing.T) {
		reason, err := b.screen(ctx, ws, valueOpp("0xa", 0.03))
		require.NoError(t, err)
		assert.Contains(t, reason, "edge")
	})

	t.Run("already holding market", func(t *testing.T) {
		f.openPosition(t, "w1", "0xheld", 0.50, 10)
		reason, err := b.screen(ctx, ws, valueOpp("0xheld", 0.10))
		require.NoError(t, err)
		assert.Contains(t, reason, "already holds")
	})

	t.Run("cooldown active", func(t *testing.T) {
		require.NoError(t, f.store.SetCooldown(ctx, "w1", "0xcool", time.Now().UTC().Add(time.Hour)))
		reason, err := b.screen(ctx, ws, valueOpp("0xcool", 0.10))
		require.NoError(t, err)
		assert.Contains(t, reason, "cooldown")
	})

	t.Run("all checks pass", func(t *testing.T) {
		reason, err := b.screen(ctx, ws, valueOpp("0xfresh", 0.10))
		require.NoError(t, err)
		assert.Empty(t, reason)
	})
}

func TestAutoBuyer_MaxPositionsBlocks(t *testing.T) {
	f := newExecFixture(t, 5)
	ctx := context.Background()
	ws := autoBuyWallet(t, f, "w1")
	ws.MaxPositions = 1
	require.NoError(t, f.store.Set(ctx, ws))
	f.openPosition(t, "w1", "0xheld", 0.50, 10)
	b := newTestBuyer(f)

	reason, err := b.screen(ctx, ws, valueOpp("0xnew", 0.10))
	require.NoError(t, err)
	assert.Contains(t, reason, "open positions")
}

func TestAutoBuyer_ExposureBlocks(t *testing.T) {
	f := newExecFixture(t, 5)
	ctx := context.Background()
	ws := autoBuyWallet(t, f, "w1")
	ws.MaxPositionSize = 25
	ws.MaxTotalExposure = 40
	require.NoError(t, f.store.Set(ctx, ws))
	// 100 shares at 0.50 = 50 USDC at risk, over the 40 cap
	f.openPosition(t, "w1", "0xheld", 0.50, 100)
	b := newTestBuyer(f)

	reason, err := b.screen(ctx, ws, valueOpp("0xnew", 0.10))
	require.NoError(t, err)
	assert.Contains(t, reason, "exposure")
}

func TestAutoBuyer_DailyLossBlocks(t *testing.T) {
	f := newExecFixture(t, 5)
	ctx := context.Background()
	ws := autoBuyWallet(t, f, "w1")
	ws.MaxDailyLoss = 50
	require.NoError(t, f.store.Set(ctx, ws))

	e := domain.NewLogEntry("w1", domain.ActionSell)
	e.RealizedPnL = -60
	require.NoError(t, f.store.AppendLog(ctx, e))
	b := newTestBuyer(f)

	reason, err := b.screen(ctx, ws, valueOpp("0xnew", 0.10))
	require.NoError(t, err)
	assert.Contains(t, reason, "daily loss")
}

func TestAutoBuyer_SameBatchDuplicateHitsCooldown(t *testing.T) {
	f := newExecFixture(t, 5)
	autoBuyWallet(t, f, "w1")
	b := newTestBuyer(f)

	// same market scored twice in one batch: the speculative cooldown from
	// the first approval blocks the second
	runBatch(b, valueOpp("0xa", 0.10), valueOpp("0xa", 0.12))

	positions, err := f.store.OpenPositions(context.Background(), "w1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.Equal(t, 1, f.venue.submitCount())

	entries, err := f.store.RecentLog(context.Background(), "w1", 10)
	require.NoError(t, err)
	var skips int
	for _, e := range entries {
		if e.Action == domain.ActionSkip {
			skips++
			assert.Contains(t, e.Reason, "cooldown")
		}
	}
	assert.Equal(t, 1, skips)
}

func TestAutoBuyer_DisabledWalletIgnored(t *testing.T) {
	f := newExecFixture(t, 5)
	ws := autoBuyWallet(t, f, "w1")
	ws.Enabled = false
	require.NoError(t, f.store.Set(context.Background(), ws))
	b := newTestBuyer(f)

	runBatch(b, valueOpp("0xa", 0.10))

	assert.Zero(t, f.venue.submitCount())
	entries, err := f.store.RecentLog(context.Background(), "w1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAutoBuyer_AutoBuyOffStillMonitored(t *testing.T) {
	f := newExecFixture(t, 5)
	ws := autoBuyWallet(t, f, "w1")
	ws.AutoBuyEnabled = false
	require.NoError(t, f.store.Set(context.Background(), ws))
	b := newTestBuyer(f)

	runBatch(b, valueOpp("0xa", 0.10))
	assert.Zero(t, f.venue.submitCount())
}

func TestAutoBuyer_NoCredentialsSkipsWallet(t *testing.T) {
	f := newExecFixture(t, 5)
	autoBuyWallet(t, f, "w1")
	f.creds.missing["w1"] = true
	b := newTestBuyer(f)

	runBatch(b, valueOpp("0xa", 0.10))
	assert.Zero(t, f.venue.submitCount())
}

func TestAutoBuyer_EdgeProportionalSizing(t *testing.T) {
	f := newExecFixture(t, 5)
	ctx := context.Background()
	ws := autoBuyWallet(t, f, "w1")
	ws.MaxPositionSize = 100
	require.NoError(t, f.store.Set(ctx, ws))
	b := newTestBuyer(f)

	// half the saturating edge buys half the max size: 50 USDC at 0.60
	runBatch(b, valueOpp("0xa", 0.10))

	positions, err := f.store.OpenPositions(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 50.0/0.60, positions[0].Size, 1e-6)
}

func TestAutoBuyer_WalletsIndependent(t *testing.T) {
	f := newExecFixture(t, 5)
	autoBuyWallet(t, f, "w1")
	w2 := autoBuyWallet(t, f, "w2")
	w2.Strategies = []domain.StrategyTag{domain.StrategyMomentum}
	require.NoError(t, f.store.Set(context.Background(), w2))
	b := newTestBuyer(f)

	runBatch(b, valueOpp("0xa", 0.10))

	p1, err := f.store.OpenPositions(context.Background(), "w1")
	require.NoError(t, err)
	assert.Len(t, p1, 1)

	// w2 does not trade VALUE; its skip is audited separately
	p2, err := f.store.OpenPositions(context.Background(), "w2")
	require.NoError(t, err)
	assert.Empty(t, p2)
	assert.Contains(t, f.logActions(t, "w2"), domain.ActionSkip)
}
