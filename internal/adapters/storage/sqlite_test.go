package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openTestPosition(t *testing.T, s *Store, walletID, conditionID string, entryPrice, size float64) domain.Position {
	t.Helper()
	p, err := domain.NewPosition(walletID, conditionID, "tok-"+conditionID, "q", domain.SideYes,
		entryPrice, size, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.CreatePosition(context.Background(), p))
	return p
}

func TestStore_SettingsRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ws := domain.DefaultSettings("w1")
	ws.Enabled = true
	ws.MinEdge = 0.08
	ws.Strategies = []domain.StrategyTag{domain.StrategyValue, domain.StrategyLongshot}
	require.NoError(t, s.Set(ctx, ws))

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.InDelta(t, 0.08, got.MinEdge, 1e-9)
	assert.Equal(t, ws.Strategies, got.Strategies)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStore_SetRejectsInvalidSettings(t *testing.T) {
	s := newTestStore(t)

	ws := domain.DefaultSettings("w1")
	ws.StopLossPct = -0.5
	assert.Error(t, s.Set(context.Background(), ws))
}

func TestStore_GetUnknownWallet(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestStore_SetEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ws := domain.DefaultSettings("w1")
	ws.Enabled = true
	require.NoError(t, s.Set(ctx, ws))

	require.NoError(t, s.SetEnabled(ctx, "w1", false))
	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	// other fields untouched
	assert.InDelta(t, ws.MaxPositionSize, got.MaxPositionSize, 1e-9)

	assert.Error(t, s.SetEnabled(ctx, "ghost", true))
}

func TestStore_ListOrderedByWallet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, s.Set(ctx, domain.DefaultSettings(id)))
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].WalletID)
	assert.Equal(t, "bob", all[1].WalletID)
	assert.Equal(t, "charlie", all[2].WalletID)
}

func TestStore_PositionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := openTestPosition(t, s, "w1", "0xmarket", 0.50, 100)

	got, err := s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
	assert.InDelta(t, 100.0, got.Remaining, 1e-9)

	has, err := s.HasOpenPosition(ctx, "w1", "0xmarket")
	require.NoError(t, err)
	assert.True(t, has)

	exp, err := s.TotalExposure(ctx, "w1")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, exp, 1e-9)

	// partial sell keeps it open
	require.NoError(t, s.ReducePosition(ctx, p.ID, 40, 0.60, time.Now()))
	got, err = s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
	assert.InDelta(t, 60.0, got.Remaining, 1e-9)

	// full sell closes it
	require.NoError(t, s.ReducePosition(ctx, p.ID, 60, 0.60, time.Now()))
	got, err = s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOpen())
	require.NotNil(t, got.ClosedAt)

	count, err := s.OpenPositionCount(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ReducePositionOversell(t *testing.T) {
	s := newTestStore(t)
	p := openTestPosition(t, s, "w1", "0xmarket", 0.50, 100)

	err := s.ReducePosition(context.Background(), p.ID, 150, 0.60, time.Now())
	assert.Error(t, err)
}

func TestStore_OpenPositionsByCondition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	openTestPosition(t, s, "w1", "0xa", 0.50, 10)
	openTestPosition(t, s, "w2", "0xa", 0.40, 20)
	openTestPosition(t, s, "w1", "0xb", 0.30, 30)

	positions, err := s.OpenPositionsByCondition(ctx, "0xa")
	require.NoError(t, err)
	assert.Len(t, positions, 2)
	for _, p := range positions {
		assert.Equal(t, "0xa", p.ConditionID)
	}
}

func TestStore_CooldownExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SetCooldown(ctx, "w1", "0xa", now.Add(time.Hour)))

	active, err := s.CooldownActive(ctx, "w1", "0xa", now)
	require.NoError(t, err)
	assert.True(t, active)

	// expired marks are pruned on read
	active, err = s.CooldownActive(ctx, "w1", "0xa", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, active)

	// cleared rollback
	require.NoError(t, s.SetCooldown(ctx, "w1", "0xb", now.Add(time.Hour)))
	require.NoError(t, s.ClearCooldown(ctx, "w1", "0xb"))
	active, err = s.CooldownActive(ctx, "w1", "0xb", now)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStore_DailyRealizedPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	appendSell := func(at time.Time, pnl float64) {
		e := domain.NewLogEntry("w1", domain.ActionSell)
		e.RealizedPnL = pnl
		e.At = at
		require.NoError(t, s.AppendLog(ctx, e))
	}

	appendSell(day.Add(2*time.Hour), 5)
	appendSell(day.Add(20*time.Hour), -12)
	appendSell(day.Add(-time.Minute), 100)   // previous day
	appendSell(day.Add(25*time.Hour), 100)   // next day

	// buys never count
	buy := domain.NewLogEntry("w1", domain.ActionBuy)
	buy.RealizedPnL = 999
	buy.At = day.Add(3 * time.Hour)
	require.NoError(t, s.AppendLog(ctx, buy))

	pnl, err := s.DailyRealizedPnL(ctx, "w1", day.Add(12*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -7.0, pnl, 1e-9)
}

func TestStore_RecentLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		e := domain.NewLogEntry("w1", domain.ActionSkip)
		e.Reason = "skip: test"
		e.At = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.AppendLog(ctx, e))
	}
	other := domain.NewLogEntry("w2", domain.ActionBuy)
	require.NoError(t, s.AppendLog(ctx, other))

	entries, err := s.RecentLog(ctx, "w1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// newest first
	assert.True(t, entries[0].At.After(entries[1].At) || entries[0].At.Equal(entries[1].At))

	all, err := s.RecentLog(ctx, "", 50)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestStore_BreakerRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	b := domain.NewWalletBreaker("w1", 5, 30*time.Minute)
	b.ConsecutiveFailures = 3
	b.WindowStart = now
	require.NoError(t, s.SaveBreaker(ctx, b))

	b.Tripped = true
	b.TrippedReason = "order rejected"
	b.TrippedAt = now
	require.NoError(t, s.SaveBreaker(ctx, b))

	loaded, err := s.LoadBreakers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, "w1", got.WalletID)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.True(t, got.Tripped)
	assert.Equal(t, "order rejected", got.TrippedReason)
	assert.Equal(t, now.Unix(), got.TrippedAt.Unix())
}
