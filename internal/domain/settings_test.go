package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings_StartDisabled(t *testing.T) {
	s := DefaultSettings("w1")

	assert.Equal(t, "w1", s.WalletID)
	assert.False(t, s.Enabled)
	assert.False(t, s.AutoBuyEnabled)
	assert.NoError(t, s.Validate())
}

func TestWalletSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WalletSettings)
		ok     bool
	}{
		{"defaults", func(s *WalletSettings) {}, true},
		{"empty wallet id", func(s *WalletSettings) { s.WalletID = "" }, false},
		{"negative take profit", func(s *WalletSettings) { s.TakeProfitPct = -0.1 }, false},
		{"negative stop loss", func(s *WalletSettings) { s.StopLossPct = -0.1 }, false},
		{"negative hold hours", func(s *WalletSettings) { s.TimeExitHours = -1 }, false},
		{"exposure below position size", func(s *WalletSettings) {
			s.MaxPositionSize = 100
			s.MaxTotalExposure = 50
		}, false},
		{"negative max positions", func(s *WalletSettings) { s.MaxPositions = -1 }, false},
		{"negative daily loss", func(s *WalletSettings) { s.MaxDailyLoss = -5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings("w1")
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWalletSettings_HasStrategy(t *testing.T) {
	s := DefaultSettings("w1")
	s.Strategies = []StrategyTag{StrategyValue, StrategyMomentum}

	assert.True(t, s.HasStrategy(StrategyValue))
	assert.True(t, s.HasStrategy(StrategyMomentum))
	assert.False(t, s.HasStrategy(StrategyLongshot))

	// Unknown never trades, even if someone manages to store it
	s.Strategies = append(s.Strategies, StrategyUnknown)
	assert.False(t, s.HasStrategy(StrategyUnknown))
}

func TestParseStrategyTag(t *testing.T) {
	assert.Equal(t, StrategyValue, ParseStrategyTag("VALUE"))
	assert.Equal(t, StrategyResolution, ParseStrategyTag("RESOLUTION"))
	assert.Equal(t, StrategyUnknown, ParseStrategyTag("value"))
	assert.Equal(t, StrategyUnknown, ParseStrategyTag("ARBITRAGE"))
	assert.Equal(t, StrategyUnknown, ParseStrategyTag(""))
}

func TestWalletSettings_Cooldown(t *testing.T) {
	s := DefaultSettings("w1")
	s.CooldownMinutes = 90
	assert.Equal(t, 90*time.Minute, s.Cooldown())
}

func TestBuySize(t *testing.T) {
	// edge at the cap or above earns the full size
	assert.InDelta(t, 25.0, BuySize(25, 0.20), 1e-9)
	assert.InDelta(t, 25.0, BuySize(25, 0.50), 1e-9)

	// proportional below the cap
	assert.InDelta(t, 12.5, BuySize(25, 0.10), 1e-9)
	assert.InDelta(t, 6.25, BuySize(25, 0.05), 1e-9)

	// degenerate inputs
	assert.Zero(t, BuySize(25, 0))
	assert.Zero(t, BuySize(25, -0.1))
	assert.Zero(t, BuySize(0, 0.2))
}
