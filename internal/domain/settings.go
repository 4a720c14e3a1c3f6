package domain

import (
	"fmt"
	"time"
)

// StrategyTag identifies the scoring strategy that produced an opportunity.
// Unknown tags from the scorer map to StrategyUnknown and are never traded.
type StrategyTag string

const (
	StrategyValue      StrategyTag = "VALUE"      // mispriced vs. model probability
	StrategyMomentum   StrategyTag = "MOMENTUM"   // price trending with volume
	StrategyLongshot   StrategyTag = "LONGSHOT"   // cheap tail with positive edge
	StrategyResolution StrategyTag = "RESOLUTION" // near-resolution convergence
	StrategyUnknown    StrategyTag = "UNKNOWN"
)

// KnownStrategies lists every tradeable strategy tag.
var KnownStrategies = []StrategyTag{
	StrategyValue, StrategyMomentum, StrategyLongshot, StrategyResolution,
}

// ParseStrategyTag maps a scorer-provided string to a closed tag.
func ParseStrategyTag(s string) StrategyTag {
	for _, tag := range KnownStrategies {
		if string(tag) == s {
			return tag
		}
	}
	return StrategyUnknown
}

// WalletSettings is the per-wallet auto-trading configuration.
// One record per wallet, created with defaults on wallet registration and
// soft-disabled via Enabled rather than deleted.
type WalletSettings struct {
	WalletID string
	Enabled  bool // master switch, checked fresh on every evaluation

	// Entry policy
	AutoBuyEnabled   bool
	MaxPositionSize  float64 // USDC per trade
	MaxTotalExposure float64 // USDC across all open positions
	MinEdge          float64 // minimum scorer edge (signed ratio)
	Strategies       []StrategyTag

	// Exit rules. Percentages are signed ratios relative to entry price.
	TakeProfitEnabled   bool
	TakeProfitPct       float64
	StopLossEnabled     bool
	StopLossPct         float64
	TrailingStopEnabled bool
	TrailingStopPct     float64
	TimeExitEnabled     bool
	TimeExitHours       float64

	// Risk budget
	MaxPositions    int
	CooldownMinutes int
	MaxDailyLoss    float64 // USDC, positive number

	UpdatedAt time.Time
}

// DefaultSettings returns the configuration a freshly registered wallet gets:
// everything off, conservative thresholds preloaded.
func DefaultSettings(walletID string) WalletSettings {
	return WalletSettings{
		WalletID:         walletID,
		Enabled:          false,
		AutoBuyEnabled:   false,
		MaxPositionSize:  25,
		MaxTotalExposure: 250,
		MinEdge:          0.05,
		Strategies:       []StrategyTag{StrategyValue},

		TakeProfitEnabled:   true,
		TakeProfitPct:       0.20,
		StopLossEnabled:     true,
		StopLossPct:         0.15,
		TrailingStopEnabled: false,
		TrailingStopPct:     0.10,
		TimeExitEnabled:     false,
		TimeExitHours:       72,

		MaxPositions:    10,
		CooldownMinutes: 60,
		MaxDailyLoss:    50,
	}
}

// Validate rejects malformed settings at the write boundary so bad values
// never reach the evaluators.
func (s WalletSettings) Validate() error {
	if s.WalletID == "" {
		return fmt.Errorf("settings: empty wallet id")
	}
	for name, pct := range map[string]float64{
		"take_profit":   s.TakeProfitPct,
		"stop_loss":     s.StopLossPct,
		"trailing_stop": s.TrailingStopPct,
	} {
		if pct < 0 {
			return fmt.Errorf("settings: %s percent must be non-negative, got %.4f", name, pct)
		}
	}
	if s.TimeExitHours < 0 {
		return fmt.Errorf("settings: time_exit_hours must be non-negative, got %.2f", s.TimeExitHours)
	}
	if s.MaxPositionSize < 0 || s.MaxTotalExposure < 0 {
		return fmt.Errorf("settings: position size and exposure must be non-negative")
	}
	if s.MaxTotalExposure < s.MaxPositionSize {
		return fmt.Errorf("settings: max_total_exposure %.2f < max_position_size %.2f",
			s.MaxTotalExposure, s.MaxPositionSize)
	}
	if s.MaxPositions < 0 {
		return fmt.Errorf("settings: max_positions must be non-negative, got %d", s.MaxPositions)
	}
	if s.CooldownMinutes < 0 {
		return fmt.Errorf("settings: cooldown_minutes must be non-negative, got %d", s.CooldownMinutes)
	}
	if s.MaxDailyLoss < 0 {
		return fmt.Errorf("settings: max_daily_loss must be non-negative, got %.2f", s.MaxDailyLoss)
	}
	return nil
}

// HasStrategy reports whether the wallet trades opportunities from tag.
func (s WalletSettings) HasStrategy(tag StrategyTag) bool {
	if tag == StrategyUnknown {
		return false
	}
	for _, t := range s.Strategies {
		if t == tag {
			return true
		}
	}
	return false
}

// Cooldown returns the per-market buy cooldown as a duration.
func (s WalletSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}
