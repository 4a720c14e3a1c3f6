package domain

import (
	"fmt"
	"time"
)

// TriggerKind names the exit rule that fired.
type TriggerKind string

const (
	TriggerTakeProfit   TriggerKind = "TAKE_PROFIT"
	TriggerStopLoss     TriggerKind = "STOP_LOSS"
	TriggerTrailingStop TriggerKind = "TRAILING_STOP"
	TriggerTimeExit     TriggerKind = "TIME_EXIT"
)

// ExitTrigger is the decision to close a position, carrying the price and
// magnitude that caused it. At most one fires per evaluation.
type ExitTrigger struct {
	Kind      TriggerKind
	Price     float64
	Magnitude float64 // signed ratio (or hours held for TIME_EXIT)
	Reason    string
}

// PositionPeak is the running high-water price of a position, maintained only
// while trailing-stop is enabled for the owning wallet.
type PositionPeak struct {
	PositionID string
	Peak       float64
	At         time.Time
}

// EvaluateExit applies the wallet's exit rules to a position at the current
// price and returns the single highest-priority trigger, or nil.
//
// Priority is fixed: take-profit, stop-loss, trailing-stop, time-exit. Only
// one rule can fire per tick even when several thresholds are breached at
// once. Percentages are signed ratios relative to entry price; NewPosition
// guarantees EntryPrice > 0.
func EvaluateExit(pos Position, s WalletSettings, price float64, peak *PositionPeak, now time.Time) *ExitTrigger {
	move := (price - pos.EntryPrice) / pos.EntryPrice

	if s.TakeProfitEnabled && move >= s.TakeProfitPct {
		return &ExitTrigger{
			Kind:      TriggerTakeProfit,
			Price:     price,
			Magnitude: move,
			Reason:    fmt.Sprintf("take profit: %+.1f%% >= %.1f%%", move*100, s.TakeProfitPct*100),
		}
	}

	if s.StopLossEnabled && move <= -s.StopLossPct {
		return &ExitTrigger{
			Kind:      TriggerStopLoss,
			Price:     price,
			Magnitude: move,
			Reason:    fmt.Sprintf("stop loss: %+.1f%% <= -%.1f%%", move*100, s.StopLossPct*100),
		}
	}

	if s.TrailingStopEnabled && peak != nil && peak.Peak > 0 {
		drop := (peak.Peak - price) / peak.Peak
		if drop >= s.TrailingStopPct {
			return &ExitTrigger{
				Kind:      TriggerTrailingStop,
				Price:     price,
				Magnitude: drop,
				Reason:    fmt.Sprintf("trailing stop: -%.1f%% from peak %.3f", drop*100, peak.Peak),
			}
		}
	}

	if s.TimeExitEnabled {
		held := pos.HoldTime(now).Hours()
		if held >= s.TimeExitHours {
			return &ExitTrigger{
				Kind:      TriggerTimeExit,
				Price:     price,
				Magnitude: held,
				Reason:    fmt.Sprintf("time exit: held %.1fh >= %.1fh", held, s.TimeExitHours),
			}
		}
	}

	return nil
}
