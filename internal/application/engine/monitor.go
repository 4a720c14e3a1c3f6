package engine

// monitor.go — the long-lived consumer of the price-update stream. Each tick
// fans out to every open position on that instrument; trigger handling is
// dispatched per position so one wallet's slow order submission never delays
// evaluation of another wallet's positions on the same tick.

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

// Monitor watches prices and fires exit triggers into the executor.
type Monitor struct {
	prices   ports.PriceStream
	settings ports.SettingsStore
	ledger   ports.RiskLedger
	peaks    *PeakTracker
	exec     *Executor

	wg sync.WaitGroup
}

// NewMonitor wires the position monitor.
func NewMonitor(prices ports.PriceStream, settings ports.SettingsStore, ledger ports.RiskLedger, peaks *PeakTracker, exec *Executor) *Monitor {
	return &Monitor{prices: prices, settings: settings, ledger: ledger, peaks: peaks, exec: exec}
}

// Run consumes the price stream until ctx is cancelled or the stream closes,
// then drains in-flight executions.
func (m *Monitor) Run(ctx context.Context) error {
	ch, cancel := m.prices.Subscribe()
	defer cancel()

	slog.Info("monitor: started")
	defer m.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopping", "reason", ctx.Err())
			return ctx.Err()
		case upd, ok := <-ch:
			if !ok {
				slog.Info("monitor: price stream closed")
				return nil
			}
			m.handleTick(ctx, upd)
		}
	}
}

// handleTick evaluates every open position on the updated instrument.
func (m *Monitor) handleTick(ctx context.Context, upd domain.PriceUpdate) {
	if upd.Price <= 0 {
		return
	}

	positions, err := m.ledger.OpenPositionsByCondition(ctx, upd.ConditionID)
	if err != nil {
		slog.Warn("monitor: position lookup failed", "condition", upd.ConditionID, "err", err)
		return
	}

	for _, pos := range positions {
		// Ticks are per outcome token; the other side of the market has its
		// own tick.
		if upd.TokenID != "" && pos.TokenID != "" && pos.TokenID != upd.TokenID {
			continue
		}

		// Fresh settings read on every tick: disabling must take effect
		// immediately.
		ws, err := m.settings.Get(ctx, pos.WalletID)
		if err != nil {
			slog.Warn("monitor: settings read failed", "wallet", pos.WalletID, "err", err)
			continue
		}
		if !ws.Enabled {
			continue
		}

		var peak *domain.PositionPeak
		if ws.TrailingStopEnabled {
			p := m.peaks.Update(pos.ID, upd.Price, upd.At)
			peak = &p
		}

		trig := domain.EvaluateExit(pos, ws, upd.Price, peak, upd.At)
		if trig == nil {
			continue
		}

		slog.Debug("monitor: trigger fired",
			"wallet", pos.WalletID, "position", pos.ID, "kind", trig.Kind, "price", trig.Price)

		pos, trigCopy := pos, *trig
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.exec.ExecuteSell(ctx, pos, trigCopy); err != nil {
				slog.Warn("monitor: sell execution failed",
					"wallet", pos.WalletID, "position", pos.ID, "err", err)
			}
		}()
	}
}
