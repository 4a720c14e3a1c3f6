package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polypilot/internal/ports"
)

// WalletStatus is the operational snapshot for one wallet: a read-only
// projection of the risk ledger, not part of the decision core.
type WalletStatus struct {
	WalletID       string  `json:"wallet_id"`
	Enabled        bool    `json:"enabled"`
	AutoBuyEnabled bool    `json:"auto_buy_enabled"`
	OpenPositions  int     `json:"open_positions"`
	TotalExposure  float64 `json:"total_exposure"`
	DailyPnL       float64 `json:"daily_pnl"`
	BreakerTripped bool    `json:"breaker_tripped"`
}

// Status answers operational queries across all wallets.
type Status struct {
	settings ports.SettingsStore
	ledger   ports.RiskLedger
	breakers *BreakerBoard
}

// NewStatus wires the status service.
func NewStatus(settings ports.SettingsStore, ledger ports.RiskLedger, breakers *BreakerBoard) *Status {
	return &Status{settings: settings, ledger: ledger, breakers: breakers}
}

// Wallets returns one status row per registered wallet, ordered by wallet id.
func (s *Status) Wallets(ctx context.Context) ([]WalletStatus, error) {
	all, err := s.settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: list settings: %w", err)
	}

	now := time.Now().UTC()
	out := make([]WalletStatus, 0, len(all))
	for _, ws := range all {
		count, err := s.ledger.OpenPositionCount(ctx, ws.WalletID)
		if err != nil {
			return nil, fmt.Errorf("status: %s: %w", ws.WalletID, err)
		}
		exposure, err := s.ledger.TotalExposure(ctx, ws.WalletID)
		if err != nil {
			return nil, fmt.Errorf("status: %s: %w", ws.WalletID, err)
		}
		pnl, err := s.ledger.DailyRealizedPnL(ctx, ws.WalletID, now)
		if err != nil {
			return nil, fmt.Errorf("status: %s: %w", ws.WalletID, err)
		}

		out = append(out, WalletStatus{
			WalletID:       ws.WalletID,
			Enabled:        ws.Enabled,
			AutoBuyEnabled: ws.AutoBuyEnabled,
			OpenPositions:  count,
			TotalExposure:  exposure,
			DailyPnL:       pnl,
			BreakerTripped: s.breakers.Tripped(ws.WalletID),
		})
	}
	return out, nil
}
