package ports

import (
	"context"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// SettingsStore holds per-wallet auto-trading configuration. Reads are
// frequent (one per evaluation, by contract — disabling must take effect
// immediately); writes come from the UI layer and the circuit breaker.
type SettingsStore interface {
	// Get returns the settings for walletID.
	Get(ctx context.Context, walletID string) (domain.WalletSettings, error)

	// Set validates and persists settings for s.WalletID.
	Set(ctx context.Context, s domain.WalletSettings) error

	// SetEnabled flips only the master flag. Used by the circuit breaker to
	// force a wallet off.
	SetEnabled(ctx context.Context, walletID string, enabled bool) error

	// List returns settings for every registered wallet.
	List(ctx context.Context) ([]domain.WalletSettings, error)
}
