package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// RiskLedger persists positions, cooldowns, realized P&L, breaker state, and
// the append-only trade log. It is the single source of truth both decision
// paths consult; writes are scoped to one wallet and never block reads for
// other wallets.
type RiskLedger interface {
	// Positions
	CreatePosition(ctx context.Context, p domain.Position) error
	GetPosition(ctx context.Context, positionID string) (domain.Position, error)
	OpenPositionsByCondition(ctx context.Context, conditionID string) ([]domain.Position, error)
	OpenPositions(ctx context.Context, walletID string) ([]domain.Position, error)
	OpenPositionCount(ctx context.Context, walletID string) (int, error)
	TotalExposure(ctx context.Context, walletID string) (float64, error)
	HasOpenPosition(ctx context.Context, walletID, conditionID string) (bool, error)

	// ReducePosition applies a partial or full sell: remaining shares shrink
	// by soldShares and the position closes when nothing remains.
	ReducePosition(ctx context.Context, positionID string, soldShares, exitPrice float64, closedAt time.Time) error

	// Daily P&L (UTC day of `day`), summed from sell log entries.
	DailyRealizedPnL(ctx context.Context, walletID string, day time.Time) (float64, error)

	// Cooldowns
	CooldownActive(ctx context.Context, walletID, conditionID string, now time.Time) (bool, error)
	SetCooldown(ctx context.Context, walletID, conditionID string, until time.Time) error
	ClearCooldown(ctx context.Context, walletID, conditionID string) error

	// Trade log
	AppendLog(ctx context.Context, e domain.AutoTradeLogEntry) error
	RecentLog(ctx context.Context, walletID string, limit int) ([]domain.AutoTradeLogEntry, error)

	// Circuit breaker persistence
	SaveBreaker(ctx context.Context, b domain.WalletBreaker) error
	LoadBreakers(ctx context.Context) ([]domain.WalletBreaker, error)

	Close() error
}
