package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

// BreakerBoard tracks one circuit breaker per wallet and persists state so
// failure streaks survive restarts.
type BreakerBoard struct {
	ledger      ports.RiskLedger
	maxFailures int
	window      time.Duration

	mu       sync.Mutex
	breakers map[string]*domain.WalletBreaker
}

// NewBreakerBoard creates a board tripping after maxFailures consecutive
// failures inside window.
func NewBreakerBoard(ledger ports.RiskLedger, maxFailures int, window time.Duration) *BreakerBoard {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &BreakerBoard{
		ledger:      ledger,
		maxFailures: maxFailures,
		window:      window,
		breakers:    make(map[string]*domain.WalletBreaker),
	}
}

// Restore loads persisted breaker state, overriding limits with the board's
// runtime configuration.
func (bb *BreakerBoard) Restore(ctx context.Context) error {
	saved, err := bb.ledger.LoadBreakers(ctx)
	if err != nil {
		return err
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	for _, b := range saved {
		b := b
		b.MaxFailures = bb.maxFailures
		b.Window = bb.window
		bb.breakers[b.WalletID] = &b
	}
	return nil
}

// Failure records a permanent or unresolved failure and reports whether the
// wallet's breaker tripped on this call.
func (bb *BreakerBoard) Failure(ctx context.Context, walletID, reason string) bool {
	bb.mu.Lock()
	b := bb.get(walletID)
	tripped := b.RecordFailure(reason, time.Now().UTC())
	snapshot := *b
	bb.mu.Unlock()

	bb.save(ctx, snapshot)
	return tripped
}

// Success resets the wallet's failure streak.
func (bb *BreakerBoard) Success(ctx context.Context, walletID string) {
	bb.mu.Lock()
	b := bb.get(walletID)
	if b.ConsecutiveFailures == 0 && !b.Tripped {
		bb.mu.Unlock()
		return
	}
	b.RecordSuccess()
	snapshot := *b
	bb.mu.Unlock()

	bb.save(ctx, snapshot)
}

// Tripped reports whether a wallet is currently suspended by its breaker.
func (bb *BreakerBoard) Tripped(walletID string) bool {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	b, ok := bb.breakers[walletID]
	return ok && b.Tripped
}

// Reset clears a wallet's breaker after manual re-enable.
func (bb *BreakerBoard) Reset(ctx context.Context, walletID string) {
	bb.mu.Lock()
	b := domain.NewWalletBreaker(walletID, bb.maxFailures, bb.window)
	bb.breakers[walletID] = &b
	snapshot := b
	bb.mu.Unlock()

	bb.save(ctx, snapshot)
}

// get returns the breaker for walletID, creating it if needed. Caller holds
// bb.mu.
func (bb *BreakerBoard) get(walletID string) *domain.WalletBreaker {
	b, ok := bb.breakers[walletID]
	if !ok {
		nb := domain.NewWalletBreaker(walletID, bb.maxFailures, bb.window)
		b = &nb
		bb.breakers[walletID] = b
	}
	return b
}

func (bb *BreakerBoard) save(ctx context.Context, b domain.WalletBreaker) {
	if err := bb.ledger.SaveBreaker(ctx, b); err != nil {
		slog.Warn("breaker: persist failed", "wallet", b.WalletID, "err", err)
	}
}
