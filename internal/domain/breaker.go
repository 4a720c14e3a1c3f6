package domain

import "time"

// WalletBreaker suspends a wallet's auto-trading after repeated permanent or
// unresolved failures inside a rolling window. Tripping is fatal for the
// wallet (master flag forced off) until manually re-enabled; state is
// persisted so streaks survive restarts.
type WalletBreaker struct {
	WalletID            string
	ConsecutiveFailures int
	WindowStart         time.Time
	Tripped             bool
	TrippedReason       string
	TrippedAt           time.Time

	MaxFailures int
	Window      time.Duration
}

// NewWalletBreaker creates an untripped breaker for walletID.
func NewWalletBreaker(walletID string, maxFailures int, window time.Duration) WalletBreaker {
	return WalletBreaker{WalletID: walletID, MaxFailures: maxFailures, Window: window}
}

// RecordFailure counts a permanent or unresolved failure and reports whether
// the breaker tripped on this call. Failures outside the window restart the
// streak.
func (b *WalletBreaker) RecordFailure(reason string, now time.Time) bool {
	if b.Tripped {
		return false
	}
	if b.ConsecutiveFailures == 0 || now.Sub(b.WindowStart) > b.Window {
		b.ConsecutiveFailures = 0
		b.WindowStart = now
	}
	b.ConsecutiveFailures++
	if b.ConsecutiveFailures >= b.MaxFailures {
		b.Tripped = true
		b.TrippedReason = reason
		b.TrippedAt = now
		return true
	}
	return false
}

// RecordSuccess resets the failure streak.
func (b *WalletBreaker) RecordSuccess() {
	if !b.Tripped {
		b.ConsecutiveFailures = 0
	}
}
