package engine

import (
	"sync"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// PeakTracker owns the running high-water price per open position, consulted
// only by the trailing-stop rule. Entries are created lazily on the first
// tick after trailing-stop is enabled for the owning wallet and discarded
// when the position closes.
type PeakTracker struct {
	mu    sync.RWMutex
	peaks map[string]domain.PositionPeak
}

// NewPeakTracker creates an empty tracker.
func NewPeakTracker() *PeakTracker {
	return &PeakTracker{peaks: make(map[string]domain.PositionPeak)}
}

// Update raises the stored peak to max(existing, price), creating the record
// on first call, and returns the current peak. Never decreases.
func (t *PeakTracker) Update(positionID string, price float64, at time.Time) domain.PositionPeak {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peaks[positionID]
	if !ok || price > p.Peak {
		p = domain.PositionPeak{PositionID: positionID, Peak: price, At: at}
		t.peaks[positionID] = p
	}
	return p
}

// Get returns the tracked peak for a position, if any.
func (t *PeakTracker) Get(positionID string) (domain.PositionPeak, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peaks[positionID]
	return p, ok
}

// Drop discards peak state when a position closes by any exit path.
func (t *PeakTracker) Drop(positionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peaks, positionID)
}

// Len returns the number of tracked positions.
func (t *PeakTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peaks)
}
