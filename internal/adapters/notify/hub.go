package notify

// hub.go — ports.ActivityNotifier as a pure fan-out: every published entry
// is broadcast to all subscribers (console, status API, alerting). Not part
// of the decision logic.

import (
	"context"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/stream"
)

// ActivityHub broadcasts trade-log entries at-least-once to subscribers.
type ActivityHub struct {
	hub *stream.Hub[domain.AutoTradeLogEntry]
}

// NewActivityHub creates the hub.
func NewActivityHub() *ActivityHub {
	return &ActivityHub{hub: stream.NewHub[domain.AutoTradeLogEntry](128)}
}

// Publish broadcasts one entry. Called by the executor only after the entry
// is persisted.
func (h *ActivityHub) Publish(_ context.Context, e domain.AutoTradeLogEntry) {
	h.hub.Publish(e)
}

// Subscribe attaches a listener.
func (h *ActivityHub) Subscribe() (<-chan domain.AutoTradeLogEntry, func()) {
	return h.hub.Subscribe()
}

// Close detaches all listeners.
func (h *ActivityHub) Close() {
	h.hub.Close()
}
