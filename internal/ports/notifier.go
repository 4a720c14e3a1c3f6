package ports

import (
	"context"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// ActivityNotifier fans completed trade-log entries out to downstream
// listeners (console, UI, alerting). Delivery is at-least-once and happens
// only after the entry is persisted.
type ActivityNotifier interface {
	Publish(ctx context.Context, e domain.AutoTradeLogEntry)
}
