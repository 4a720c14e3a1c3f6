package ports

import "github.com/alejandrodnm/polypilot/internal/domain"

// PriceStream delivers price ticks to any number of independent subscribers.
// Each subscriber owns its channel; closing the returned cancel func detaches
// it without affecting others.
type PriceStream interface {
	Subscribe() (<-chan domain.PriceUpdate, func())
}

// OpportunityStream delivers scored opportunity batches. Batches may repeat
// already-seen opportunities; consumers must treat them idempotently.
type OpportunityStream interface {
	Subscribe() (<-chan domain.OpportunityBatch, func())
}
