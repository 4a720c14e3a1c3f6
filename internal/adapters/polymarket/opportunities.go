package polymarket

// opportunities.go — ports.OpportunityStream from the external scorer
// service. The scorer computes edges and baseline screening; this adapter
// only polls, maps, and rebroadcasts batches.

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/stream"
)

// scoredOpportunity is the scorer's wire format.
type scoredOpportunity struct {
	ConditionID   string  `json:"condition_id"`
	TokenID       string  `json:"token_id"`
	Question      string  `json:"question"`
	Strategy      string  `json:"strategy"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Edge          float64 `json:"edge"`
	HoursToClose  float64 `json:"hours_to_close"`
	MeetsBaseline bool    `json:"meets_baseline"`
}

// ScorerFeed polls the scorer endpoint and publishes opportunity batches
// with a monotonically increasing sequence number.
type ScorerFeed struct {
	client   *Client
	url      string
	interval time.Duration
	hub      *stream.Hub[domain.OpportunityBatch]
	seq      int64
}

// NewScorerFeed creates the feed polling url every interval.
func NewScorerFeed(client *Client, url string, interval time.Duration) *ScorerFeed {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ScorerFeed{
		client:   client,
		url:      url,
		interval: interval,
		hub:      stream.NewHub[domain.OpportunityBatch](16),
	}
}

// Subscribe attaches a new consumer to the batch broadcast.
func (f *ScorerFeed) Subscribe() (<-chan domain.OpportunityBatch, func()) {
	return f.hub.Subscribe()
}

// Run polls until ctx is cancelled.
func (f *ScorerFeed) Run(ctx context.Context) error {
	defer f.hub.Close()

	t := time.NewTicker(f.interval)
	defer t.Stop()

	f.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			f.poll(ctx)
		}
	}
}

func (f *ScorerFeed) poll(ctx context.Context) {
	var scored []scoredOpportunity
	if err := f.client.get(ctx, f.url, &scored); err != nil {
		slog.Warn("scorerfeed: poll failed", "err", err)
		return
	}
	if len(scored) == 0 {
		return
	}

	opps := make([]domain.Opportunity, 0, len(scored))
	for _, s := range scored {
		side := domain.SideYes
		if s.Side == string(domain.SideNo) {
			side = domain.SideNo
		}
		opps = append(opps, domain.Opportunity{
			ConditionID:   s.ConditionID,
			TokenID:       s.TokenID,
			Question:      s.Question,
			Strategy:      domain.ParseStrategyTag(s.Strategy),
			Side:          side,
			Price:         s.Price,
			Edge:          s.Edge,
			HoursToClose:  s.HoursToClose,
			MeetsBaseline: s.MeetsBaseline,
		})
	}

	f.seq++
	f.hub.Publish(domain.OpportunityBatch{
		Seq:           f.seq,
		Opportunities: opps,
		ReceivedAt:    time.Now().UTC(),
	})
	slog.Debug("scorerfeed: batch published", "seq", f.seq, "opportunities", len(opps))
}
