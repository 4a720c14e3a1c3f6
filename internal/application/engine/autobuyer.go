package engine

// autobuyer.go — the long-lived consumer of the opportunity-batch stream.
// Every (wallet, opportunity) pair runs an ordered checklist; the first
// failing check skips the pair. Wallets are evaluated independently in
// wallet-id order, each assuming unlimited counter-liquidity.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

// AutoBuyer evaluates opportunity batches and forwards approved buys to the
// executor.
type AutoBuyer struct {
	opps     ports.OpportunityStream
	settings ports.SettingsStore
	ledger   ports.RiskLedger
	creds    ports.CredentialStore
	exec     *Executor

	wg sync.WaitGroup
}

// NewAutoBuyer wires the opportunity filter.
func NewAutoBuyer(opps ports.OpportunityStream, settings ports.SettingsStore, ledger ports.RiskLedger, creds ports.CredentialStore, exec *Executor) *AutoBuyer {
	return &AutoBuyer{opps: opps, settings: settings, ledger: ledger, creds: creds, exec: exec}
}

// Run consumes the opportunity stream until ctx is cancelled or the stream
// closes, then drains in-flight executions.
func (b *AutoBuyer) Run(ctx context.Context) error {
	ch, cancel := b.opps.Subscribe()
	defer cancel()

	slog.Info("autobuyer: started")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("autobuyer: stopping", "reason", ctx.Err())
			return ctx.Err()
		case batch, ok := <-ch:
			if !ok {
				slog.Info("autobuyer: opportunity stream closed")
				return nil
			}
			b.handleBatch(ctx, batch)
		}
	}
}

// handleBatch evaluates every (wallet, opportunity) pair in the batch.
func (b *AutoBuyer) handleBatch(ctx context.Context, batch domain.OpportunityBatch) {
	wallets, err := b.settings.List(ctx)
	if err != nil {
		slog.Warn("autobuyer: settings list failed", "err", err)
		return
	}

	evaluated, approved := 0, 0
	for _, ws := range wallets {
		if !ws.Enabled || !ws.AutoBuyEnabled {
			continue
		}

		if _, err := b.creds.Resolve(ctx, ws.WalletID); err != nil {
			if errors.Is(err, ports.ErrNoCredentials) {
				slog.Debug("autobuyer: wallet has no credentials, skipped", "wallet", ws.WalletID)
			} else {
				slog.Warn("autobuyer: credential resolve failed", "wallet", ws.WalletID, "err", err)
			}
			continue
		}

		for _, opp := range batch.Opportunities {
			evaluated++
			skip, err := b.screen(ctx, ws, opp)
			if err != nil {
				slog.Warn("autobuyer: screen failed",
					"wallet", ws.WalletID, "condition", opp.ConditionID, "err", err)
				continue
			}
			if skip != "" {
				b.logSkip(ctx, ws, opp, skip)
				continue
			}

			size := domain.BuySize(ws.MaxPositionSize, opp.Edge)
			if size <= 0 {
				continue
			}

			// Speculative cooldown mark: a second opportunity for the same
			// market in this batch must fail the cooldown check.
			until := time.Now().UTC().Add(ws.Cooldown())
			if err := b.ledger.SetCooldown(ctx, ws.WalletID, opp.ConditionID, until); err != nil {
				slog.Warn("autobuyer: cooldown mark failed",
					"wallet", ws.WalletID, "condition", opp.ConditionID, "err", err)
				continue
			}

			approved++
			ws, opp := ws, opp
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				if err := b.exec.ExecuteBuy(ctx, ws, opp, batch.Seq, size); err != nil {
					slog.Warn("autobuyer: buy execution failed",
						"wallet", ws.WalletID, "condition", opp.ConditionID, "err", err)
				}
			}()
		}
	}

	slog.Debug("autobuyer: batch done",
		"seq", batch.Seq,
		"opportunities", len(batch.Opportunities),
		"pairs_evaluated", evaluated,
		"approved", approved,
	)
}

// screen runs the ordered entry checklist. Returns the first failing check's
// reason, or "" when all eight pass.
func (b *AutoBuyer) screen(ctx context.Context, ws domain.WalletSettings, opp domain.Opportunity) (string, error) {
	// 1. strategy enabled for this wallet
	if !ws.HasStrategy(opp.Strategy) {
		return fmt.Sprintf("strategy %s not enabled", opp.Strategy), nil
	}

	// 2. baseline screening (externally computed)
	if !opp.MeetsBaseline {
		return "fails baseline criteria", nil
	}

	// 3. minimum edge
	if opp.Edge < ws.MinEdge {
		return fmt.Sprintf("edge %.1f%% < min %.1f%%", opp.Edge*100, ws.MinEdge*100), nil
	}

	// 4. not already holding this market
	holding, err := b.ledger.HasOpenPosition(ctx, ws.WalletID, opp.ConditionID)
	if err != nil {
		return "", err
	}
	if holding {
		return "already holds position on market", nil
	}

	// 5. position count budget
	count, err := b.ledger.OpenPositionCount(ctx, ws.WalletID)
	if err != nil {
		return "", err
	}
	if count >= ws.MaxPositions {
		return fmt.Sprintf("open positions %d >= max %d", count, ws.MaxPositions), nil
	}

	// 6. exposure budget
	exposure, err := b.ledger.TotalExposure(ctx, ws.WalletID)
	if err != nil {
		return "", err
	}
	if exposure >= ws.MaxTotalExposure {
		return fmt.Sprintf("exposure %.2f >= max %.2f", exposure, ws.MaxTotalExposure), nil
	}

	// 7. cooldown
	active, err := b.ledger.CooldownActive(ctx, ws.WalletID, opp.ConditionID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if active {
		return "cooldown active for market", nil
	}

	// 8. daily loss limit
	pnl, err := b.ledger.DailyRealizedPnL(ctx, ws.WalletID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if pnl <= -ws.MaxDailyLoss {
		return fmt.Sprintf("daily loss %.2f at limit %.2f", pnl, ws.MaxDailyLoss), nil
	}

	return "", nil
}

// logSkip records the skip decision for the audit trail.
func (b *AutoBuyer) logSkip(ctx context.Context, ws domain.WalletSettings, opp domain.Opportunity, reason string) {
	entry := domain.NewLogEntry(ws.WalletID, domain.ActionSkip)
	entry.ConditionID = opp.ConditionID
	entry.Question = opp.Question
	entry.Side = opp.Side
	entry.Price = opp.Price
	entry.Reason = "skip: " + reason
	if err := b.ledger.AppendLog(ctx, entry); err != nil {
		slog.Warn("autobuyer: skip log failed", "wallet", ws.WalletID, "err", err)
	}
}
