package engine

// executor.go — the single synchronization point turning a decision into a
// persisted, externally effective trade.
//
// Guarantees:
//   - per-entity serialization: one execution at a time per position (sells)
//     and per wallet+market pair (buys), enforced by a keyed lock held from
//     trigger confirmation to log publication, released on all paths;
//   - idempotency: each decision carries a deterministic dedupe key; a key
//     already in flight or completed in this process lifetime is refused;
//   - classified failure handling: transient errors retried with bounded
//     backoff, permanent errors abandoned, ambiguous outcomes reconciled
//     against the venue before any retry of the same key.

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

type dedupeStatus int

const (
	dedupeInFlight dedupeStatus = iota
	dedupeDone
	dedupeReconcile // ambiguous outcome, must query venue before retry
)

// keyedMutex provides one mutex per entity key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Executor drives both decision paths through one idempotent execution path.
type Executor struct {
	settings ports.SettingsStore
	ledger   ports.RiskLedger
	venue    ports.OrderVenue
	creds    ports.CredentialStore
	notifier ports.ActivityNotifier
	peaks    *PeakTracker
	breakers *BreakerBoard

	policy        RetryPolicy
	submitTimeout time.Duration

	entities keyedMutex

	mu     sync.Mutex
	dedupe map[string]dedupeStatus
}

// NewExecutor wires the executor. submitTimeout bounds every order
// submission to the venue.
func NewExecutor(
	settings ports.SettingsStore,
	ledger ports.RiskLedger,
	venue ports.OrderVenue,
	creds ports.CredentialStore,
	notifier ports.ActivityNotifier,
	peaks *PeakTracker,
	breakers *BreakerBoard,
	policy RetryPolicy,
	submitTimeout time.Duration,
) *Executor {
	if submitTimeout <= 0 {
		submitTimeout = 15 * time.Second
	}
	return &Executor{
		settings:      settings,
		ledger:        ledger,
		venue:         venue,
		creds:         creds,
		notifier:      notifier,
		peaks:         peaks,
		breakers:      breakers,
		policy:        policy,
		submitTimeout: submitTimeout,
		entities:      keyedMutex{locks: make(map[string]*sync.Mutex)},
		dedupe:        make(map[string]dedupeStatus),
	}
}

// SellKey is the deterministic dedupe key for an exit decision.
func SellKey(walletID, positionID string, kind domain.TriggerKind) string {
	return fmt.Sprintf("sell:%s:%s:%s", walletID, positionID, kind)
}

// BuyKey is the deterministic dedupe key for an entry decision.
func BuyKey(walletID, conditionID string, batchSeq int64) string {
	return fmt.Sprintf("buy:%s:%s:%d", walletID, conditionID, batchSeq)
}

// claim marks key in flight. Returns false when the key is already in flight
// or done; reconcile=true means an earlier attempt ended ambiguously and the
// venue must be consulted first.
func (e *Executor) claim(key string) (ok, reconcile bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, exists := e.dedupe[key]
	if !exists {
		e.dedupe[key] = dedupeInFlight
		return true, false
	}
	if st == dedupeReconcile {
		e.dedupe[key] = dedupeInFlight
		return true, true
	}
	return false, false
}

func (e *Executor) settle(key string, st dedupeStatus) {
	e.mu.Lock()
	e.dedupe[key] = st
	e.mu.Unlock()
}

func (e *Executor) release(key string) {
	e.mu.Lock()
	delete(e.dedupe, key)
	e.mu.Unlock()
}

// ExecuteSell runs the exit path for a fired trigger: resolve remaining
// shares, obtain the best bid, submit, apply the partial/full close, append
// and publish the log entry.
func (e *Executor) ExecuteSell(ctx context.Context, pos domain.Position, trig domain.ExitTrigger) error {
	unlock := e.entities.lock("pos:" + pos.ID)
	defer unlock()

	key := SellKey(pos.WalletID, pos.ID, trig.Kind)
	ok, reconcile := e.claim(key)
	if !ok {
		slog.Debug("executor: duplicate sell decision refused", "key", key)
		return nil
	}

	// Fresh state: the position may have been reduced or closed since the
	// trigger fired.
	fresh, err := e.ledger.GetPosition(ctx, pos.ID)
	if err != nil {
		e.release(key)
		return fmt.Errorf("executor: sell %s: %w", pos.ID, err)
	}
	if !fresh.IsOpen() {
		e.settle(key, dedupeDone)
		slog.Debug("executor: position already closed", "position", pos.ID)
		return nil
	}

	if _, err := e.creds.Resolve(ctx, pos.WalletID); err != nil {
		e.release(key)
		if errors.Is(err, ports.ErrNoCredentials) {
			e.logSkip(ctx, fresh.WalletID, fresh, "no credentials for wallet")
			return nil
		}
		return fmt.Errorf("executor: sell %s: resolve creds: %w", pos.ID, err)
	}

	req := ports.OrderRequest{
		ClientID:    key,
		WalletID:    fresh.WalletID,
		ConditionID: fresh.ConditionID,
		TokenID:     fresh.TokenID,
		Action:      ports.OrderSell,
		Side:        fresh.Side,
		Size:        fresh.Remaining,
	}

	res, err := e.submit(ctx, req, reconcile)
	if err != nil {
		return e.fail(ctx, key, fresh.WalletID, fresh, trig.Reason, err)
	}

	soldShares := res.FilledSize
	if soldShares <= 0 || soldShares > fresh.Remaining {
		soldShares = fresh.Remaining
	}
	pnl := (res.FilledPrice - fresh.EntryPrice) * soldShares

	now := time.Now().UTC()
	if err := e.ledger.ReducePosition(ctx, fresh.ID, soldShares, res.FilledPrice, now); err != nil {
		// Order is live but local state lags; keep the key done so the sell
		// is never duplicated, and surface the inconsistency loudly.
		e.settle(key, dedupeDone)
		slog.Error("executor: order filled but position update failed",
			"position", fresh.ID, "err", err)
		return fmt.Errorf("executor: record sell %s: %w", fresh.ID, err)
	}

	if soldShares >= fresh.Remaining {
		e.peaks.Drop(fresh.ID)
	}

	entry := domain.NewLogEntry(fresh.WalletID, domain.ActionSell)
	entry.PositionID = fresh.ID
	entry.ConditionID = fresh.ConditionID
	entry.Question = fresh.Question
	entry.Side = fresh.Side
	entry.Price = res.FilledPrice
	entry.Size = soldShares
	entry.RealizedPnL = pnl
	entry.Reason = trig.Reason
	e.record(ctx, entry)

	e.breakers.Success(ctx, fresh.WalletID)
	e.settle(key, dedupeDone)

	slog.Info("executor: sold",
		"wallet", fresh.WalletID,
		"position", fresh.ID,
		"trigger", trig.Kind,
		"price", res.FilledPrice,
		"shares", soldShares,
		"pnl", fmt.Sprintf("%+.2f", pnl),
	)
	return nil
}

// ExecuteBuy runs the entry path for an approved opportunity. size is the
// USDC to deploy. The speculative cooldown set by the auto-buyer is confirmed
// on success and rolled back on validation (permanent) failure only.
func (e *Executor) ExecuteBuy(ctx context.Context, ws domain.WalletSettings, opp domain.Opportunity, batchSeq int64, size float64) error {
	unlock := e.entities.lock("buy:" + ws.WalletID + ":" + opp.ConditionID)
	defer unlock()

	key := BuyKey(ws.WalletID, opp.ConditionID, batchSeq)
	ok, reconcile := e.claim(key)
	if !ok {
		slog.Debug("executor: duplicate buy decision refused", "key", key)
		return nil
	}

	if _, err := e.creds.Resolve(ctx, ws.WalletID); err != nil {
		e.release(key)
		if errors.Is(err, ports.ErrNoCredentials) {
			e.logSkipOpp(ctx, ws.WalletID, opp, "no credentials for wallet")
			return nil
		}
		return fmt.Errorf("executor: buy %s/%s: resolve creds: %w", ws.WalletID, opp.ConditionID, err)
	}

	req := ports.OrderRequest{
		ClientID:    key,
		WalletID:    ws.WalletID,
		ConditionID: opp.ConditionID,
		TokenID:     opp.TokenID,
		Action:      ports.OrderBuy,
		Side:        opp.Side,
		Size:        size,
	}

	res, err := e.submit(ctx, req, reconcile)
	if err != nil {
		if domain.ClassifyErr(err) == domain.ErrKindPermanent {
			// Validation failure: free the cooldown window for later batches.
			if cerr := e.ledger.ClearCooldown(ctx, ws.WalletID, opp.ConditionID); cerr != nil {
				slog.Warn("executor: cooldown rollback failed", "err", cerr)
			}
		}
		return e.failBuy(ctx, key, ws.WalletID, opp, err)
	}

	pos, err := domain.NewPosition(ws.WalletID, opp.ConditionID, opp.TokenID, opp.Question,
		opp.Side, res.FilledPrice, res.FilledSize, time.Now().UTC())
	if err != nil {
		e.settle(key, dedupeDone)
		return fmt.Errorf("executor: buy fill invalid: %w", err)
	}
	if err := e.ledger.CreatePosition(ctx, pos); err != nil {
		e.settle(key, dedupeDone)
		slog.Error("executor: order filled but position create failed",
			"wallet", ws.WalletID, "condition", opp.ConditionID, "err", err)
		return fmt.Errorf("executor: record buy: %w", err)
	}

	// Confirm the cooldown for the full window from fill time.
	until := time.Now().UTC().Add(ws.Cooldown())
	if err := e.ledger.SetCooldown(ctx, ws.WalletID, opp.ConditionID, until); err != nil {
		slog.Warn("executor: cooldown confirm failed", "err", err)
	}

	entry := domain.NewLogEntry(ws.WalletID, domain.ActionBuy)
	entry.PositionID = pos.ID
	entry.ConditionID = opp.ConditionID
	entry.Question = opp.Question
	entry.Side = opp.Side
	entry.Price = res.FilledPrice
	entry.Size = res.FilledSize
	entry.Reason = fmt.Sprintf("auto-buy %s: edge %.1f%%", opp.Strategy, opp.Edge*100)
	e.record(ctx, entry)

	e.breakers.Success(ctx, ws.WalletID)
	e.settle(key, dedupeDone)

	slog.Info("executor: bought",
		"wallet", ws.WalletID,
		"condition", opp.ConditionID,
		"strategy", opp.Strategy,
		"price", res.FilledPrice,
		"shares", res.FilledSize,
	)
	return nil
}

// submit places the order with bounded retries. reconcile=true consults the
// venue for an earlier ambiguous attempt before submitting anything.
func (e *Executor) submit(ctx context.Context, req ports.OrderRequest, reconcile bool) (ports.OrderResult, error) {
	if reconcile {
		res, found, err := e.venue.LookupOrder(ctx, req.ClientID)
		if err != nil {
			return ports.OrderResult{}, domain.AmbiguousErr("reconcile lookup failed", err)
		}
		if found {
			slog.Info("executor: reconciled ambiguous order as filled", "client_id", req.ClientID)
			return res, nil
		}
		// Confirmed absent: safe to submit.
	}

	price, err := e.venue.BestPrice(ctx, req.TokenID, req.Action)
	if err != nil {
		return ports.OrderResult{}, err
	}
	req.Price = price

	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.policy.sleep(ctx, attempt)
			if ctx.Err() != nil {
				return ports.OrderResult{}, domain.AmbiguousErr("cancelled during retry", ctx.Err())
			}
		}

		sctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
		res, err := e.venue.Submit(sctx, req)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err

		switch domain.ClassifyErr(err) {
		case domain.ErrKindPermanent:
			return ports.OrderResult{}, err

		case domain.ErrKindAmbiguous:
			// Unknown outcome: query authoritative state before anything else.
			res, found, lerr := e.venue.LookupOrder(ctx, req.ClientID)
			if lerr != nil {
				return ports.OrderResult{}, domain.AmbiguousErr("lookup after timeout failed", lerr)
			}
			if found {
				return res, nil
			}
			// Confirmed absent: retry is safe.

		case domain.ErrKindTransient:
			// fall through to next attempt
		}
	}
	return ports.OrderResult{}, domain.TransientErr(
		fmt.Sprintf("exhausted %d attempts", e.policy.MaxAttempts), lastErr)
}

// fail finalizes a failed sell decision: log, breaker accounting, dedupe
// bookkeeping. Ambiguous outcomes keep the key for reconciliation; everything
// else releases it so an independent later trigger may retry.
func (e *Executor) fail(ctx context.Context, key, walletID string, pos domain.Position, trigReason string, err error) error {
	kind := domain.ClassifyErr(err)

	entry := domain.NewLogEntry(walletID, domain.ActionFail)
	entry.PositionID = pos.ID
	entry.ConditionID = pos.ConditionID
	entry.Question = pos.Question
	entry.Side = pos.Side
	entry.Reason = fmt.Sprintf("sell failed (%s): %s — %v", kind, trigReason, err)
	e.record(ctx, entry)

	e.finishFailure(ctx, key, walletID, kind, entry.Reason)
	return fmt.Errorf("executor: sell %s: %w", pos.ID, err)
}

func (e *Executor) failBuy(ctx context.Context, key, walletID string, opp domain.Opportunity, err error) error {
	kind := domain.ClassifyErr(err)

	entry := domain.NewLogEntry(walletID, domain.ActionFail)
	entry.ConditionID = opp.ConditionID
	entry.Question = opp.Question
	entry.Side = opp.Side
	entry.Reason = fmt.Sprintf("buy failed (%s): %v", kind, err)
	e.record(ctx, entry)

	e.finishFailure(ctx, key, walletID, kind, entry.Reason)
	return fmt.Errorf("executor: buy %s/%s: %w", walletID, opp.ConditionID, err)
}

// finishFailure settles the dedupe key and feeds the circuit breaker.
// Transient exhaustion and permanent errors both count as failures toward the
// breaker; ambiguous outcomes park the key until reconciled.
func (e *Executor) finishFailure(ctx context.Context, key, walletID string, kind domain.ErrorKind, reason string) {
	if kind == domain.ErrKindAmbiguous {
		e.settle(key, dedupeReconcile)
	} else {
		e.release(key)
	}

	if tripped := e.breakers.Failure(ctx, walletID, reason); tripped {
		e.suspend(ctx, walletID, reason)
	}
}

// suspend forces the wallet's master flag off and emits a high-severity log
// entry. Manual re-enable required.
func (e *Executor) suspend(ctx context.Context, walletID, reason string) {
	if err := e.settings.SetEnabled(ctx, walletID, false); err != nil {
		slog.Error("executor: failed to force wallet off", "wallet", walletID, "err", err)
	}

	entry := domain.NewLogEntry(walletID, domain.ActionSuspend)
	entry.Reason = "circuit breaker: repeated failures — " + reason
	e.record(ctx, entry)

	slog.Error("executor: wallet suspended by circuit breaker",
		"wallet", walletID, "reason", reason)
}

func (e *Executor) logSkip(ctx context.Context, walletID string, pos domain.Position, reason string) {
	entry := domain.NewLogEntry(walletID, domain.ActionSkip)
	entry.PositionID = pos.ID
	entry.ConditionID = pos.ConditionID
	entry.Question = pos.Question
	entry.Side = pos.Side
	entry.Reason = reason
	e.record(ctx, entry)
}

func (e *Executor) logSkipOpp(ctx context.Context, walletID string, opp domain.Opportunity, reason string) {
	entry := domain.NewLogEntry(walletID, domain.ActionSkip)
	entry.ConditionID = opp.ConditionID
	entry.Question = opp.Question
	entry.Side = opp.Side
	entry.Reason = reason
	e.record(ctx, entry)
}

// record persists the entry, then publishes it. Publication only happens
// after persistence succeeds.
func (e *Executor) record(ctx context.Context, entry domain.AutoTradeLogEntry) {
	if err := e.ledger.AppendLog(ctx, entry); err != nil {
		slog.Error("executor: append log failed", "wallet", entry.WalletID, "err", err)
		return
	}
	e.notifier.Publish(ctx, entry)
}
