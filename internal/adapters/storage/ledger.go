package storage

// ledger.go — ports.RiskLedger: positions, cooldowns, trade log, daily P&L,
// circuit breaker state.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
)

// CreatePosition inserts a new open position.
func (s *Store) CreatePosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, wallet_id, condition_id, token_id, question,
			side, entry_price, size, remaining, opened_at, closed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,NULL)`,
		p.ID, p.WalletID, p.ConditionID, p.TokenID, p.Question,
		string(p.Side), p.EntryPrice, p.Size, p.Remaining, p.OpenedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CreatePosition %s: %w", p.ID, err)
	}
	return nil
}

// GetPosition returns one position by id.
func (s *Store) GetPosition(ctx context.Context, positionID string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx, selectPositions+` WHERE id = ?`, positionID)
	p, err := scanPosition(row)
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition %s: %w", positionID, err)
	}
	return p, nil
}

// OpenPositionsByCondition returns all open positions on a market, across all
// wallets. This is the monitor's per-tick lookup.
func (s *Store) OpenPositionsByCondition(ctx context.Context, conditionID string) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		selectPositions+` WHERE condition_id = ? AND closed_at IS NULL AND remaining > 0 ORDER BY id`,
		conditionID)
}

// OpenPositions returns a wallet's open positions.
func (s *Store) OpenPositions(ctx context.Context, walletID string) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		selectPositions+` WHERE wallet_id = ? AND closed_at IS NULL AND remaining > 0 ORDER BY opened_at`,
		walletID)
}

// OpenPositionCount returns how many positions a wallet holds open.
func (s *Store) OpenPositionCount(ctx context.Context, walletID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE wallet_id = ? AND closed_at IS NULL AND remaining > 0`,
		walletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.OpenPositionCount %q: %w", walletID, err)
	}
	return n, nil
}

// TotalExposure returns the USDC at risk across a wallet's open positions
// (remaining shares valued at entry price).
func (s *Store) TotalExposure(ctx context.Context, walletID string) (float64, error) {
	var exp float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(remaining * entry_price), 0) FROM positions
		 WHERE wallet_id = ? AND closed_at IS NULL AND remaining > 0`,
		walletID).Scan(&exp)
	if err != nil {
		return 0, fmt.Errorf("storage.TotalExposure %q: %w", walletID, err)
	}
	return exp, nil
}

// HasOpenPosition reports whether the wallet already holds this market.
func (s *Store) HasOpenPosition(ctx context.Context, walletID, conditionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions
		 WHERE wallet_id = ? AND condition_id = ? AND closed_at IS NULL AND remaining > 0`,
		walletID, conditionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.HasOpenPosition: %w", err)
	}
	return n > 0, nil
}

// ReducePosition applies a partial or full sell. The position closes when no
// shares remain.
func (s *Store) ReducePosition(ctx context.Context, positionID string, soldShares, exitPrice float64, closedAt time.Time) error {
	p, err := s.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if soldShares <= 0 || soldShares > p.Remaining+1e-9 {
		return fmt.Errorf("storage.ReducePosition %s: sold %.4f of %.4f remaining",
			positionID, soldShares, p.Remaining)
	}

	remaining := p.Remaining - soldShares
	if remaining < 1e-9 {
		remaining = 0
	}

	var closed any
	if remaining == 0 {
		closed = closedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE positions SET remaining = ?, closed_at = ? WHERE id = ?`,
		remaining, closed, positionID)
	if err != nil {
		return fmt.Errorf("storage.ReducePosition %s: %w", positionID, err)
	}
	return nil
}

const selectPositions = `
	SELECT id, wallet_id, condition_id, token_id, question, side,
	       entry_price, size, remaining, opened_at, closed_at
	FROM positions`

func (s *Store) queryPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var (
		p      domain.Position
		side   string
		closed sql.NullTime
	)
	err := r.Scan(&p.ID, &p.WalletID, &p.ConditionID, &p.TokenID, &p.Question,
		&side, &p.EntryPrice, &p.Size, &p.Remaining, &p.OpenedAt, &closed)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	if closed.Valid {
		t := closed.Time
		p.ClosedAt = &t
	}
	return p, nil
}

// --- Daily P&L ---

// DailyRealizedPnL sums realized P&L from sell entries for the UTC day of day.
func (s *Store) DailyRealizedPnL(ctx context.Context, walletID string, day time.Time) (float64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var pnl float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0) FROM trade_log
		WHERE wallet_id = ? AND action = ? AND at >= ? AND at < ?`,
		walletID, string(domain.ActionSell), start, end).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("storage.DailyRealizedPnL %q: %w", walletID, err)
	}
	return pnl, nil
}

// --- Cooldowns ---

// CooldownActive reports whether a buy cooldown is still running for the
// (wallet, market) pair. Expired marks are pruned on read.
func (s *Store) CooldownActive(ctx context.Context, walletID, conditionID string, now time.Time) (bool, error) {
	var until time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT until FROM cooldowns WHERE wallet_id = ? AND condition_id = ?`,
		walletID, conditionID).Scan(&until)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage.CooldownActive: %w", err)
	}
	if now.UTC().Before(until) {
		return true, nil
	}
	_ = s.ClearCooldown(ctx, walletID, conditionID)
	return false, nil
}

// SetCooldown upserts the cooldown mark for the pair.
func (s *Store) SetCooldown(ctx context.Context, walletID, conditionID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (wallet_id, condition_id, until) VALUES (?,?,?)
		ON CONFLICT(wallet_id, condition_id) DO UPDATE SET until=excluded.until`,
		walletID, conditionID, until.UTC())
	if err != nil {
		return fmt.Errorf("storage.SetCooldown: %w", err)
	}
	return nil
}

// ClearCooldown removes the mark (rollback after a failed validation).
func (s *Store) ClearCooldown(ctx context.Context, walletID, conditionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cooldowns WHERE wallet_id = ? AND condition_id = ?`,
		walletID, conditionID)
	if err != nil {
		return fmt.Errorf("storage.ClearCooldown: %w", err)
	}
	return nil
}

// --- Trade log ---

// AppendLog inserts an audit entry. Entries are never updated.
func (s *Store) AppendLog(ctx context.Context, e domain.AutoTradeLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_log (id, wallet_id, position_id, action, condition_id,
			question, side, price, size, realized_pnl, reason, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.WalletID, e.PositionID, string(e.Action), e.ConditionID,
		e.Question, string(e.Side), e.Price, e.Size, e.RealizedPnL, e.Reason, e.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendLog %s: %w", e.ID, err)
	}
	return nil
}

// RecentLog returns the newest entries for a wallet, or for all wallets when
// walletID is empty.
func (s *Store) RecentLog(ctx context.Context, walletID string, limit int) ([]domain.AutoTradeLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, wallet_id, position_id, action, condition_id, question,
		       side, price, size, realized_pnl, reason, at
		FROM trade_log`
	args := []any{}
	if walletID != "" {
		query += ` WHERE wallet_id = ?`
		args = append(args, walletID)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentLog: %w", err)
	}
	defer rows.Close()

	var out []domain.AutoTradeLogEntry
	for rows.Next() {
		var (
			e            domain.AutoTradeLogEntry
			action, side string
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &e.PositionID, &action, &e.ConditionID,
			&e.Question, &side, &e.Price, &e.Size, &e.RealizedPnL, &e.Reason, &e.At); err != nil {
			return nil, fmt.Errorf("storage.RecentLog: scan: %w", err)
		}
		e.Action = domain.ActionKind(action)
		e.Side = domain.Side(side)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Circuit breaker ---

// SaveBreaker upserts a wallet's breaker state.
func (s *Store) SaveBreaker(ctx context.Context, b domain.WalletBreaker) error {
	var windowStart, trippedAt any
	if !b.WindowStart.IsZero() {
		windowStart = b.WindowStart.UTC()
	}
	if !b.TrippedAt.IsZero() {
		trippedAt = b.TrippedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_breakers (wallet_id, consecutive_failures, window_start, tripped, reason, tripped_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(wallet_id) DO UPDATE SET
			consecutive_failures=excluded.consecutive_failures,
			window_start=excluded.window_start,
			tripped=excluded.tripped,
			reason=excluded.reason,
			tripped_at=excluded.tripped_at`,
		b.WalletID, b.ConsecutiveFailures, windowStart, boolInt(b.Tripped), b.TrippedReason, trippedAt)
	if err != nil {
		return fmt.Errorf("storage.SaveBreaker %q: %w", b.WalletID, err)
	}
	return nil
}

// LoadBreakers returns all persisted breaker states. MaxFailures and Window
// are runtime configuration and are filled in by the caller.
func (s *Store) LoadBreakers(ctx context.Context) ([]domain.WalletBreaker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_id, consecutive_failures, window_start, tripped, reason, tripped_at
		FROM wallet_breakers`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadBreakers: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletBreaker
	for rows.Next() {
		var (
			b                      domain.WalletBreaker
			tripped                int
			windowStart, trippedAt sql.NullTime
		)
		if err := rows.Scan(&b.WalletID, &b.ConsecutiveFailures, &windowStart,
			&tripped, &b.TrippedReason, &trippedAt); err != nil {
			return nil, fmt.Errorf("storage.LoadBreakers: scan: %w", err)
		}
		b.Tripped = tripped != 0
		if windowStart.Valid {
			b.WindowStart = windowStart.Time
		}
		if trippedAt.Valid {
			b.TrippedAt = trippedAt.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
