package storage

// sqlite.go — SQLite persistence for the auto-trading engine.
//
// Tables:
//   wallet_settings — per-wallet configuration (one row per wallet)
//   positions       — open and closed trades
//   trade_log       — append-only audit of every decision
//   cooldowns       — per (wallet, market) buy cooldown marks
//   wallet_breakers — circuit breaker state, survives restarts
//
// One Store implements both ports.SettingsStore and ports.RiskLedger.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polypilot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallet_settings (
    wallet_id          TEXT PRIMARY KEY,
    enabled            INTEGER NOT NULL DEFAULT 0,
    auto_buy_enabled   INTEGER NOT NULL DEFAULT 0,
    max_position_size  REAL    NOT NULL DEFAULT 25,
    max_total_exposure REAL    NOT NULL DEFAULT 250,
    min_edge           REAL    NOT NULL DEFAULT 0.05,
    strategies         TEXT    NOT NULL DEFAULT 'VALUE',
    take_profit_on     INTEGER NOT NULL DEFAULT 1,
    take_profit_pct    REAL    NOT NULL DEFAULT 0.20,
    stop_loss_on       INTEGER NOT NULL DEFAULT 1,
    stop_loss_pct      REAL    NOT NULL DEFAULT 0.15,
    trailing_stop_on   INTEGER NOT NULL DEFAULT 0,
    trailing_stop_pct  REAL    NOT NULL DEFAULT 0.10,
    time_exit_on       INTEGER NOT NULL DEFAULT 0,
    time_exit_hours    REAL    NOT NULL DEFAULT 72,
    max_positions      INTEGER NOT NULL DEFAULT 10,
    cooldown_minutes   INTEGER NOT NULL DEFAULT 60,
    max_daily_loss     REAL    NOT NULL DEFAULT 50,
    updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,   -- local UUID
    wallet_id    TEXT NOT NULL,
    condition_id TEXT NOT NULL,
    token_id     TEXT NOT NULL DEFAULT '',
    question     TEXT NOT NULL DEFAULT '',
    side         TEXT NOT NULL,      -- YES / NO
    entry_price  REAL NOT NULL,
    size         REAL NOT NULL,
    remaining    REAL NOT NULL,
    opened_at    DATETIME NOT NULL,
    closed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS positions_wallet_open ON positions(wallet_id, closed_at);
CREATE INDEX IF NOT EXISTS positions_condition   ON positions(condition_id);

CREATE TABLE IF NOT EXISTS trade_log (
    id           TEXT PRIMARY KEY,
    wallet_id    TEXT NOT NULL,
    position_id  TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL,
    condition_id TEXT NOT NULL DEFAULT '',
    question     TEXT NOT NULL DEFAULT '',
    side         TEXT NOT NULL DEFAULT '',
    price        REAL NOT NULL DEFAULT 0,
    size         REAL NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    reason       TEXT NOT NULL DEFAULT '',
    at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS trade_log_wallet_at ON trade_log(wallet_id, at DESC);
CREATE INDEX IF NOT EXISTS trade_log_action    ON trade_log(action);

CREATE TABLE IF NOT EXISTS cooldowns (
    wallet_id    TEXT NOT NULL,
    condition_id TEXT NOT NULL,
    until        DATETIME NOT NULL,
    PRIMARY KEY (wallet_id, condition_id)
);

CREATE TABLE IF NOT EXISTS wallet_breakers (
    wallet_id            TEXT PRIMARY KEY,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    window_start         DATETIME,
    tripped              INTEGER NOT NULL DEFAULT 0,
    reason               TEXT NOT NULL DEFAULT '',
    tripped_at           DATETIME
);
`

// Store implements ports.SettingsStore and ports.RiskLedger on SQLite
// (pure Go driver, no CGo).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- ports.SettingsStore ---

// Get returns the settings row for walletID.
func (s *Store) Get(ctx context.Context, walletID string) (domain.WalletSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_id, enabled, auto_buy_enabled, max_position_size,
		       max_total_exposure, min_edge, strategies,
		       take_profit_on, take_profit_pct, stop_loss_on, stop_loss_pct,
		       trailing_stop_on, trailing_stop_pct, time_exit_on, time_exit_hours,
		       max_positions, cooldown_minutes, max_daily_loss, updated_at
		FROM wallet_settings WHERE wallet_id = ?`, walletID)

	ws, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return domain.WalletSettings{}, fmt.Errorf("storage.Get: wallet %q not registered", walletID)
	}
	if err != nil {
		return domain.WalletSettings{}, fmt.Errorf("storage.Get %q: %w", walletID, err)
	}
	return ws, nil
}

// Set validates and upserts the full settings row.
func (s *Store) Set(ctx context.Context, ws domain.WalletSettings) error {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("storage.Set: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_settings (
			wallet_id, enabled, auto_buy_enabled, max_position_size,
			max_total_exposure, min_edge, strategies,
			take_profit_on, take_profit_pct, stop_loss_on, stop_loss_pct,
			trailing_stop_on, trailing_stop_pct, time_exit_on, time_exit_hours,
			max_positions, cooldown_minutes, max_daily_loss, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(wallet_id) DO UPDATE SET
			enabled=excluded.enabled,
			auto_buy_enabled=excluded.auto_buy_enabled,
			max_position_size=excluded.max_position_size,
			max_total_exposure=excluded.max_total_exposure,
			min_edge=excluded.min_edge,
			strategies=excluded.strategies,
			take_profit_on=excluded.take_profit_on,
			take_profit_pct=excluded.take_profit_pct,
			stop_loss_on=excluded.stop_loss_on,
			stop_loss_pct=excluded.stop_loss_pct,
			trailing_stop_on=excluded.trailing_stop_on,
			trailing_stop_pct=excluded.trailing_stop_pct,
			time_exit_on=excluded.time_exit_on,
			time_exit_hours=excluded.time_exit_hours,
			max_positions=excluded.max_positions,
			cooldown_minutes=excluded.cooldown_minutes,
			max_daily_loss=excluded.max_daily_loss,
			updated_at=excluded.updated_at`,
		ws.WalletID, boolInt(ws.Enabled), boolInt(ws.AutoBuyEnabled), ws.MaxPositionSize,
		ws.MaxTotalExposure, ws.MinEdge, encodeStrategies(ws.Strategies),
		boolInt(ws.TakeProfitEnabled), ws.TakeProfitPct, boolInt(ws.StopLossEnabled), ws.StopLossPct,
		boolInt(ws.TrailingStopEnabled), ws.TrailingStopPct, boolInt(ws.TimeExitEnabled), ws.TimeExitHours,
		ws.MaxPositions, ws.CooldownMinutes, ws.MaxDailyLoss, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.Set %q: %w", ws.WalletID, err)
	}
	return nil
}

// SetEnabled flips only the master flag.
func (s *Store) SetEnabled(ctx context.Context, walletID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wallet_settings SET enabled = ?, updated_at = ? WHERE wallet_id = ?`,
		boolInt(enabled), time.Now().UTC(), walletID)
	if err != nil {
		return fmt.Errorf("storage.SetEnabled %q: %w", walletID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SetEnabled: wallet %q not registered", walletID)
	}
	return nil
}

// List returns every wallet's settings, ordered by wallet id for
// deterministic evaluation order.
func (s *Store) List(ctx context.Context) ([]domain.WalletSettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_id, enabled, auto_buy_enabled, max_position_size,
		       max_total_exposure, min_edge, strategies,
		       take_profit_on, take_profit_pct, stop_loss_on, stop_loss_pct,
		       trailing_stop_on, trailing_stop_pct, time_exit_on, time_exit_hours,
		       max_positions, cooldown_minutes, max_daily_loss, updated_at
		FROM wallet_settings ORDER BY wallet_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.List: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletSettings
	for rows.Next() {
		ws, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.List: scan: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(r rowScanner) (domain.WalletSettings, error) {
	var (
		ws                             domain.WalletSettings
		enabled, autoBuy               int
		tpOn, slOn, tsOn, teOn         int
		strategies                     string
	)
	err := r.Scan(
		&ws.WalletID, &enabled, &autoBuy, &ws.MaxPositionSize,
		&ws.MaxTotalExposure, &ws.MinEdge, &strategies,
		&tpOn, &ws.TakeProfitPct, &slOn, &ws.StopLossPct,
		&tsOn, &ws.TrailingStopPct, &teOn, &ws.TimeExitHours,
		&ws.MaxPositions, &ws.CooldownMinutes, &ws.MaxDailyLoss, &ws.UpdatedAt,
	)
	if err != nil {
		return domain.WalletSettings{}, err
	}
	ws.Enabled = enabled != 0
	ws.AutoBuyEnabled = autoBuy != 0
	ws.TakeProfitEnabled = tpOn != 0
	ws.StopLossEnabled = slOn != 0
	ws.TrailingStopEnabled = tsOn != 0
	ws.TimeExitEnabled = teOn != 0
	ws.Strategies = decodeStrategies(strategies)
	return ws, nil
}

func encodeStrategies(tags []domain.StrategyTag) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ",")
}

func decodeStrategies(s string) []domain.StrategyTag {
	if s == "" {
		return nil
	}
	var tags []domain.StrategyTag
	for _, part := range strings.Split(s, ",") {
		tags = append(tags, domain.ParseStrategyTag(strings.TrimSpace(part)))
	}
	return tags
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
