// Package memory persists trade history, decision history and engine
// settings in a single SQLite database. Every mutation is committed before
// the call returns.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

// decisionHistoryLimit caps the decision log; older rows are pruned in the
// same transaction that inserts a new one.
const decisionHistoryLimit = 100

// Settings keys.
const (
	keyStartingValue = "starting_value"
)

// Store is the SQLite-backed memory of the engine. A single store owns its
// database file; do not share one file across engines.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.NewPersistenceError("open", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewPersistenceError("init schema", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		reasoning TEXT,
		signals TEXT,
		outcome TEXT,
		profit_loss_pct REAL,
		unrealized_pct REAL,
		sell_price REAL,
		closed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		final_signal REAL NOT NULL,
		tech_signal REAL NOT NULL,
		sent_signal REAL NOT NULL,
		confidence REAL NOT NULL,
		reason TEXT,
		reasoning TEXT,
		rsi_oversold REAL NOT NULL,
		rsi_overbought REAL NOT NULL,
		min_signal_strength REAL NOT NULL,
		halt_reason TEXT,
		sentiment_used TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_outcome ON trades(outcome);
	CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// Trades
// ============================================================================

// RecordTrade appends a trade row and fills in its assigned ID. A BUY row
// with no outcome is the open position.
func (s *Store) RecordTrade(ctx context.Context, t *models.TradeRecord) error {
	signals, err := json.Marshal(t.Signals)
	if err != nil {
		return errors.NewPersistenceError("encode signals", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (timestamp, action, amount, price, reasoning, signals, outcome, profit_loss_pct, unrealized_pct, sell_price, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Timestamp, t.Action, t.Amount, t.Price, t.Reasoning, string(signals),
		outcomeArg(t.Outcome), t.ProfitLossPct, t.UnrealizedPct, t.SellPrice, t.ClosedAt)
	if err != nil {
		return errors.NewPersistenceError("record trade", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.NewPersistenceError("record trade", err)
	}
	t.ID = id
	return nil
}

// OpenPosition returns the open position, derived from the ledger: the most
// recent BUY whose outcome is still null, valid only while the ledger holds
// more BUY rows than SELL rows. Returns nil when flat.
func (s *Store) OpenPosition(ctx context.Context) (*models.TradeRecord, error) {
	var buys, sells int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			SUM(CASE WHEN action = 'BUY' THEN 1 ELSE 0 END),
			SUM(CASE WHEN action = 'SELL' THEN 1 ELSE 0 END)
		FROM trades
	`).Scan(&nullableInt{&buys}, &nullableInt{&sells})
	if err != nil {
		return nil, errors.NewPersistenceError("open position", err)
	}
	if buys <= sells {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, action, amount, price, reasoning, signals, outcome, profit_loss_pct, unrealized_pct, sell_price, closed_at
		FROM trades WHERE action = 'BUY' AND outcome IS NULL
		ORDER BY id DESC LIMIT 1
	`)

	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("open position", err)
	}
	return t, nil
}

// ClosePosition marks the open position closed at sellPrice, computes the
// realized percentage and the WIN or LOSS outcome, and returns the updated
// record. A no-op returning nil when flat.
func (s *Store) ClosePosition(ctx context.Context, sellPrice float64, closedAt time.Time) (*models.TradeRecord, error) {
	pos, err := s.OpenPosition(ctx)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	plPct := (sellPrice - pos.Price) / pos.Price * 100
	outcome := models.OutcomeLoss
	if plPct > 0 {
		outcome = models.OutcomeWin
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE trades
		SET outcome = ?, profit_loss_pct = ?, sell_price = ?, closed_at = ?, unrealized_pct = NULL
		WHERE id = ?
	`, outcome, plPct, sellPrice, closedAt, pos.ID)
	if err != nil {
		return nil, errors.NewPersistenceError("close position", err)
	}

	pos.Outcome = &outcome
	pos.ProfitLossPct = &plPct
	pos.SellPrice = &sellPrice
	pos.ClosedAt = &closedAt
	pos.UnrealizedPct = nil
	return pos, nil
}

// MarkToMarket refreshes the unrealized percentage of the open position
// against price. A no-op when flat.
func (s *Store) MarkToMarket(ctx context.Context, price float64) (*models.TradeRecord, error) {
	pos, err := s.OpenPosition(ctx)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	unrealized := (price - pos.Price) / pos.Price * 100
	_, err = s.db.ExecContext(ctx, `
		UPDATE trades SET unrealized_pct = ? WHERE id = ?
	`, unrealized, pos.ID)
	if err != nil {
		return nil, errors.NewPersistenceError("mark to market", err)
	}

	pos.UnrealizedPct = &unrealized
	return pos, nil
}

// Trades returns the most recent trades, newest first. limit <= 0 means all.
func (s *Store) Trades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	query := `
		SELECT id, timestamp, action, amount, price, reasoning, signals, outcome, profit_loss_pct, unrealized_pct, sell_price, closed_at
		FROM trades ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("query trades", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan trade", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("iterate trades", err)
	}
	return trades, nil
}

// PerformanceStats aggregates the closed trades.
func (s *Store) PerformanceStats(ctx context.Context) (*models.PerformanceStats, error) {
	stats := &models.PerformanceStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN outcome IS NOT NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'WIN' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'LOSS' THEN 1 ELSE 0 END),
			COALESCE(AVG(CASE WHEN outcome = 'WIN' THEN profit_loss_pct END), 0),
			COALESCE(AVG(CASE WHEN outcome = 'LOSS' THEN profit_loss_pct END), 0),
			COALESCE(MAX(profit_loss_pct), 0),
			COALESCE(MIN(profit_loss_pct), 0)
		FROM trades
	`).Scan(&stats.TotalTrades, &nullableInt{&stats.ClosedTrades}, &nullableInt{&stats.Wins},
		&nullableInt{&stats.Losses}, &stats.AvgProfit, &stats.AvgLoss,
		&stats.BestTrade, &stats.WorstTrade)
	if err != nil {
		return nil, errors.NewPersistenceError("performance stats", err)
	}

	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.ClosedTrades) * 100
	}

	streak, err := s.consecutiveLosses(ctx)
	if err != nil {
		return nil, err
	}
	stats.ConsecutiveLosses = streak
	return stats, nil
}

// consecutiveLosses counts the trailing LOSS streak over closed trades.
func (s *Store) consecutiveLosses(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome FROM trades
		WHERE outcome IS NOT NULL
		ORDER BY closed_at DESC, id DESC
	`)
	if err != nil {
		return 0, errors.NewPersistenceError("loss streak", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return 0, errors.NewPersistenceError("loss streak", err)
		}
		if outcome != string(models.OutcomeLoss) {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

// TodayStats aggregates trades opened on the calendar day of now; the closed
// count and realized percentage cover the subset of those already closed.
func (s *Store) TodayStats(ctx context.Context, now time.Time) (*models.DayStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	stats := &models.DayStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN outcome IS NOT NULL THEN 1 ELSE 0 END),
			COALESCE(SUM(CASE WHEN outcome IS NOT NULL THEN profit_loss_pct END), 0)
		FROM trades
		WHERE timestamp >= ? AND timestamp < ?
	`, dayStart, dayEnd).
		Scan(&stats.Trades, &nullableInt{&stats.Closed}, &stats.ProfitLossPct)
	if err != nil {
		return nil, errors.NewPersistenceError("day stats", err)
	}
	return stats, nil
}

// AdaptiveThresholds derives the current signal thresholds from recent
// performance. Two consecutive losses tighten the bands and demand stronger
// signals; a cold streak over at least five closed trades tightens them
// further.
func (s *Store) AdaptiveThresholds(ctx context.Context) (models.AdaptiveThresholds, error) {
	th := models.DefaultThresholds()

	stats, err := s.PerformanceStats(ctx)
	if err != nil {
		return th, err
	}

	if stats.ConsecutiveLosses >= 2 {
		th.RSIOversold = 30
		th.RSIOverbought = 65
		th.MinSignalStrength = 1.5

		if stats.ClosedTrades >= 5 && stats.WinRate < 40 {
			th.RSIOversold = 28
			th.RSIOverbought = 72
			th.MinSignalStrength = 1.8
		}
	}
	return th, nil
}

// ShouldStopTrading evaluates the circuit breaker against the ledger as it
// stands: a trailing loss streak at the limit or a drawdown past the maximum
// loss trips it. The answer is recomputed on every call, so a WIN that breaks
// the streak clears a streak trip; stopping for good is the engine's job.
func (s *Store) ShouldStopTrading(ctx context.Context, risk models.RiskSettings, currentValue float64) (bool, string, error) {
	stats, err := s.PerformanceStats(ctx)
	if err != nil {
		return false, "", err
	}
	if stats.ConsecutiveLosses >= risk.MaxConsecutiveLosses {
		return true, fmt.Sprintf("%d consecutive losses (max %d)",
			stats.ConsecutiveLosses, risk.MaxConsecutiveLosses), nil
	}

	start, ok, err := s.StartingValue(ctx)
	if err != nil {
		return false, "", err
	}
	if ok && start > 0 {
		drawdown := (currentValue - start) / start * 100
		if drawdown <= -risk.MaxDailyLossPercent {
			return true, fmt.Sprintf("drawdown %.2f%% exceeds max loss %.2f%%",
				drawdown, risk.MaxDailyLossPercent), nil
		}
	}

	return false, "", nil
}

// ============================================================================
// Decisions
// ============================================================================

// RecordDecision appends a decision row and prunes the log down to the most
// recent entries. The insert and the prune commit together.
func (s *Store) RecordDecision(ctx context.Context, d *models.Decision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("record decision", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (timestamp, action, final_signal, tech_signal, sent_signal, confidence, reason, reasoning, rsi_oversold, rsi_overbought, min_signal_strength, halt_reason, sentiment_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Timestamp, d.Action, d.FinalSignal, d.TechSignal, d.SentSignal, d.Confidence,
		d.Reason, d.Reasoning, d.Thresholds.RSIOversold, d.Thresholds.RSIOverbought,
		d.Thresholds.MinSignalStrength, d.HaltReason, d.SentimentUsed)
	if err != nil {
		return errors.NewPersistenceError("record decision", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.NewPersistenceError("record decision", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM decisions WHERE id NOT IN (
			SELECT id FROM decisions ORDER BY id DESC LIMIT ?
		)
	`, decisionHistoryLimit)
	if err != nil {
		return errors.NewPersistenceError("prune decisions", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("record decision", err)
	}

	d.ID = id
	return nil
}

// RecentDecisions returns decisions newest first. limit <= 0 means all
// retained rows.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	query := `
		SELECT id, timestamp, action, final_signal, tech_signal, sent_signal, confidence, reason, reasoning, rsi_oversold, rsi_overbought, min_signal_strength, COALESCE(halt_reason, ''), COALESCE(sentiment_used, '')
		FROM decisions ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("query decisions", err)
	}
	defer rows.Close()

	var decisions []models.Decision
	for rows.Next() {
		var d models.Decision
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.Action, &d.FinalSignal, &d.TechSignal,
			&d.SentSignal, &d.Confidence, &d.Reason, &d.Reasoning,
			&d.Thresholds.RSIOversold, &d.Thresholds.RSIOverbought,
			&d.Thresholds.MinSignalStrength, &d.HaltReason, &d.SentimentUsed); err != nil {
			return nil, errors.NewPersistenceError("scan decision", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// ============================================================================
// Settings
// ============================================================================

// SetStartingValue records the portfolio value the drawdown breaker measures
// against. First writer wins; the effective value is returned.
func (s *Store) SetStartingValue(ctx context.Context, v float64) (float64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)
	`, keyStartingValue, fmt.Sprintf("%g", v))
	if err != nil {
		return 0, errors.NewPersistenceError("set starting value", err)
	}

	effective, _, err := s.StartingValue(ctx)
	if err != nil {
		return 0, err
	}
	return effective, nil
}

// StartingValue returns the recorded starting value, if any.
func (s *Store) StartingValue(ctx context.Context) (float64, bool, error) {
	raw, ok, err := s.setting(ctx, keyStartingValue)
	if err != nil || !ok {
		return 0, false, err
	}
	var v float64
	if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
		return 0, false, errors.NewPersistenceError("parse starting value", err)
	}
	return v, true, nil
}

func (s *Store) setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = ?
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistenceError("get setting", err)
	}
	return value, true, nil
}

// ============================================================================
// Scanning
// ============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	var t models.TradeRecord
	var signalsJSON sql.NullString
	var outcome sql.NullString
	var plPct, unrealized, sellPrice sql.NullFloat64
	var closedAt sql.NullTime

	err := row.Scan(&t.ID, &t.Timestamp, &t.Action, &t.Amount, &t.Price, &t.Reasoning,
		&signalsJSON, &outcome, &plPct, &unrealized, &sellPrice, &closedAt)
	if err != nil {
		return nil, err
	}

	if signalsJSON.Valid && signalsJSON.String != "" {
		if err := json.Unmarshal([]byte(signalsJSON.String), &t.Signals); err != nil {
			return nil, errors.NewPersistenceError("decode signals", err)
		}
	}
	if outcome.Valid {
		o := models.Outcome(outcome.String)
		t.Outcome = &o
	}
	if plPct.Valid {
		t.ProfitLossPct = &plPct.Float64
	}
	if unrealized.Valid {
		t.UnrealizedPct = &unrealized.Float64
	}
	if sellPrice.Valid {
		t.SellPrice = &sellPrice.Float64
	}
	if closedAt.Valid {
		t.ClosedAt = &closedAt.Time
	}
	return &t, nil
}

func outcomeArg(o *models.Outcome) interface{} {
	if o == nil {
		return nil
	}
	return string(*o)
}

// nullableInt scans a SUM() result that is NULL over an empty table as 0.
type nullableInt struct {
	dest *int
}

func (n *nullableInt) Scan(src interface{}) error {
	var v sql.NullInt64
	if err := v.Scan(src); err != nil {
		return err
	}
	*n.dest = int(v.Int64)
	return nil
}
