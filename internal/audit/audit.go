// Package audit implements the persisted audit tables of spec §6:
// signals, orders, fills, metrics_daily — write-once, never read back for
// decisions. Grounded on poorman-SynapseStrike's store package
// (SynapseStrike/store/strategy.go's initTables/sql.Open("sqlite", ...)
// idiom) and stadam23-Eve-flipper's internal/db (WAL-mode pragma dial
// string), both built on the pure-Go modernc.org/sqlite driver — chosen
// over the teacher's own JSON-file state snapshot because the spec names
// actual relational tables with columns, which a single JSON blob cannot
// represent queryably.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the audit database connection and schema.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite-backed audit database at path and
// runs migrations, mirroring stadam23-Eve-flipper's internal/db.Open
// WAL-mode dial string.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			ts DATETIME NOT NULL,
			ticker TEXT NOT NULL,
			regime TEXT NOT NULL,
			tech REAL NOT NULL,
			sentiment REAL NOT NULL,
			score REAL NOT NULL,
			reason_or_emit TEXT NOT NULL,
			horizon_min INTEGER NOT NULL,
			override BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ticker_ts ON signals(ticker, ts)`,
		`CREATE TABLE IF NOT EXISTS orders (
			ts DATETIME NOT NULL,
			ticker TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			entry REAL NOT NULL,
			stop REAL NOT NULL,
			target REAL NOT NULL,
			idem_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			order_idem_key TEXT NOT NULL,
			ts DATETIME NOT NULL,
			price REAL NOT NULL,
			qty REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics_daily (
			date TEXT NOT NULL PRIMARY KEY,
			trades INTEGER NOT NULL DEFAULT 0,
			winrate REAL NOT NULL DEFAULT 0,
			pnl REAL NOT NULL DEFAULT 0,
			drawdown REAL NOT NULL DEFAULT 0,
			llm_calls INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init audit schema: %w", err)
		}
	}
	return nil
}

// SignalRow is one row of the signals table.
type SignalRow struct {
	TS           time.Time
	Ticker       string
	Regime       string
	Tech         float64
	Sentiment    float64
	Score        float64
	ReasonOrEmit string
	HorizonMin   int
	Override     bool
}

// RecordSignal appends a write-once signals row (emitted or suppressed).
func (s *Store) RecordSignal(ctx context.Context, r SignalRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (ts, ticker, regime, tech, sentiment, score, reason_or_emit, horizon_min, override)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TS, r.Ticker, r.Regime, r.Tech, r.Sentiment, r.Score, r.ReasonOrEmit, r.HorizonMin, r.Override)
	return err
}

// OrderRow is one row of the orders table.
type OrderRow struct {
	TS      time.Time
	Ticker  string
	Side    string
	Qty     float64
	Entry   float64
	Stop    float64
	Target  float64
	IdemKey string
	Status  string
}

// RecordOrder appends a write-once orders row.
func (s *Store) RecordOrder(ctx context.Context, r OrderRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (ts, ticker, side, qty, entry, stop, target, idem_key, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(idem_key) DO NOTHING`,
		r.TS, r.Ticker, r.Side, r.Qty, r.Entry, r.Stop, r.Target, r.IdemKey, r.Status)
	return err
}

// FillRow is one row of the fills table.
type FillRow struct {
	OrderIdemKey string
	TS           time.Time
	Price        float64
	Qty          float64
}

// RecordFill appends a write-once fills row.
func (s *Store) RecordFill(ctx context.Context, r FillRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fills (order_idem_key, ts, price, qty) VALUES (?, ?, ?, ?)`,
		r.OrderIdemKey, r.TS, r.Price, r.Qty)
	return err
}

// UpsertDailyMetrics writes the metrics_daily row for date; if a row for
// date already exists, its trades/winrate/pnl/drawdown/llm_calls are
// replaced by the given values.
func (s *Store) UpsertDailyMetrics(ctx context.Context, date string, trades int, winrate, pnl, drawdown float64, llmCalls int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics_daily (date, trades, winrate, pnl, drawdown, llm_calls)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			trades=excluded.trades, winrate=excluded.winrate, pnl=excluded.pnl,
			drawdown=excluded.drawdown, llm_calls=excluded.llm_calls`,
		date, trades, winrate, pnl, drawdown, llmCalls)
	return err
}

// CountSignals is a read helper for tests/tools only — the core pipeline
// never reads these tables back to make decisions (spec §6).
func (s *Store) CountSignals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals`).Scan(&n)
	return n, err
}

// RecentSignals returns up to limit signals rows, most recent first. Read
// helper for the auditctl inspection tool only.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]SignalRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, ticker, regime, tech, sentiment, score, reason_or_emit, horizon_min, override
		 FROM signals ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var r SignalRow
		if err := rows.Scan(&r.TS, &r.Ticker, &r.Regime, &r.Tech, &r.Sentiment, &r.Score, &r.ReasonOrEmit, &r.HorizonMin, &r.Override); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentOrders returns up to limit orders rows, most recent first. Read
// helper for the auditctl inspection tool only.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, ticker, side, qty, entry, stop, target, idem_key, status
		 FROM orders ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var r OrderRow
		if err := rows.Scan(&r.TS, &r.Ticker, &r.Side, &r.Qty, &r.Entry, &r.Stop, &r.Target, &r.IdemKey, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyMetricsRow is one row of the metrics_daily table.
type DailyMetricsRow struct {
	Date     string
	Trades   int
	WinRate  float64
	PnL      float64
	Drawdown float64
	LLMCalls int
}

// RecentDailyMetrics returns up to limit metrics_daily rows, most recent
// date first. Read helper for the auditctl inspection tool only.
func (s *Store) RecentDailyMetrics(ctx context.Context, limit int) ([]DailyMetricsRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, trades, winrate, pnl, drawdown, llm_calls
		 FROM metrics_daily ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMetricsRow
	for rows.Next() {
		var r DailyMetricsRow
		if err := rows.Scan(&r.Date, &r.Trades, &r.WinRate, &r.PnL, &r.Drawdown, &r.LLMCalls); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
