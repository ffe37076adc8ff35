package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	strategy TEXT NOT NULL,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	initial_capital REAL NOT NULL,
	parameters TEXT NOT NULL,
	total_return_percent REAL,
	annualized_return REAL,
	sharpe_ratio REAL,
	sortino_ratio REAL,
	max_drawdown_percent REAL,
	win_rate REAL,
	profit_factor REAL,
	total_trades INTEGER,
	total_fees REAL,
	final_equity REAL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS backtest_trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL,
	realized_pnl REAL,
	reason TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_trades_run_id ON backtest_trades(run_id);
`

// SQLiteResultStore keeps backtest runs in a local SQLite file. Times are
// stored as unix milliseconds.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore opens (or creates) the database at dbPath and makes
// sure the schema exists.
func NewSQLiteResultStore(dbPath string) (*SQLiteResultStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps SQLite from reporting busy
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteResultStore{db: db}, nil
}

func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteResultStore) Save(ctx context.Context, result *backtest.BacktestResult) (string, error) {
	if result == nil {
		return "", errors.New("result cannot be nil")
	}
	runID := uuid.NewString()
	run, err := result.Record(runID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO backtest_runs (
		run_id, strategy, symbol, interval, start_time, end_time, initial_capital, parameters,
		total_return_percent, annualized_return, sharpe_ratio, sortino_ratio, max_drawdown_percent,
		win_rate, profit_factor, total_trades, total_fees, final_equity, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Strategy, run.Symbol, run.Interval,
		run.StartTime.UnixMilli(), run.EndTime.UnixMilli(), run.InitialCapital, run.Parameters,
		run.TotalReturnPercent, run.AnnualizedReturn, run.SharpeRatio, run.SortinoRatio, run.MaxDrawdownPercent,
		run.WinRate, run.ProfitFactor, run.TotalTrades, run.TotalFees, run.FinalEquity, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_trades
		(run_id, seq, symbol, side, quantity, price, fee, realized_pnl, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, t := range run.Trades {
		if _, err := stmt.ExecContext(ctx, t.RunID, t.Seq, t.Symbol, t.Side, t.Quantity, t.Price,
			t.Fee, t.RealizedPnL, t.Reason, t.Timestamp.UnixMilli()); err != nil {
			return "", fmt.Errorf("insert trade %d: %w", t.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

const runColumns = `id, run_id, strategy, symbol, interval, start_time, end_time, initial_capital, parameters,
	total_return_percent, annualized_return, sharpe_ratio, sortino_ratio, max_drawdown_percent,
	win_rate, profit_factor, total_trades, total_fees, final_equity, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.BacktestRun, error) {
	var (
		run                 models.BacktestRun
		start, end, created int64
		profitFactor        sql.NullFloat64
	)
	err := row.Scan(&run.ID, &run.RunID, &run.Strategy, &run.Symbol, &run.Interval, &start, &end,
		&run.InitialCapital, &run.Parameters, &run.TotalReturnPercent, &run.AnnualizedReturn,
		&run.SharpeRatio, &run.SortinoRatio, &run.MaxDrawdownPercent, &run.WinRate, &profitFactor,
		&run.TotalTrades, &run.TotalFees, &run.FinalEquity, &created)
	if err != nil {
		return nil, err
	}
	run.StartTime = time.UnixMilli(start).UTC()
	run.EndTime = time.UnixMilli(end).UTC()
	run.CreatedAt = time.UnixMilli(created).UTC()
	if profitFactor.Valid {
		pf := profitFactor.Float64
		run.ProfitFactor = &pf
	}
	return &run, nil
}

func (s *SQLiteResultStore) Get(ctx context.Context, runID string) (*models.BacktestRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM backtest_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, seq, symbol, side, quantity, price, fee,
		realized_pnl, reason, timestamp FROM backtest_trades WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t  models.TradeRecord
			ts int64
		)
		if err := rows.Scan(&t.ID, &t.RunID, &t.Seq, &t.Symbol, &t.Side, &t.Quantity, &t.Price,
			&t.Fee, &t.RealizedPnL, &t.Reason, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		run.Trades = append(run.Trades, t)
	}
	return run, rows.Err()
}

// List returns the most recent runs without their trades.
func (s *SQLiteResultStore) List(ctx context.Context, limit int) ([]models.BacktestRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM backtest_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteResultStore) Delete(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_trades WHERE run_id = ?`, runID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM backtest_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}
