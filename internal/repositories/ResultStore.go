package repositories

import (
	"context"
	"errors"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
)

var ErrRunNotFound = errors.New("backtest run not found")

// ResultStore persists completed backtests under a generated run id.
type ResultStore interface {
	Save(ctx context.Context, result *backtest.BacktestResult) (string, error)
	Get(ctx context.Context, runID string) (*models.BacktestRun, error)
	List(ctx context.Context, limit int) ([]models.BacktestRun, error)
	Delete(ctx context.Context, runID string) error
}

var (
	_ ResultStore = (*BacktestRepository)(nil)
	_ ResultStore = (*SQLiteResultStore)(nil)

	_ backtest.CandleSource = (*PriceRepository)(nil)
)

const defaultListLimit = 50
