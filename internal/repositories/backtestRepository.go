package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
)

// BacktestRepository stores runs and their trades through gorm.
type BacktestRepository struct {
	db *gorm.DB
}

func NewBacktestRepository(db *gorm.DB) *BacktestRepository {
	return &BacktestRepository{db: db}
}

// Save writes the run and its trade ledger in one transaction.
func (r *BacktestRepository) Save(ctx context.Context, result *backtest.BacktestResult) (string, error) {
	if result == nil {
		return "", errors.New("result cannot be nil")
	}
	runID := uuid.NewString()
	run, err := result.Record(runID)
	if err != nil {
		return "", err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trades := run.Trades
		run.Trades = nil
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 500).Error; err != nil {
				return fmt.Errorf("create trades: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// Get loads a run with its trades in ledger order.
func (r *BacktestRepository) Get(ctx context.Context, runID string) (*models.BacktestRun, error) {
	var run models.BacktestRun
	err := r.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs without their trades.
func (r *BacktestRepository) List(ctx context.Context, limit int) ([]models.BacktestRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var runs []models.BacktestRun
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *BacktestRepository) Delete(ctx context.Context, runID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&models.TradeRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("run_id = ?", runID).Delete(&models.BacktestRun{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}
