package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"CryptoTradeCore/internal/models"
)

type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new instance of PriceRepository
func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// CreateBatch stores prices, skipping candles that are already stored.
// It returns the number of new rows.
func (r *PriceRepository) CreateBatch(ctx context.Context, prices []models.Price) (int64, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(prices, 500)
	return res.RowsAffected, res.Error
}

// GetPricesByTimeFrame gets price data for a specific symbol and timeframe.
// A zero start or end leaves that side open.
func (r *PriceRepository) GetPricesByTimeFrame(ctx context.Context, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	q := r.db.WithContext(ctx).Where("symbol = ? AND time_frame = ?", symbol, timeFrame)
	if !start.IsZero() {
		q = q.Where("open_time >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("open_time <= ?", end)
	}
	var prices []models.Price
	err := q.Order("open_time ASC").Find(&prices).Error
	return prices, err
}

// Candles implements backtest.CandleSource over stored prices.
func (r *PriceRepository) Candles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.PriceBar, error) {
	prices, err := r.GetPricesByTimeFrame(ctx, symbol, string(interval), start, end)
	if err != nil {
		return nil, err
	}
	bars := make([]models.PriceBar, len(prices))
	for i, p := range prices {
		bars[i] = p.Bar()
	}
	return bars, nil
}

// GetLatestPriceByTimeFrame gets the most recent price for a symbol and
// timeframe, nil when none is stored.
func (r *PriceRepository) GetLatestPriceByTimeFrame(ctx context.Context, symbol, timeFrame string) (*models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var price models.Price
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		First(&price).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &price, err
}
