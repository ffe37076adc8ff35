package price

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
)

// PriceStore is where recorded candles end up.
type PriceStore interface {
	CreateBatch(ctx context.Context, prices []models.Price) (int64, error)
	GetLatestPriceByTimeFrame(ctx context.Context, symbol, timeFrame string) (*models.Price, error)
}

// PriceRecorder backfills stored candles from the exchange, resuming after
// the newest stored candle of each symbol and interval.
type PriceRecorder struct {
	fetcher *PriceFetcher
	store   PriceStore
	log     logger.Logger
	now     func() time.Time
}

func NewPriceRecorder(fetcher *PriceFetcher, store PriceStore, log logger.Logger) *PriceRecorder {
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceRecorder{fetcher: fetcher, store: store, log: log, now: time.Now}
}

// SyncResult counts the candles stored for one symbol and interval.
type SyncResult struct {
	Symbol   string          `json:"symbol"`
	Interval models.Interval `json:"interval"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Stored   int64           `json:"stored"`
	Error    string          `json:"error,omitempty"`
}

// Sync records up to lookback of history for every symbol and interval.
// A failing pair does not stop the others; their errors are combined.
func (r *PriceRecorder) Sync(ctx context.Context, symbols []string, intervals []models.Interval, lookback time.Duration) ([]SyncResult, error) {
	var (
		results []SyncResult
		errs    error
	)
	for _, symbol := range symbols {
		for _, interval := range intervals {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			res, err := r.syncOne(ctx, symbol, interval, lookback)
			if err != nil {
				res.Error = err.Error()
				errs = multierr.Append(errs, err)
				r.log.Error("Candle sync failed",
					logger.String("symbol", symbol),
					logger.String("interval", string(interval)),
					logger.Err(err))
			}
			results = append(results, res)
		}
	}
	return results, errs
}

func (r *PriceRecorder) syncOne(ctx context.Context, symbol string, interval models.Interval, lookback time.Duration) (SyncResult, error) {
	end := r.now().UTC()
	start := end.Add(-lookback)
	res := SyncResult{Symbol: symbol, Interval: interval, To: end}

	latest, err := r.store.GetLatestPriceByTimeFrame(ctx, symbol, string(interval))
	if err != nil {
		return res, err
	}
	if latest != nil && latest.OpenTime.After(start) {
		start = latest.OpenTime.Add(interval.Duration())
	}
	res.From = start
	if !start.Before(end) {
		return res, nil
	}

	prices, err := r.fetcher.FetchPrices(ctx, symbol, interval, start, end)
	if err != nil {
		return res, err
	}
	// the newest candle is still forming
	for len(prices) > 0 && prices[len(prices)-1].CloseTime.After(end) {
		prices = prices[:len(prices)-1]
	}
	res.Stored, err = r.store.CreateBatch(ctx, prices)
	if err != nil {
		return res, err
	}

	r.log.Info("Recorded candles",
		logger.String("symbol", symbol),
		logger.String("interval", string(interval)),
		logger.Int("fetched", len(prices)),
		logger.Int("stored", int(res.Stored)))
	return res, nil
}
