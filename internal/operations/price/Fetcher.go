package price

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/metrics"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/binance"
)

// KlineClient is the part of the exchange client the fetcher needs.
type KlineClient interface {
	GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]*futures.Kline, error)
}

var _ KlineClient = (*binance.BinanceClient)(nil)

type PriceFetcher struct {
	client    KlineClient
	pageLimit int
	log       logger.Logger
}

func NewPriceFetcher(client KlineClient, log logger.Logger) *PriceFetcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceFetcher{client: client, pageLimit: 500, log: log}
}

// FetchPrices pages through [start, end] and returns the candles as stored
// rows, ascending and without duplicates.
func (f *PriceFetcher) FetchPrices(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.Price, error) {
	if _, err := models.ParseInterval(string(interval)); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", models.ErrInvalidDateRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	chunk := interval.Duration() * time.Duration(f.pageLimit)
	seen := make(map[int64]bool)
	var prices []models.Price

	for currentStart := start; !currentStart.After(end); {
		currentEnd := currentStart.Add(chunk - time.Millisecond)
		if currentEnd.After(end) {
			currentEnd = end
		}

		klines, err := f.client.GetKlines(ctx, symbol, string(interval),
			currentStart.UnixMilli(), currentEnd.UnixMilli(), f.pageLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s klines from %s: %w", symbol, interval,
				currentStart.Format(time.RFC3339), err)
		}
		for _, k := range klines {
			if seen[k.OpenTime] {
				continue
			}
			p, err := fromKline(symbol, interval, k)
			if err != nil {
				return nil, err
			}
			seen[k.OpenTime] = true
			prices = append(prices, p)
		}

		f.log.Debug("Fetched candles",
			logger.String("symbol", symbol),
			logger.String("interval", string(interval)),
			logger.Int("count", len(klines)),
			logger.Time("from", currentStart),
			logger.Time("to", currentEnd))
		currentStart = currentStart.Add(chunk)
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].OpenTime.Before(prices[j].OpenTime) })
	metrics.CandlesFetched.WithLabelValues(symbol, string(interval)).Add(float64(len(prices)))
	return prices, nil
}

// Candles implements backtest.CandleSource straight from the exchange.
func (f *PriceFetcher) Candles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.PriceBar, error) {
	prices, err := f.FetchPrices(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return Bars(prices), nil
}

// Bars converts stored rows into engine candles.
func Bars(prices []models.Price) []models.PriceBar {
	bars := make([]models.PriceBar, len(prices))
	for i, p := range prices {
		bars[i] = p.Bar()
	}
	return bars
}

func fromKline(symbol string, interval models.Interval, k *futures.Kline) (models.Price, error) {
	fields := [...]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var values [len(fields)]float64
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Price{}, fmt.Errorf("%w: %s kline at %d: %q: %v",
				models.ErrMalformedBar, symbol, k.OpenTime, s, err)
		}
		values[i] = d.InexactFloat64()
	}
	return models.Price{
		Symbol:     symbol,
		TimeFrame:  string(interval),
		OpenTime:   time.UnixMilli(k.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(k.CloseTime).UTC(),
		Open:       values[0],
		High:       values[1],
		Low:        values[2],
		Close:      values[3],
		Volume:     values[4],
		TradeCount: k.TradeNum,
	}, nil
}
