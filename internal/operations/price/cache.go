package price

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
)

var (
	_ backtest.CandleSource = (*CachedSource)(nil)
	_ backtest.CandleSource = (*PriceFetcher)(nil)
)

// candleRecord is the on-disk schema of a cached candle.
type candleRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetCache keeps one parquet file of candles per symbol and interval.
// Layout: <dir>/candles/<SYMBOL>/<interval>.parquet
type ParquetCache struct {
	dir string
	mu  sync.Mutex
}

func NewParquetCache(dir string) *ParquetCache {
	return &ParquetCache{dir: dir}
}

func (c *ParquetCache) path(symbol string, interval models.Interval) string {
	return filepath.Join(c.dir, "candles", strings.ToUpper(symbol), string(interval)+".parquet")
}

// Load returns every cached candle, nil when nothing is cached yet.
func (c *ParquetCache) Load(symbol string, interval models.Interval) ([]models.PriceBar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(symbol, interval)
}

func (c *ParquetCache) load(symbol string, interval models.Interval) ([]models.PriceBar, error) {
	path := c.path(symbol, interval)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[candleRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read %s %s cache: %w", symbol, interval, err)
	}
	bars := make([]models.PriceBar, len(rows))
	for i, r := range rows {
		bars[i] = models.PriceBar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

// Merge adds bars to the cache, replacing cached candles with the same
// timestamp, and returns the merged series.
func (c *ParquetCache) Merge(symbol string, interval models.Interval, bars []models.PriceBar) ([]models.PriceBar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.load(symbol, interval)
	if err != nil {
		return nil, err
	}
	byTime := make(map[int64]models.PriceBar, len(existing)+len(bars))
	for _, b := range existing {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	for _, b := range bars {
		byTime[b.Timestamp.UnixMilli()] = b
	}

	merged := make([]models.PriceBar, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

	records := make([]candleRecord, len(merged))
	for i, b := range merged {
		records[i] = candleRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	path := c.path(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return nil, fmt.Errorf("write %s %s cache: %w", symbol, interval, err)
	}
	return merged, nil
}

// CachedSource serves candles from a ParquetCache and falls back to an
// upstream source for ranges the cache does not cover.
type CachedSource struct {
	cache    *ParquetCache
	upstream backtest.CandleSource
	log      logger.Logger
}

func NewCachedSource(cache *ParquetCache, upstream backtest.CandleSource, log logger.Logger) *CachedSource {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedSource{cache: cache, upstream: upstream, log: log}
}

func (s *CachedSource) Candles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.PriceBar, error) {
	cached, err := s.cache.Load(symbol, interval)
	if err != nil {
		return nil, err
	}
	if covers(cached, interval, start, end) {
		return slice(cached, start, end), nil
	}
	if start.IsZero() || end.IsZero() {
		// an open range can only be answered from what is cached
		if len(cached) > 0 {
			return slice(cached, start, end), nil
		}
		return nil, fmt.Errorf("%w: no cached %s %s candles for an open range", models.ErrInvalidDateRange, symbol, interval)
	}

	fetched, err := s.upstream.Candles(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	merged, err := s.cache.Merge(symbol, interval, fetched)
	if err != nil {
		s.log.Warn("Candle cache not updated",
			logger.String("symbol", symbol), logger.String("interval", string(interval)), logger.Err(err))
		return fetched, nil
	}
	s.log.Info("Candle cache updated",
		logger.String("symbol", symbol),
		logger.String("interval", string(interval)),
		logger.Int("fetched", len(fetched)),
		logger.Int("cached", len(merged)))
	return slice(merged, start, end), nil
}

// covers reports whether bars hold every candle of [start, end]: no step
// between consecutive cached candles, or at either edge, reaches past one
// interval.
func covers(bars []models.PriceBar, interval models.Interval, start, end time.Time) bool {
	if len(bars) == 0 || start.IsZero() || end.IsZero() {
		return false
	}
	step := interval.Duration()
	in := slice(bars, start, end)
	if len(in) == 0 {
		return false
	}
	if in[0].Timestamp.Sub(start) >= step || end.Sub(in[len(in)-1].Timestamp) >= step {
		return false
	}
	for i := 1; i < len(in); i++ {
		if in[i].Timestamp.Sub(in[i-1].Timestamp) > step {
			return false
		}
	}
	return true
}

func slice(bars []models.PriceBar, start, end time.Time) []models.PriceBar {
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
