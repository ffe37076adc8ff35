package binance

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"CryptoTradeCore/internal/logger"
)

// MaxKlinesPerRequest is the largest page the klines endpoint returns.
const MaxKlinesPerRequest = 1500

type BinanceClient struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	log         logger.Logger
}

func NewBinanceClient(apiKey, secretKey string, log logger.Logger) *BinanceClient {
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	if log == nil {
		log = logger.NewNop()
	}
	return &BinanceClient{
		client: futuresClient,
		// 10 requests per second with a burst of 20
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
		maxRetries:  3,
		backoff:     100 * time.Millisecond,
		log:         log,
	}
}

// GetKlines fetches one page of klines between startTime and endTime (unix
// milliseconds), retrying with exponential backoff.
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]*futures.Kline, error) {
	if limit <= 0 || limit > MaxKlinesPerRequest {
		limit = MaxKlinesPerRequest
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startTime).
			EndTime(endTime).
			Limit(limit).
			Do(ctx)
		if err == nil {
			return klines, nil
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
		c.log.Warn("Kline request failed, retrying",
			logger.String("symbol", symbol),
			logger.String("interval", interval),
			logger.Int("attempt", attempt+1),
			logger.Duration("wait", waitTime),
			logger.Err(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return nil, lastErr
}
