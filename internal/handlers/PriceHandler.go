package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/price"
)

// Recorder is the candle backfill used by PriceHandler.
type Recorder interface {
	Sync(ctx context.Context, symbols []string, intervals []models.Interval, lookback time.Duration) ([]price.SyncResult, error)
}

var _ Recorder = (*price.PriceRecorder)(nil)

const defaultLookbackDays = 30

// PriceHandler keeps stored candles current, on demand or on a ticker.
type PriceHandler struct {
	recorder  Recorder
	symbols   []string
	intervals []models.Interval
	log       logger.Logger
}

func NewPriceHandler(recorder Recorder, symbols []string, intervals []models.Interval, log logger.Logger) *PriceHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceHandler{recorder: recorder, symbols: symbols, intervals: intervals, log: log}
}

type SyncRequest struct {
	Symbols      []string          `json:"symbols"`
	Intervals    []models.Interval `json:"intervals"`
	LookbackDays int               `json:"lookback_days"`
}

// SyncCandles handles POST /api/v1/candles/sync
func (h *PriceHandler) SyncCandles(c *gin.Context) {
	var body SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	symbols, intervals := body.Symbols, body.Intervals
	if len(symbols) == 0 {
		symbols = h.symbols
	}
	if len(intervals) == 0 {
		intervals = h.intervals
	}
	for _, i := range intervals {
		if _, err := models.ParseInterval(string(i)); err != nil {
			respondError(c, err)
			return
		}
	}
	days := body.LookbackDays
	if days == 0 {
		days = defaultLookbackDays
	}
	if days < 0 {
		respondError(c, models.InvalidParameter("lookback_days", "a positive integer", days))
		return
	}

	results, err := h.recorder.Sync(c.Request.Context(), symbols, intervals, time.Duration(days)*24*time.Hour)
	status := http.StatusOK
	if err != nil {
		// per-pair failures are reported in the results
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": results})
}

// Start syncs the configured pairs immediately and then every period until
// ctx is done.
func (h *PriceHandler) Start(ctx context.Context, every, lookback time.Duration) {
	run := func() {
		if _, err := h.recorder.Sync(ctx, h.symbols, h.intervals, lookback); err != nil && ctx.Err() == nil {
			h.log.Warn("Scheduled candle sync incomplete", logger.Err(err))
		}
	}
	run()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for   {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
