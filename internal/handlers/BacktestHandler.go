package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/operations/compare"
	"CryptoTradeCore/internal/operations/optimize"
	"CryptoTradeCore/internal/repositories"
)

// BacktestHandler serves single runs, comparisons and optimizer sweeps.
type BacktestHandler struct {
	engine     *backtest.Engine
	source     backtest.CandleSource
	store      repositories.ResultStore
	comparator *compare.Comparator
	optimizer  *optimize.Optimizer
	defaults   Defaults
	log        logger.Logger
}

// NewBacktestHandler wires the handler. store may be nil, in which case runs
// are not persisted and lookups by id report not found.
func NewBacktestHandler(
	engine *backtest.Engine,
	source backtest.CandleSource,
	store repositories.ResultStore,
	comparator *compare.Comparator,
	optimizer *optimize.Optimizer,
	defaults Defaults,
	log logger.Logger,
) *BacktestHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &BacktestHandler{
		engine:     engine,
		source:     source,
		store:      store,
		comparator: comparator,
		optimizer:  optimizer,
		defaults:   defaults,
		log:        log,
	}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var body BacktestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err)
		return
	}
	req := body.toRequest(h.defaults)
	if req.Symbol == "" {
		respondBadRequest(c, fmt.Errorf("symbol is required"))
		return
	}

	candles, err := h.source.Candles(c.Request.Context(), req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		h.log.Error("Failed to load candles", logger.String("symbol", req.Symbol), logger.Err(err))
		respondError(c, err)
		return
	}
	result, err := h.engine.Run(candles, req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := BacktestResponse{Result: result}
	if h.store != nil {
		id, err := h.store.Save(c.Request.Context(), result)
		if err != nil {
			// the run itself succeeded
			h.log.Error("Failed to persist backtest", logger.Err(err))
		}
		resp.RunID = id
	}
	if !body.IncludeEquityCurve {
		trimmed := *result
		trimmed.EquityCurve = nil
		resp.Result = &trimmed
	}
	c.JSON(http.StatusOK, resp)
}

// GetBacktest handles GET /api/v1/backtest/:id
func (h *BacktestHandler) GetBacktest(c *gin.Context) {
	if h.store == nil {
		respondError(c, repositories.ErrRunNotFound)
		return
	}
	run, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListBacktests handles GET /api/v1/backtest
func (h *BacktestHandler) ListBacktests(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []any{}})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondBadRequest(c, fmt.Errorf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}
	runs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// DeleteBacktest handles DELETE /api/v1/backtest/:id
func (h *BacktestHandler) DeleteBacktest(c *gin.Context) {
	if h.store == nil {
		respondError(c, repositories.ErrRunNotFound)
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CompareBacktests handles POST /api/v1/backtest/compare
func (h *BacktestHandler) CompareBacktests(c *gin.Context) {
	var body CompareRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err)
		return
	}
	report, err := h.comparator.Compare(c.Request.Context(), body.toRequest(h.defaults))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// OptimizeStrategy handles POST /api/v1/backtest/optimize
func (h *BacktestHandler) OptimizeStrategy(c *gin.Context) {
	var body OptimizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err)
		return
	}
	result, err := h.optimizer.Optimize(c.Request.Context(), body.toRequest(h.defaults))
	if err != nil {
		respondError(c, err)
		return
	}
	if !body.IncludeAllResults {
		result.Trials = nil
	}
	c.JSON(http.StatusOK, result)
}
