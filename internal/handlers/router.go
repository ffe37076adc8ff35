package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CryptoTradeCore/internal/logger"
)

// ErrorHandler turns panics into the INTERNAL_ERROR envelope.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("Handler panic", logger.Any("panic", recovered), logger.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: CodeInternal, Message: "An unexpected error occurred"},
		})
	})
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("Request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)))
	}
}

// NewRouter registers every route. prices may be nil when no candle store is
// configured.
func NewRouter(backtests *BacktestHandler, strategies *StrategyHandler, prices *PriceHandler, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNop()
	}
	router := gin.New()
	router.Use(RequestLogger(log))
	router.Use(ErrorHandler(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtests.RunBacktest)
		api.GET("/backtest", backtests.ListBacktests)
		api.GET("/backtest/:id", backtests.GetBacktest)
		api.DELETE("/backtest/:id", backtests.DeleteBacktest)
		api.POST("/backtest/compare", backtests.CompareBacktests)
		api.POST("/backtest/optimize", backtests.OptimizeStrategy)

		api.GET("/strategies", strategies.ListStrategies)
		api.GET("/strategies/:kind/parameters", strategies.GetParameters)
		api.GET("/intervals", strategies.ListIntervals)

		if prices != nil {
			api.POST("/candles/sync", prices.SyncCandles)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: CodeNotFound, Message: "Not found"},
		})
	})
	return router
}
