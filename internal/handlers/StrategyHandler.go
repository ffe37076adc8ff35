package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/optimize"
	"CryptoTradeCore/internal/services/strategy"
)

// StrategyHandler exposes the strategy catalogue.
type StrategyHandler struct{}

func NewStrategyHandler() *StrategyHandler {
	return &StrategyHandler{}
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategy.Catalog()})
}

// GetParameters handles GET /api/v1/strategies/:kind/parameters
func (h *StrategyHandler) GetParameters(c *gin.Context) {
	kind, err := strategy.ParseKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	defaults, err := strategy.Defaults(kind)
	if err != nil {
		respondError(c, err)
		return
	}
	space, err := optimize.SuggestedSpace(kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy":        kind,
		"defaults":        defaults,
		"parameter_space": space,
	})
}

// ListIntervals handles GET /api/v1/intervals
func (h *StrategyHandler) ListIntervals(c *gin.Context) {
	type interval struct {
		Interval       models.Interval `json:"interval"`
		Seconds        float64         `json:"seconds"`
		PeriodsPerYear float64         `json:"periods_per_year"`
	}
	var out []interval
	for _, i := range models.Intervals() {
		out = append(out, interval{Interval: i, Seconds: i.Duration().Seconds(), PeriodsPerYear: i.PeriodsPerYear()})
	}
	c.JSON(http.StatusOK, gin.H{"intervals": out})
}
