package handlers

import (
	"time"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/operations/compare"
	"CryptoTradeCore/internal/operations/optimize"
	"CryptoTradeCore/internal/services/strategy"
)

// Defaults fill the fields a request leaves out.
type Defaults struct {
	InitialCapital float64
	CommissionRate float64
	Interval       models.Interval
}

// window is shared by every run request. CommissionRate is a pointer so an
// explicit zero is kept.
type window struct {
	Symbol         string          `json:"symbol"`
	Interval       models.Interval `json:"interval"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	InitialCapital float64         `json:"initial_capital"`
	CommissionRate *float64        `json:"commission_rate"`
}

func (w window) resolve(d Defaults) (models.Interval, float64, float64) {
	interval, capital, commission := w.Interval, w.InitialCapital, d.CommissionRate
	if interval == "" {
		interval = d.Interval
	}
	if capital == 0 {
		capital = d.InitialCapital
	}
	if w.CommissionRate != nil {
		commission = *w.CommissionRate
	}
	return interval, capital, commission
}

type BacktestRequest struct {
	window
	Strategy   strategy.Kind       `json:"strategy" binding:"required"`
	Parameters strategy.Parameters `json:"parameters"`

	IncludeEquityCurve bool `json:"include_equity_curve"`
}

func (r BacktestRequest) toRequest(d Defaults) backtest.Request {
	interval, capital, commission := r.resolve(d)
	return backtest.Request{
		Strategy:       r.Strategy,
		Symbol:         r.Symbol,
		Interval:       interval,
		Parameters:     r.Parameters,
		InitialCapital: capital,
		CommissionRate: commission,
		Start:          r.Start,
		End:            r.End,
	}
}

type BacktestResponse struct {
	RunID  string                   `json:"run_id,omitempty"`
	Result *backtest.BacktestResult `json:"result"`
}

type CompareRequest struct {
	window
	Strategies []strategy.Kind                       `json:"strategies" binding:"required"`
	Symbols    []string                              `json:"symbols"`
	Parameters map[strategy.Kind]strategy.Parameters `json:"parameters"`
	Metrics    []backtest.Metric                     `json:"metrics"`
}

func (r CompareRequest) toRequest(d Defaults) compare.Request {
	interval, capital, commission := r.resolve(d)
	symbols := r.Symbols
	if len(symbols) == 0 && r.Symbol != "" {
		symbols = []string{r.Symbol}
	}
	return compare.Request{
		Strategies:     r.Strategies,
		Symbols:        symbols,
		Interval:       interval,
		Start:          r.Start,
		End:            r.End,
		InitialCapital: capital,
		CommissionRate: commission,
		Parameters:     r.Parameters,
		Metrics:        r.Metrics,
	}
}

type OptimizeRequest struct {
	window
	Strategy       strategy.Kind       `json:"strategy" binding:"required"`
	Space          optimize.Space      `json:"parameter_space"`
	BaseParameters strategy.Parameters `json:"base_parameters"`
	Metric         backtest.Metric     `json:"metric"`
	TopN           int                 `json:"top_n"`

	IncludeAllResults bool `json:"include_all_results"`
}

func (r OptimizeRequest) toRequest(d Defaults) optimize.Request {
	interval, capital, commission := r.resolve(d)
	return optimize.Request{
		Strategy:       r.Strategy,
		Symbol:         r.Symbol,
		Interval:       interval,
		Start:          r.Start,
		End:            r.End,
		InitialCapital: capital,
		CommissionRate: commission,
		Space:          r.Space,
		BaseParameters: r.BaseParameters,
		Metric:         r.Metric,
		TopN:           r.TopN,
	}
}
