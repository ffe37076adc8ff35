package backtest

import (
	"fmt"
	"sort"
	"time"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/strategy"
)

// Engine runs backtests. It holds no per-run state, so one Engine serves
// any number of concurrent runs.
type Engine struct {
	log logger.Logger
}

func NewEngine(log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{log: log}
}

// Run replays candles through the requested strategy and a fresh portfolio.
// Candles outside [req.Start, req.End] are ignored.
func (e *Engine) Run(candles []models.PriceBar, req Request) (*BacktestResult, error) {
	s, err := strategy.New(req.Strategy, req.Parameters)
	if err != nil {
		return nil, err
	}
	if req.InitialCapital <= 0 {
		return nil, models.InvalidParameter("initial_capital", "a positive amount", req.InitialCapital)
	}
	if req.CommissionRate < 0 || req.CommissionRate >= 1 {
		return nil, models.InvalidParameter("commission_rate", "in [0, 1)", req.CommissionRate)
	}
	interval := req.Interval
	if interval == "" {
		interval = models.Interval1h
	}
	if _, err := models.ParseInterval(string(interval)); err != nil {
		return nil, err
	}

	bars, err := window(candles, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Symbol, interval, err)
	}

	eval, err := s.Prepare(req.Symbol, bars)
	if err != nil {
		return nil, err
	}

	p := NewPortfolio(req.Symbol, req.InitialCapital, req.CommissionRate, s.Risk())
	state := s.NewState()
	curve := make([]EquityPoint, 0, len(bars))
	var trades []Trade

	for i, bar := range bars {
		sig := eval.Evaluate(i, state)
		fills := p.Apply(sig, bar)
		state.Observe(sig, signalFill(fills), p.Quantity())
		trades = append(trades, fills...)
		curve = append(curve, p.Mark(bar))
	}

	last := bars[len(bars)-1]
	if t, ok := p.CloseAll(last, ReasonEndOfData); ok {
		trades = append(trades, t)
		curve[len(curve)-1] = p.Mark(last)
	}

	result := &BacktestResult{
		Strategy:       req.Strategy,
		Symbol:         req.Symbol,
		Interval:       interval,
		Parameters:     s.Parameters().Clone(),
		InitialCapital: req.InitialCapital,
		CommissionRate: req.CommissionRate,
		StartTime:      bars[0].Timestamp,
		EndTime:        last.Timestamp,
		Bars:           len(bars),
		EquityCurve:    curve,
		Trades:         trades,
	}
	result.Metrics = ComputeMetrics(curve, trades, req.InitialCapital, interval)

	e.log.Debug("Backtest finished",
		logger.String("strategy", string(req.Strategy)),
		logger.String("symbol", req.Symbol),
		logger.Int("bars", len(bars)),
		logger.Int("trades", result.Metrics.TotalTrades),
		logger.Float64("total_return_percent", result.Metrics.TotalReturnPercent))
	return result, nil
}

// signalFill is the quantity traded for the bar's own signal, risk exits
// excluded.
func signalFill(fills []Trade) float64 {
	q := 0.0
	for _, t := range fills {
		if t.Reason == ReasonSignal {
			q += t.Quantity
		}
	}
	return q
}

// window selects the candles inside [start, end]. Candles are expected in
// ascending order; ValidateBars rejects anything else afterwards.
func window(candles []models.PriceBar, start, end time.Time) ([]models.PriceBar, error) {
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s",
			models.ErrInvalidDateRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	lo, hi := 0, len(candles)
	if !start.IsZero() {
		lo = sort.Search(len(candles), func(i int) bool { return !candles[i].Timestamp.Before(start) })
	}
	if !end.IsZero() {
		hi = sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp.After(end) })
	}
	if lo >= hi {
		return nil, fmt.Errorf("%w: no candles between %s and %s",
			models.ErrInvalidDateRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return candles[lo:hi], nil
}
