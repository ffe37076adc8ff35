package backtest

import (
	"fmt"
	"math"
	"time"

	"CryptoTradeCore/internal/models"
)

// ComputeMetrics derives the performance metrics of a run. Periodic returns
// start from initial capital, so the first bar's change counts too.
func ComputeMetrics(curve []EquityPoint, trades []Trade, initial float64, interval models.Interval) PerformanceMetrics {
	m := PerformanceMetrics{FinalEquity: initial}
	if len(curve) > 0 {
		m.FinalEquity = curve[len(curve)-1].Equity
	}
	m.TotalReturn = m.FinalEquity - initial
	m.TotalReturnPercent = m.TotalReturn / initial * 100
	m.MaxDrawdownPercent = maxDrawdown(curve, initial)

	returns := periodReturns(curve, initial)
	ppy := interval.PeriodsPerYear()
	m.SharpeRatio = sharpe(returns, ppy)
	m.SortinoRatio = sortino(returns, ppy)
	if len(curve) > 0 {
		span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp) + interval.Duration()
		m.AnnualizedReturn = annualize(m.TotalReturnPercent, span)
	}

	var wins, losses, returnSum, duration float64
	for _, t := range trades {
		m.TotalFees += t.Fee
		if !t.closes() {
			continue
		}
		m.TotalTrades++
		returnSum += t.ReturnPercent
		duration += t.Timestamp.Sub(t.EntryTime).Hours()
		switch {
		case t.RealizedPnL > 0:
			m.WinningTrades++
			wins += t.RealizedPnL
			m.LargestWin = math.Max(m.LargestWin, t.RealizedPnL)
		case t.RealizedPnL < 0:
			m.LosingTrades++
			losses += t.RealizedPnL
			m.LargestLoss = math.Min(m.LargestLoss, t.RealizedPnL)
		}
	}
	if m.TotalTrades > 0 {
		n := float64(m.TotalTrades)
		m.WinRate = float64(m.WinningTrades) / n * 100
		m.AverageTradeReturn = returnSum / n
		m.AverageTradeDuration = duration / n
	}
	if m.WinningTrades > 0 {
		m.AverageWin = wins / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = losses / float64(m.LosingTrades)
	}
	if pf, err := ProfitFactor(trades); err == nil {
		m.ProfitFactor = &pf
	}
	return m
}

// ProfitFactor is gross profit over gross loss of the closed trades. It
// returns ErrDivisionUndefined when no trade lost money.
func ProfitFactor(trades []Trade) (float64, error) {
	var gain, loss float64
	for _, t := range trades {
		if !t.closes() {
			continue
		}
		if t.RealizedPnL > 0 {
			gain += t.RealizedPnL
		} else {
			loss -= t.RealizedPnL
		}
	}
	if loss == 0 {
		return 0, fmt.Errorf("%w: profit factor without losing trades", models.ErrDivisionUndefined)
	}
	return gain / loss, nil
}

// maxDrawdown is the largest peak-to-trough decline as a positive percent.
func maxDrawdown(curve []EquityPoint, initial float64) float64 {
	peak, worst := initial, 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak*100)
		}
	}
	return worst
}

func periodReturns(curve []EquityPoint, initial float64) []float64 {
	returns := make([]float64, 0, len(curve))
	prev := initial
	for _, p := range curve {
		r := 0.0
		if prev > 0 {
			r = p.Equity/prev - 1
		}
		returns = append(returns, r)
		prev = p.Equity
	}
	return returns
}

func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stdev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(periodsPerYear)
}

// sortino keeps the full mean in the numerator and only the downside
// returns in the deviation.
func sortino(returns []float64, periodsPerYear float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	sd := stdev(downside)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(periodsPerYear)
}

func annualize(totalPercent float64, span time.Duration) float64 {
	days := span.Hours() / 24
	if days <= 0 {
		return totalPercent
	}
	growth := 1 + totalPercent/100
	if growth <= 0 {
		return -100
	}
	return (math.Pow(growth, 365/days) - 1) * 100
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation.
func stdev(xs []float64) float64 {
	mu := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Metric names a PerformanceMetrics field that runs can be ranked by.
type Metric string

const (
	MetricSharpeRatio        Metric = "sharpe_ratio"
	MetricSortinoRatio       Metric = "sortino_ratio"
	MetricTotalReturn        Metric = "total_return"
	MetricAnnualizedReturn   Metric = "annualized_return"
	MetricWinRate            Metric = "win_rate"
	MetricProfitFactor       Metric = "profit_factor"
	MetricMaxDrawdown        Metric = "max_drawdown"
	MetricAverageTradeReturn Metric = "average_trade_return"
)

func Metrics() []Metric {
	return []Metric{
		MetricSharpeRatio, MetricSortinoRatio, MetricTotalReturn, MetricAnnualizedReturn,
		MetricWinRate, MetricProfitFactor, MetricMaxDrawdown, MetricAverageTradeReturn,
	}
}

// ParseMetric validates s, defaulting to sharpe_ratio when empty.
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return MetricSharpeRatio, nil
	}
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", models.InvalidParameter("metric", "a known metric name", s)
}

// HigherIsBetter is false only for drawdown.
func (m Metric) HigherIsBetter() bool { return m != MetricMaxDrawdown }

// Value reads the metric from pm. ok is false when the value is undefined,
// which only happens for profit_factor without losing trades.
func (m Metric) Value(pm PerformanceMetrics) (v float64, ok bool) {
	switch m {
	case MetricSharpeRatio:
		return pm.SharpeRatio, true
	case MetricSortinoRatio:
		return pm.SortinoRatio, true
	case MetricTotalReturn:
		return pm.TotalReturnPercent, true
	case MetricAnnualizedReturn:
		return pm.AnnualizedReturn, true
	case MetricWinRate:
		return pm.WinRate, true
	case MetricProfitFactor:
		if pm.ProfitFactor == nil {
			return 0, false
		}
		return *pm.ProfitFactor, true
	case MetricMaxDrawdown:
		return pm.MaxDrawdownPercent, true
	case MetricAverageTradeReturn:
		return pm.AverageTradeReturn, true
	}
	return 0, false
}

// Better reports whether a beats b under m. Equal values are not better.
func (m Metric) Better(a, b float64) bool {
	if m.HigherIsBetter() {
		return a > b
	}
	return a < b
}
