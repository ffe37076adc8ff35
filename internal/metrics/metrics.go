package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BacktestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs finished, by strategy and status (ok, failed, cancelled).",
		},
		[]string{"strategy", "status"},
	)

	BacktestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of a single backtest run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"strategy"},
	)

	OptimizerCombinations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optimizer_combinations",
			Help: "Parameter combinations in the most recent optimizer sweep.",
		},
	)

	CandlesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_fetched_total",
			Help: "Candles retrieved from the exchange.",
		},
		[]string{"symbol", "interval"},
	)
)

func init() {
	prometheus.MustRegister(BacktestRuns, BacktestDuration, OptimizerCombinations, CandlesFetched)
}
