package optimize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/metrics"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/services/strategy"
)

const (
	DefaultMaxCombinations = 10000
	DefaultTopN            = 10
)

type Request struct {
	Strategy       strategy.Kind   `json:"strategy"`
	Symbol         string          `json:"symbol"`
	Interval       models.Interval `json:"interval"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	InitialCapital float64         `json:"initial_capital"`
	CommissionRate float64         `json:"commission_rate"`

	// Space to sweep; the suggested space of Strategy when empty.
	Space Space `json:"parameter_space"`

	// Fixed overrides applied under every combination.
	BaseParameters strategy.Parameters `json:"base_parameters,omitempty"`
	Metric         backtest.Metric     `json:"metric"`
	TopN           int                 `json:"top_n"`
}

// Trial is one evaluated combination. Score is nil when the run failed or
// the metric is undefined for it.
type Trial struct {
	Index      int                          `json:"index"`
	Parameters strategy.Parameters          `json:"parameters"`
	Score      *float64                     `json:"score"`
	Metrics    *backtest.PerformanceMetrics `json:"metrics,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

type Result struct {
	Strategy          strategy.Kind       `json:"strategy"`
	Symbol            string              `json:"symbol"`
	Metric            backtest.Metric     `json:"metric"`
	BestParameters    strategy.Parameters `json:"best_parameters"`
	BestScore         *float64            `json:"best_score"`
	Best              *Trial              `json:"best,omitempty"`
	TotalCombinations int                 `json:"total_combinations"`
	Successful        int                 `json:"successful"`
	Failed            int                 `json:"failed"`
	Top               []Trial             `json:"top"`
	Trials            []Trial             `json:"all_results"`
	Elapsed           time.Duration       `json:"elapsed_ns"`
}

type Optimizer struct {
	engine          *backtest.Engine
	source          backtest.CandleSource
	workers         int
	maxCombinations int
	log             logger.Logger
}

func NewOptimizer(engine *backtest.Engine, source backtest.CandleSource, workers, maxCombinations int, log logger.Logger) *Optimizer {
	if maxCombinations <= 0 {
		maxCombinations = DefaultMaxCombinations
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Optimizer{engine: engine, source: source, workers: workers, maxCombinations: maxCombinations, log: log}
}

// Optimize runs one backtest per combination of req.Space and picks the best
// score. Ties keep the first combination in enumeration order. Cancellation
// is honoured between runs and discards the partial sweep.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	if _, err := strategy.ParseKind(string(req.Strategy)); err != nil {
		return nil, err
	}
	metric, err := backtest.ParseMetric(string(req.Metric))
	if err != nil {
		return nil, err
	}
	space := req.Space
	if len(space) == 0 {
		if space, err = SuggestedSpace(req.Strategy); err != nil {
			return nil, err
		}
	}
	if err := space.Validate(req.Strategy, o.maxCombinations); err != nil {
		return nil, err
	}
	combos, err := space.Combinations()
	if err != nil {
		return nil, err
	}
	metrics.OptimizerCombinations.Set(float64(len(combos)))

	candles, err := o.source.Candles(ctx, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("load %s candles: %w", req.Symbol, err)
	}

	jobs := make([]backtest.Job, len(combos))
	for i, combo := range combos {
		params := req.BaseParameters.Clone()
		for k, v := range combo {
			params[k] = v
		}
		combos[i] = params
		jobs[i] = backtest.Job{
			Candles: candles,
			Request: backtest.Request{
				Strategy:       req.Strategy,
				Symbol:         req.Symbol,
				Interval:       req.Interval,
				Parameters:     params,
				InitialCapital: req.InitialCapital,
				CommissionRate: req.CommissionRate,
				Start:          req.Start,
				End:            req.End,
			},
		}
	}

	o.log.Info("Starting parameter sweep",
		logger.String("strategy", string(req.Strategy)),
		logger.String("symbol", req.Symbol),
		logger.String("metric", string(metric)),
		logger.Int("combinations", len(combos)))

	started := time.Now()
	outcomes, err := o.engine.RunAll(ctx, jobs, o.workers)
	if err != nil {
		return nil, fmt.Errorf("parameter sweep interrupted: %w", err)
	}

	res := &Result{
		Strategy:          req.Strategy,
		Symbol:            req.Symbol,
		Metric:            metric,
		TotalCombinations: len(combos),
		Trials:            make([]Trial, len(outcomes)),
	}
	for i, out := range outcomes {
		t := Trial{Index: i, Parameters: combos[i]}
		if out.Err != nil {
			t.Error = out.Err.Error()
			res.Failed++
		} else {
			res.Successful++
			t.Metrics = &out.Result.Metrics
			t.Parameters = out.Result.Parameters
			if v, ok := metric.Value(out.Result.Metrics); ok {
				t.Score = &v
			}
		}
		res.Trials[i] = t
	}

	for i := range res.Trials {
		t := &res.Trials[i]
		if t.Score == nil {
			continue
		}
		if res.Best == nil || metric.Better(*t.Score, *res.Best.Score) {
			res.Best = t
		}
	}
	if res.Best != nil {
		res.BestParameters = res.Best.Parameters
		res.BestScore = res.Best.Score
	}

	topN := req.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	res.Top = top(res.Trials, metric, topN)
	res.Elapsed = time.Since(started)

	o.log.Info("Parameter sweep finished",
		logger.Int("successful", res.Successful),
		logger.Int("failed", res.Failed),
		logger.Duration("elapsed", res.Elapsed))
	return res, nil
}

// top returns the n best scored trials, earlier trials first on ties.
func top(trials []Trial, metric backtest.Metric, n int) []Trial {
	var scored []Trial
	for _, t := range trials {
		if t.Score != nil {
			scored = append(scored, t)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return metric.Better(*scored[i].Score, *scored[j].Score)
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
