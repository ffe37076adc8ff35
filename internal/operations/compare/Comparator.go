package compare

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/services/strategy"
)

// Request compares every strategy on every symbol over one window with one
// starting capital.
type Request struct {
	Strategies     []strategy.Kind                       `json:"strategies"`
	Symbols        []string                              `json:"symbols"`
	Interval       models.Interval                       `json:"interval"`
	Start          time.Time                             `json:"start"`
	End            time.Time                             `json:"end"`
	InitialCapital float64                               `json:"initial_capital"`
	CommissionRate float64                               `json:"commission_rate"`
	Parameters     map[strategy.Kind]strategy.Parameters `json:"parameters,omitempty"`

	// Metrics to rank by; all metrics when empty.
	Metrics []backtest.Metric `json:"metrics,omitempty"`
}

type Entry struct {
	Strategy strategy.Kind                `json:"strategy"`
	Symbol   string                       `json:"symbol"`
	Metrics  *backtest.PerformanceMetrics `json:"metrics,omitempty"`
	Result   *backtest.BacktestResult     `json:"-"`
	Error    string                       `json:"error,omitempty"`
}

type RankedEntry struct {
	Rank        int           `json:"rank"`
	Strategy    strategy.Kind `json:"strategy"`
	Symbol      string        `json:"symbol"`
	Value       *float64      `json:"value"`
	TotalTrades int           `json:"total_trades"`
}

// Ranking orders the successful runs by one metric. Equal values go to the
// run with fewer trades, then to the earlier run; undefined values rank last.
type Ranking struct {
	Metric         backtest.Metric `json:"metric"`
	HigherIsBetter bool            `json:"higher_is_better"`
	Entries        []RankedEntry   `json:"entries"`
}

type Summary struct {
	Strategy       strategy.Kind `json:"strategy"`
	Runs           int           `json:"runs"`
	Failed         int           `json:"failed"`
	AverageReturn  float64       `json:"average_return_percent"`
	AverageWinRate float64       `json:"average_win_rate"`
	AverageSharpe  float64       `json:"average_sharpe_ratio"`
	WorstDrawdown  float64       `json:"worst_drawdown_percent"`
}

type Report struct {
	Interval       models.Interval `json:"interval"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	InitialCapital float64         `json:"initial_capital"`
	Runs           []Entry         `json:"runs"`
	Rankings       []Ranking       `json:"rankings"`
	Summaries      []Summary       `json:"summaries"`
	Failed         int             `json:"failed"`
}

type Comparator struct {
	engine  *backtest.Engine
	source  backtest.CandleSource
	workers int
	log     logger.Logger
}

func NewComparator(engine *backtest.Engine, source backtest.CandleSource, workers int, log logger.Logger) *Comparator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Comparator{engine: engine, source: source, workers: workers, log: log}
}

// Compare loads each symbol once and runs every strategy on the same candles.
// A run that fails is reported on its entry; only invalid requests and
// cancellation fail the whole comparison.
func (c *Comparator) Compare(ctx context.Context, req Request) (*Report, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	rankBy := req.Metrics
	if len(rankBy) == 0 {
		rankBy = backtest.Metrics()
	}

	candles := make(map[string][]models.PriceBar, len(req.Symbols))
	loadErrs := make(map[string]error)
	for _, symbol := range req.Symbols {
		if _, seen := candles[symbol]; seen {
			continue
		}
		bars, err := c.source.Candles(ctx, symbol, req.Interval, req.Start, req.End)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			loadErrs[symbol] = fmt.Errorf("load %s candles: %w", symbol, err)
		}
		candles[symbol] = bars
	}

	var jobs []backtest.Job
	entries := make([]Entry, 0, len(req.Strategies)*len(req.Symbols))
	slot := make([]int, 0, cap(entries)) // job index per entry, -1 when not run
	for _, kind := range req.Strategies {
		for _, symbol := range req.Symbols {
			entries = append(entries, Entry{Strategy: kind, Symbol: symbol})
			if err := loadErrs[symbol]; err != nil {
				entries[len(entries)-1].Error = err.Error()
				slot = append(slot, -1)
				continue
			}
			slot = append(slot, len(jobs))
			jobs = append(jobs, backtest.Job{
				Candles: candles[symbol],
				Request: backtest.Request{
					Strategy:       kind,
					Symbol:         symbol,
					Interval:       req.Interval,
					Parameters:     req.Parameters[kind],
					InitialCapital: req.InitialCapital,
					CommissionRate: req.CommissionRate,
					Start:          req.Start,
					End:            req.End,
				},
			})
		}
	}

	outcomes, err := c.engine.RunAll(ctx, jobs, c.workers)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Interval:       req.Interval,
		Start:          req.Start,
		End:            req.End,
		InitialCapital: req.InitialCapital,
	}
	for i := range entries {
		e := &entries[i]
		if slot[i] >= 0 {
			o := outcomes[slot[i]]
			if o.Err != nil {
				e.Error = o.Err.Error()
			} else {
				e.Result = o.Result
				e.Metrics = &o.Result.Metrics
			}
		}
		if e.Error != "" {
			report.Failed++
		}
	}
	report.Runs = entries
	for _, m := range rankBy {
		report.Rankings = append(report.Rankings, Rank(entries, m))
	}
	report.Summaries = summarize(req.Strategies, entries)

	if runErrs := report.Err(); runErrs != nil {
		c.log.Warn("Comparison finished with failed runs",
			logger.Int("failed", report.Failed),
			logger.Int("runs", len(entries)),
			logger.Err(runErrs))
	} else {
		c.log.Info("Comparison finished",
			logger.Int("strategies", len(req.Strategies)),
			logger.Int("symbols", len(req.Symbols)))
	}
	return report, nil
}

func validate(req Request) error {
	if len(req.Strategies) == 0 {
		return models.InvalidParameter("strategies", "at least one strategy", len(req.Strategies))
	}
	for _, k := range req.Strategies {
		if _, err := strategy.ParseKind(string(k)); err != nil {
			return err
		}
	}
	if len(req.Symbols) == 0 {
		return models.InvalidParameter("symbols", "at least one symbol", len(req.Symbols))
	}
	if req.InitialCapital <= 0 {
		return models.InvalidParameter("initial_capital", "a positive amount", req.InitialCapital)
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.Start.Before(req.End) {
		return fmt.Errorf("%w: start %s is not before end %s", models.ErrInvalidDateRange,
			req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
	}
	for _, m := range req.Metrics {
		if _, err := backtest.ParseMetric(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// Rank orders the successful entries by m.
func Rank(entries []Entry, m backtest.Metric) Ranking {
	type scored struct {
		entry   *Entry
		value   float64
		defined bool
	}
	var runs []scored
	for i := range entries {
		e := &entries[i]
		if e.Metrics == nil {
			continue
		}
		v, ok := m.Value(*e.Metrics)
		runs = append(runs, scored{entry: e, value: v, defined: ok})
	}

	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if a.defined != b.defined {
			return a.defined
		}
		if a.defined {
			if m.Better(a.value, b.value) {
				return true
			}
			if m.Better(b.value, a.value) {
				return false
			}
		}
		return a.entry.Metrics.TotalTrades < b.entry.Metrics.TotalTrades
	})

	r := Ranking{Metric: m, HigherIsBetter: m.HigherIsBetter(), Entries: make([]RankedEntry, len(runs))}
	for i, s := range runs {
		re := RankedEntry{
			Rank:        i + 1,
			Strategy:    s.entry.Strategy,
			Symbol:      s.entry.Symbol,
			TotalTrades: s.entry.Metrics.TotalTrades,
		}
		if s.defined {
			v := s.value
			re.Value = &v
		}
		r.Entries[i] = re
	}
	return r
}

func summarize(kinds []strategy.Kind, entries []Entry) []Summary {
	out := make([]Summary, 0, len(kinds))
	for _, kind := range kinds {
		s := Summary{Strategy: kind}
		for _, e := range entries {
			if e.Strategy != kind {
				continue
			}
			if e.Metrics == nil {
				s.Failed++
				continue
			}
			s.Runs++
			s.AverageReturn += e.Metrics.TotalReturnPercent
			s.AverageWinRate += e.Metrics.WinRate
			s.AverageSharpe += e.Metrics.SharpeRatio
			if e.Metrics.MaxDrawdownPercent > s.WorstDrawdown {
				s.WorstDrawdown = e.Metrics.MaxDrawdownPercent
			}
		}
		if s.Runs > 0 {
			n := float64(s.Runs)
			s.AverageReturn /= n
			s.AverageWinRate /= n
			s.AverageSharpe /= n
		}
		out = append(out, s)
	}
	return out
}

// Err joins the errors of the failed runs, nil when every run succeeded.
func (r *Report) Err() error {
	var err error
	for _, e := range r.Runs {
		if e.Error != "" {
			err = multierr.Append(err, fmt.Errorf("%s/%s: %s", e.Strategy, e.Symbol, e.Error))
		}
	}
	return err
}
