package backtest

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"CryptoTradeCore/internal/logger"
	"CryptoTradeCore/internal/metrics"
)

// RunAll executes jobs on up to workers goroutines (GOMAXPROCS when
// workers <= 0) and returns one Outcome per job in input order. A failing
// run is reported on its Outcome and never stops the batch. Cancellation is
// checked before each run starts; runs already in progress finish, and the
// context error is returned alongside the outcomes gathered so far.
func (e *Engine) RunAll(ctx context.Context, jobs []Job, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]Outcome, len(jobs))
	for i, job := range jobs {
		outcomes[i].Request = job.Request
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i].Result, outcomes[i].Err = e.runObserved(jobs[i])
			return nil
		})
	}
	werr := g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range outcomes {
			if outcomes[i].Result == nil && outcomes[i].Err == nil {
				outcomes[i].Err = err
				metrics.BacktestRuns.WithLabelValues(string(outcomes[i].Request.Strategy), "cancelled").Inc()
			}
		}
		e.log.Warn("Backtest batch cancelled",
			logger.Int("jobs", len(jobs)), logger.Err(err))
		return outcomes, err
	}
	if werr != nil {
		return outcomes, werr
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	e.log.Info("Backtest batch finished",
		logger.Int("jobs", len(jobs)),
		logger.Int("failed", failed),
		logger.Int("workers", workers),
		logger.Duration("elapsed", time.Since(started)))
	return outcomes, nil
}

func (e *Engine) runObserved(job Job) (*BacktestResult, error) {
	label := string(job.Request.Strategy)
	start := time.Now()
	res, err := e.Run(job.Candles, job.Request)
	metrics.BacktestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.BacktestRuns.WithLabelValues(label, status).Inc()
	return res, err
}
