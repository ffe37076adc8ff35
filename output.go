package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"CryptoTradeCore/internal/operations/backtest"
	"CryptoTradeCore/internal/operations/compare"
	"CryptoTradeCore/internal/operations/optimize"
)

func printResult(w io.Writer, r *backtest.BacktestResult) {
	m := r.Metrics
	fmt.Fprintf(w, "\n=== Backtest Results: %s %s %s ===\n", r.Strategy, r.Symbol, r.Interval)
	fmt.Fprintf(w, "Period: %s -> %s (%d bars)\n", r.StartTime.Format("2006-01-02 15:04"), r.EndTime.Format("2006-01-02 15:04"), r.Bars)
	fmt.Fprintf(w, "Total Trades: %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Winning Trades: %d (%.2f%%)\n", m.WinningTrades, m.WinRate)
	fmt.Fprintf(w, "Total Return: $%.2f (%.2f%%)\n", m.TotalReturn, m.TotalReturnPercent)
	fmt.Fprintf(w, "Annualized Return: %.2f%%\n", m.AnnualizedReturn)
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", m.MaxDrawdownPercent)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Sortino Ratio: %.2f\n", m.SortinoRatio)
	if m.ProfitFactor != nil {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", *m.ProfitFactor)
	} else {
		fmt.Fprintln(w, "Profit Factor: n/a")
	}
	fmt.Fprintf(w, "Fees: $%.2f\n", m.TotalFees)
	fmt.Fprintf(w, "Final Equity: $%.2f\n", m.FinalEquity)
}

func printComparison(w io.Writer, r *compare.Report) {
	fmt.Fprintf(w, "\n=== Comparison (%d runs, %d failed) ===\n", len(r.Runs), r.Failed)
	for _, s := range r.Summaries {
		fmt.Fprintf(w, "%-16s runs %d  avg return %7.2f%%  avg win rate %6.2f%%  avg sharpe %6.2f  worst dd %6.2f%%\n",
			s.Strategy, s.Runs, s.AverageReturn, s.AverageWinRate, s.AverageSharpe, s.WorstDrawdown)
	}
	for _, ranking := range r.Rankings {
		fmt.Fprintf(w, "\nBy %s:\n", ranking.Metric)
		for _, e := range ranking.Entries {
			value := "n/a"
			if e.Value != nil {
				value = fmt.Sprintf("%.4f", *e.Value)
			}
			fmt.Fprintf(w, "  %2d. %-16s %-10s %s\n", e.Rank, e.Strategy, e.Symbol, value)
		}
	}
	for _, run := range r.Runs {
		if run.Error != "" {
			fmt.Fprintf(w, "failed: %s %s: %s\n", run.Strategy, run.Symbol, run.Error)
		}
	}
}

func printOptimization(w io.Writer, r *optimize.Result) {
	fmt.Fprintf(w, "\n=== Optimization: %s %s by %s ===\n", r.Strategy, r.Symbol, r.Metric)
	fmt.Fprintf(w, "Combinations: %d (%d ok, %d failed) in %s\n", r.TotalCombinations, r.Successful, r.Failed, r.Elapsed)
	if r.BestScore == nil {
		fmt.Fprintln(w, "No combination produced a score")
		return
	}
	fmt.Fprintf(w, "Best score: %.4f\nBest parameters: %v\n", *r.BestScore, r.BestParameters)
	for i, t := range r.Top {
		fmt.Fprintf(w, "  %2d. %.4f  %v\n", i+1, *t.Score, t.Parameters)
	}
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTradesFile(path string, trades []backtest.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := backtest.WriteTradesCSV(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
