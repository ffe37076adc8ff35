package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"CryptoTradeCore/internal/models"
)

// WriteJSON writes the full result, equity curve and ledger included.
func WriteJSON(w io.Writer, r *BacktestResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var tradeColumns = []string{
	"timestamp", "symbol", "side", "quantity", "price", "fee",
	"realized_pnl", "return_percent", "reason", "entry_price", "entry_time",
}

// WriteTradesCSV exports the trade ledger, one fill per row.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeColumns); err != nil {
		return err
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, t := range trades {
		entryTime := ""
		if !t.EntryTime.IsZero() {
			entryTime = t.EntryTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			t.Timestamp.UTC().Format(time.RFC3339), t.Symbol, t.Side,
			num(t.Quantity), num(t.Price), num(t.Fee),
			num(t.RealizedPnL), num(t.ReturnPercent), t.Reason,
			num(t.EntryPrice), entryTime,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record converts the result into its persisted form under runID.
func (r *BacktestResult) Record(runID string) (*models.BacktestRun, error) {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	m := r.Metrics
	run := &models.BacktestRun{
		RunID:              runID,
		Strategy:           string(r.Strategy),
		Symbol:             r.Symbol,
		Interval:           string(r.Interval),
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		InitialCapital:     r.InitialCapital,
		Parameters:         string(params),
		TotalReturnPercent: m.TotalReturnPercent,
		AnnualizedReturn:   m.AnnualizedReturn,
		SharpeRatio:        m.SharpeRatio,
		SortinoRatio:       m.SortinoRatio,
		MaxDrawdownPercent: m.MaxDrawdownPercent,
		WinRate:            m.WinRate,
		ProfitFactor:       m.ProfitFactor,
		TotalTrades:        m.TotalTrades,
		TotalFees:          m.TotalFees,
		FinalEquity:        m.FinalEquity,
	}
	for i, t := range r.Trades {
		run.Trades = append(run.Trades, models.TradeRecord{
			RunID:       runID,
			Seq:         i,
			Symbol:      t.Symbol,
			Side:        t.Side,
			Quantity:    t.Quantity,
			Price:       t.Price,
			Fee:         t.Fee,
			RealizedPnL: t.RealizedPnL,
			Reason:      t.Reason,
			Timestamp:   t.Timestamp,
		})
	}
	return run, nil
}
