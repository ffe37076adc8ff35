package backtest

import (
	"context"
	"time"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/strategy"
)

// Trade reasons
const (
	ReasonSignal     = "signal"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonEndOfData  = "end_of_data"
)

const DefaultCommissionRate = 0.001

// Trade is one fill. Sells carry the realized P&L of the quantity they close,
// net of the exit fee and the matching share of the entry fees.
type Trade struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // models.TradeSideBuy or models.TradeSideSell
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Fee           float64   `json:"fee"`
	RealizedPnL   float64   `json:"realized_pnl"`
	ReturnPercent float64   `json:"return_percent"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
	EntryPrice    float64   `json:"entry_price,omitempty"`
	EntryTime     time.Time `json:"entry_time,omitempty"`
}

func (t Trade) closes() bool { return t.Side == models.TradeSideSell }

type Position struct {
	Symbol            string    `json:"symbol"`
	Quantity          float64   `json:"quantity"`
	AverageEntryPrice float64   `json:"average_entry_price"`
	Cost              float64   `json:"cost"`
	EntryFees         float64   `json:"entry_fees"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	OpenedAt          time.Time `json:"opened_at"`
}

// EquityPoint is the portfolio value after a bar was processed.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Holdings  float64   `json:"holdings"`
}

// PerformanceMetrics derived from an equity curve and trade ledger. Every
// percentage is expressed in percent (15.5 means 15.5%).
type PerformanceMetrics struct {
	TotalReturn          float64  `json:"total_return"`
	TotalReturnPercent   float64  `json:"total_return_percent"`
	AnnualizedReturn     float64  `json:"annualized_return"`
	SharpeRatio          float64  `json:"sharpe_ratio"`
	SortinoRatio         float64  `json:"sortino_ratio"`
	MaxDrawdownPercent   float64  `json:"max_drawdown_percent"`
	WinRate              float64  `json:"win_rate"`
	TotalTrades          int      `json:"total_trades"` // closed trades
	WinningTrades        int      `json:"winning_trades"`
	LosingTrades         int      `json:"losing_trades"`
	ProfitFactor         *float64 `json:"profit_factor"` // nil when there are no losing trades
	AverageTradeReturn   float64  `json:"average_trade_return"`
	AverageWin           float64  `json:"average_win"`
	AverageLoss          float64  `json:"average_loss"`
	LargestWin           float64  `json:"largest_win"`
	LargestLoss          float64  `json:"largest_loss"`
	AverageTradeDuration float64  `json:"average_trade_duration_hours"`
	TotalFees            float64  `json:"total_fees"`
	FinalEquity          float64  `json:"final_equity"`
}

// BacktestResult is created once per completed run and never modified.
type BacktestResult struct {
	Strategy       strategy.Kind       `json:"strategy"`
	Symbol         string              `json:"symbol"`
	Interval       models.Interval     `json:"interval"`
	Parameters     strategy.Parameters `json:"parameters"`
	InitialCapital float64             `json:"initial_capital"`
	CommissionRate float64             `json:"commission_rate"`
	StartTime      time.Time           `json:"start_time"`
	EndTime        time.Time           `json:"end_time"`
	Bars           int                 `json:"bars"`
	Metrics        PerformanceMetrics  `json:"metrics"`
	EquityCurve    []EquityPoint       `json:"equity_curve"`
	Trades         []Trade             `json:"trades"`
}

// Request describes a single run. Zero Start/End leave that side of the
// candle window open.
type Request struct {
	Strategy       strategy.Kind       `json:"strategy"`
	Symbol         string              `json:"symbol"`
	Interval       models.Interval     `json:"interval"`
	Parameters     strategy.Parameters `json:"parameters,omitempty"`
	InitialCapital float64             `json:"initial_capital"`
	CommissionRate float64             `json:"commission_rate"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
}

// Job pairs a request with the candles it runs on. Candles are shared
// read-only between jobs.
type Job struct {
	Request Request
	Candles []models.PriceBar
}

// Outcome is the result of one Job. Err is set when the run failed or was
// never started because the batch was cancelled.
type Outcome struct {
	Request Request
	Result  *BacktestResult
	Err     error
}

// CandleSource supplies ascending candles for a symbol and time range.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]models.PriceBar, error)
}
