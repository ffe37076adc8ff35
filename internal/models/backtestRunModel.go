package models

import "time"

// BacktestRun is a persisted backtest result. Parameters holds the resolved
// strategy parameters as JSON.
type BacktestRun struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	RunID    string `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Strategy string `gorm:"index;not null" json:"strategy"`
	Symbol   string `gorm:"index;not null" json:"symbol"`
	Interval string `gorm:"not null" json:"interval"`

	StartTime      time.Time `gorm:"not null" json:"start_time"`
	EndTime        time.Time `gorm:"not null" json:"end_time"`
	InitialCapital float64   `gorm:"type:decimal(20,8);not null" json:"initial_capital"`
	Parameters     string    `gorm:"type:text" json:"parameters"`

	TotalReturnPercent float64  `gorm:"type:decimal(20,8)" json:"total_return_percent"`
	AnnualizedReturn   float64  `gorm:"type:decimal(20,8)" json:"annualized_return"`
	SharpeRatio        float64  `gorm:"type:decimal(20,8)" json:"sharpe_ratio"`
	SortinoRatio       float64  `gorm:"type:decimal(20,8)" json:"sortino_ratio"`
	MaxDrawdownPercent float64  `gorm:"type:decimal(20,8)" json:"max_drawdown_percent"`
	WinRate            float64  `gorm:"type:decimal(20,8)" json:"win_rate"`
	ProfitFactor       *float64 `gorm:"type:decimal(20,8)" json:"profit_factor"`
	TotalTrades        int      `json:"total_trades"`
	TotalFees          float64  `gorm:"type:decimal(20,8)" json:"total_fees"`
	FinalEquity        float64  `gorm:"type:decimal(20,8)" json:"final_equity"`

	Trades []TradeRecord `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE" json:"trades"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName sets the table name for BacktestRun model
func (BacktestRun) TableName() string {
	return "backtest_runs"
}
