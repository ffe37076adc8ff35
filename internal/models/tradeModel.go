package models

import (
	"time"
)

type TradeRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       string    `gorm:"index;size:36;not null" json:"run_id"`
	Seq         int       `gorm:"not null" json:"seq"`
	Symbol      string    `gorm:"not null" json:"symbol"`
	Side        string    `gorm:"not null" json:"side"`
	Quantity    float64   `gorm:"type:decimal(28,12);not null" json:"quantity"`
	Price       float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	Fee         float64   `gorm:"type:decimal(20,8)" json:"fee"`
	RealizedPnL float64   `gorm:"type:decimal(20,8)" json:"realized_pnl"`
	Reason      string    `gorm:"not null" json:"reason"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
}

const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// TableName sets the table name for TradeRecord model
func (TradeRecord) TableName() string {
	return "backtest_trades"
}
