package models

import (
	"fmt"
	"math"
	"time"
)

// Price is a stored candle row.
type Price struct {
	ID         uint      `gorm:"primaryKey"`
	Symbol     string    `gorm:"uniqueIndex:idx_price_bar;not null"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_price_bar;not null"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_price_bar;index;not null"`
	CloseTime  time.Time `gorm:"index"`
	Open       float64   `gorm:"type:decimal(20,8)"`
	Close      float64   `gorm:"type:decimal(20,8)"`
	High       float64   `gorm:"type:decimal(20,8)"`
	Low        float64   `gorm:"type:decimal(20,8)"`
	Volume     float64   `gorm:"type:decimal(20,8)"`
	TradeCount int64
}

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

// Bar converts the stored row into the candle shape the engine consumes.
func (p Price) Bar() PriceBar {
	return PriceBar{
		Timestamp: p.OpenTime,
		Open:      p.Open,
		High:      p.High,
		Low:       p.Low,
		Close:     p.Close,
		Volume:    p.Volume,
	}
}

// PriceBar is one OHLCV observation. Series of bars are ordered by Timestamp
// and never mutated once loaded.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Closes extracts the close prices of bars.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the traded volume of bars.
func Volumes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// ValidateBars checks ordering and the numeric fields of a candle series.
func ValidateBars(bars []PriceBar) error {
	for i, b := range bars {
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s is not after %s", ErrMalformedBar, i,
				b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("%w: bar %d has a non-finite or negative field", ErrMalformedBar, i)
			}
		}
		if b.Close <= 0 {
			return fmt.Errorf("%w: bar %d has no close price", ErrMalformedBar, i)
		}
	}
	return nil
}

// Interval is a candle granularity.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// Intervals lists the supported granularities, shortest first.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}
}

// ParseInterval validates s as a supported interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", &ParameterError{Kind: ErrInvalidParameter, Name: "interval", Constraint: "one of 1m, 5m, 15m, 1h, 4h, 1d"}
	}
	return iv, nil
}

// Duration returns the length of one bar, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// PeriodsPerYear is the annualization factor for returns sampled once per
// bar. Crypto markets trade every day, so a year is 365 full days.
func (i Interval) PeriodsPerYear() float64 {
	d := i.Duration()
	if d == 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}
