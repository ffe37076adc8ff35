package testutils

import (
	"math"
	"time"

	"CryptoTradeCore/internal/models"
)

// Epoch is the timestamp of the first generated bar.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// BarsFromCloses builds hourly bars whose open is the previous close and
// whose high/low hug the body.
func BarsFromCloses(closes []float64, volume float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = models.PriceBar{
			Timestamp: Epoch.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      math.Max(open, c),
			Low:       math.Min(open, c),
			Close:     c,
			Volume:    volume,
		}
	}
	return bars
}

// Flat returns n bars at a constant price.
func Flat(n int, price float64) []models.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return BarsFromCloses(closes, 1_000_000)
}

// Ramp returns n bars moving by step per bar from start.
func Ramp(n int, start, step float64) []models.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return BarsFromCloses(closes, 1_000_000)
}

// Wave returns n bars oscillating around mid with the given amplitude and
// period, plus a slow drift so no two cycles are identical.
func Wave(n int, mid, amplitude float64, period int) []models.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		phase := 2 * math.Pi * float64(i) / float64(period)
		closes[i] = mid + amplitude*math.Sin(phase) + 0.01*float64(i)
	}
	bars := BarsFromCloses(closes, 0)
	for i := range bars {
		// volume bursts every quarter period to exercise breakout logic
		v := 1_000_000.0
		if i%(period/4+1) == 0 {
			v = 4_000_000
		}
		bars[i].Volume = v
	}
	return bars
}
