package indicators

import (
	"fmt"

	"CryptoTradeCore/internal/models"
)

type MACDService struct {
	ema *EMAService
}

// MACDResult holds the three MACD lines. MACD starts at bar slow-1; Signal
// and Histogram start at bar slow+signal-2.
type MACDResult struct {
	MACD      *Series
	Signal    *Series
	Histogram *Series
}

func NewMACDService() *MACDService {
	return &MACDService{
		ema: NewEMAService(),
	}
}

// Calculate returns MACD line, signal line, and histogram
// Default periods: fast=12, slow=26, signal=9
func (s *MACDService) Calculate(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*MACDResult, error) {
	if err := s.ValidatePeriods(fastPeriod, slowPeriod, signalPeriod); err != nil {
		return nil, err
	}
	warmup := slowPeriod + signalPeriod - 2
	if len(prices) <= warmup {
		return nil, insufficient(fmt.Sprintf("MACD(%d,%d,%d)", fastPeriod, slowPeriod, signalPeriod), warmup, len(prices))
	}

	fastEMA, err := s.ema.Calculate(prices, fastPeriod)
	if err != nil {
		return nil, err
	}
	slowEMA, err := s.ema.Calculate(prices, slowPeriod)
	if err != nil {
		return nil, err
	}

	// MACD line (fast EMA - slow EMA) from the first bar both are defined
	macdLine := make([]float64, 0, slowEMA.Len())
	for i := slowEMA.Warmup; i < len(prices); i++ {
		f, _ := fastEMA.At(i)
		sl, _ := slowEMA.At(i)
		macdLine = append(macdLine, f-sl)
	}
	macd := &Series{Name: "macd", Warmup: slowEMA.Warmup, Values: macdLine}

	signalEMA, err := s.ema.Calculate(macdLine, signalPeriod)
	if err != nil {
		return nil, err
	}
	signal := &Series{Name: "macd_signal", Warmup: macd.Warmup + signalEMA.Warmup, Values: signalEMA.Values}

	histogram := make([]float64, signal.Len())
	for k := range histogram {
		m, _ := macd.At(signal.Warmup + k)
		histogram[k] = m - signal.Values[k]
	}

	return &MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: &Series{Name: "macd_histogram", Warmup: signal.Warmup, Values: histogram},
	}, nil
}

func (s *MACDService) ValidatePeriods(fastPeriod, slowPeriod, signalPeriod int) error {
	if err := requirePeriod("fast_period", fastPeriod); err != nil {
		return err
	}
	if err := requirePeriod("slow_period", slowPeriod); err != nil {
		return err
	}
	if err := requirePeriod("signal_period", signalPeriod); err != nil {
		return err
	}
	if slowPeriod <= fastPeriod {
		return models.InvalidParameter("slow_period", fmt.Sprintf("greater than fast_period (%d)", fastPeriod), slowPeriod)
	}
	return nil
}
