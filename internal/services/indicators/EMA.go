package indicators

import (
	"fmt"
	"math"

	"CryptoTradeCore/internal/models"
)

// EMAService provides Exponential Moving Average calculations
type EMAService struct{}

// CrossSignal represents a crossover between two lines
type CrossSignal struct {
	Crossed   bool    // Whether cross occurred
	Direction int     // 1 (bullish), -1 (bearish)
	Strength  float64 // Distance between the lines after the cross, relative to the slow line
}

// NewEMAService creates a new EMA service instance
func NewEMAService() *EMAService {
	return &EMAService{}
}

// Calculate computes the EMA of values. The first value is the SMA of the
// first period inputs, so the warm-up is period-1.
func (s *EMAService) Calculate(values []float64, period int) (*Series, error) {
	if err := requirePeriod("period", period); err != nil {
		return nil, err
	}
	if len(values) <= period-1 {
		return nil, models.InsufficientData(fmt.Sprintf("EMA(%d)", period), period-1, len(values))
	}

	multiplier := s.getMultiplier(period)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, s.calculateInitialSMA(values, period))
	for i := period; i < len(values); i++ {
		out = append(out, s.calculatePoint(values[i], out[len(out)-1], multiplier))
	}

	return &Series{Name: fmt.Sprintf("ema_%d", period), Warmup: period - 1, Values: out}, nil
}

// CheckCrossover compares two lines at consecutive points.
func CheckCrossover(prevFast, prevSlow, currFast, currSlow float64) *CrossSignal {
	bullishCross := prevFast <= prevSlow && currFast > currSlow
	bearishCross := prevFast >= prevSlow && currFast < currSlow

	if !bullishCross && !bearishCross {
		return &CrossSignal{Crossed: false}
	}

	strength := math.Abs(currFast - currSlow)
	if currSlow != 0 {
		strength = math.Abs((currFast - currSlow) / currSlow)
	}
	direction := 1
	if bearishCross {
		direction = -1
	}

	return &CrossSignal{
		Crossed:   true,
		Direction: direction,
		Strength:  strength,
	}
}

func (s *EMAService) getMultiplier(period int) float64 {
	return 2.0 / float64(period+1)
}

func (s *EMAService) calculateInitialSMA(values []float64, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

func (s *EMAService) calculatePoint(value, prevEMA, multiplier float64) float64 {
	return (value-prevEMA)*multiplier + prevEMA
}
