package indicators

import (
	"fmt"
)

type RSIService struct{}

func NewRSIService() *RSIService {
	return &RSIService{}
}

// Calculate returns Wilder's RSI over closes. The first average covers the
// first period changes, so bars 0..period-1 have no value.
func (s *RSIService) Calculate(closes []float64, period int) (*Series, error) {
	if err := requirePeriod("rsi_period", period); err != nil {
		return nil, err
	}
	if len(closes) <= period {
		return nil, insufficient(fmt.Sprintf("RSI(%d)", period), period, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiValue(avgGain, avgLoss))

	// Wilder smoothing
	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}

	return &Series{Name: fmt.Sprintf("rsi_%d", period), Warmup: period, Values: out}, nil
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// rsiValue maps average gain/loss to [0,100]. A window with no movement at
// all is neutral.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
