package indicators

import (
	"fmt"
	"math"
)

type BBandsService struct{}

type BBandsResult struct {
	Upper  *Series
	Middle *Series
	Lower  *Series
}

func NewBBandsService() *BBandsService {
	return &BBandsService{}
}

// Calculate returns SMA(period) +/- deviations * population standard
// deviation. Warm-up is period-1.
func (s *BBandsService) Calculate(prices []float64, period int, deviations float64) (*BBandsResult, error) {
	if err := requirePeriod("bb_period", period); err != nil {
		return nil, err
	}
	if err := requirePositive("bb_std_dev", deviations); err != nil {
		return nil, err
	}
	if len(prices) <= period-1 {
		return nil, insufficient(fmt.Sprintf("Bollinger(%d)", period), period-1, len(prices))
	}

	n := len(prices) - period + 1
	upper := make([]float64, n)
	middle := make([]float64, n)
	lower := make([]float64, n)

	for i := period - 1; i < len(prices); i++ {
		subset := prices[i-period+1 : i+1]

		sum := 0.0
		for _, price := range subset {
			sum += price
		}
		sma := sum / float64(period)

		squareSum := 0.0
		for _, price := range subset {
			diff := price - sma
			squareSum += diff * diff
		}
		stdDev := math.Sqrt(squareSum / float64(period))

		k := i - period + 1
		middle[k] = sma
		upper[k] = sma + (deviations * stdDev)
		lower[k] = sma - (deviations * stdDev)
	}

	warmup := period - 1
	return &BBandsResult{
		Upper:  &Series{Name: "bb_upper", Warmup: warmup, Values: upper},
		Middle: &Series{Name: "bb_middle", Warmup: warmup, Values: middle},
		Lower:  &Series{Name: "bb_lower", Warmup: warmup, Values: lower},
	}, nil
}
