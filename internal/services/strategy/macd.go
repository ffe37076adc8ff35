package strategy

import (
	"fmt"
	"math"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/indicators"
)

type macdRule struct {
	fast, slow, signal int
	minStrength        float64
}

type macdSeries struct {
	res *indicators.MACDResult
}

func newMACDRule(p Parameters) (*macdRule, error) {
	r := &macdRule{
		fast:        int(p["fast_period"]),
		slow:        int(p["slow_period"]),
		signal:      int(p["signal_period"]),
		minStrength: p["min_macd_strength"],
	}
	if err := indicators.NewMACDService().ValidatePeriods(r.fast, r.slow, r.signal); err != nil {
		return nil, err
	}
	return r, nil
}

// warmup covers the first signal value plus the previous bar needed to see
// a crossing.
func (r *macdRule) warmup() int { return r.slow + r.signal - 1 }

func (r *macdRule) prepare(bars []models.PriceBar) (*macdSeries, error) {
	res, err := indicators.NewMACDService().Calculate(models.Closes(bars), r.fast, r.slow, r.signal)
	if err != nil {
		return nil, err
	}
	return &macdSeries{res: res}, nil
}

func (r *macdRule) evaluate(s *macdSeries, i int) (Action, float64, string) {
	prevSignal, ok := s.res.Signal.At(i - 1)
	if !ok {
		return hold("warm-up")
	}
	prevMACD, _ := s.res.MACD.At(i - 1)
	macd, _ := s.res.MACD.At(i)
	signal, _ := s.res.Signal.At(i)

	cross := indicators.CheckCrossover(prevMACD, prevSignal, macd, signal)
	if !cross.Crossed {
		return hold("no crossing")
	}
	if math.Abs(macd) <= r.minStrength {
		return hold(fmt.Sprintf("|MACD| %.4f not above %g", math.Abs(macd), r.minStrength))
	}

	strength := 0.0
	if denom := math.Abs(macd) + math.Abs(signal); denom > 0 {
		strength = clamp01(math.Abs(macd-signal) / denom)
	}
	if cross.Direction > 0 {
		return ActionBuy, strength, fmt.Sprintf("MACD %.4f crossed above signal %.4f", macd, signal)
	}
	return ActionSell, strength, fmt.Sprintf("MACD %.4f crossed below signal %.4f", macd, signal)
}
