package strategy

import (
	"fmt"
	"math"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/indicators"
)

type bollingerRule struct {
	period    int
	stdDev    float64
	minVolume float64
}

type bollingerSeries struct {
	bands *indicators.BBandsResult
}

func newBollingerRule(p Parameters) *bollingerRule {
	return &bollingerRule{
		period:    int(p["bb_period"]),
		stdDev:    p["bb_std_dev"],
		minVolume: p["min_volume"],
	}
}

func (r *bollingerRule) warmup() int { return r.period - 1 }

func (r *bollingerRule) prepare(bars []models.PriceBar) (*bollingerSeries, error) {
	bands, err := indicators.NewBBandsService().Calculate(models.Closes(bars), r.period, r.stdDev)
	if err != nil {
		return nil, err
	}
	return &bollingerSeries{bands: bands}, nil
}

// evaluate is mean reversion: buy at or below the lower band, sell at or
// above the upper band. A zero-width band carries no information.
func (r *bollingerRule) evaluate(s *bollingerSeries, bars []models.PriceBar, i int) (Action, float64, string) {
	upper, ok := s.bands.Upper.At(i)
	if !ok {
		return hold("warm-up")
	}
	middle, _ := s.bands.Middle.At(i)
	lower, _ := s.bands.Lower.At(i)

	if upper <= lower {
		return hold("zero-width bands")
	}
	bar := bars[i]
	if bar.Volume < r.minVolume {
		return hold(fmt.Sprintf("volume %.0f below %.0f", bar.Volume, r.minVolume))
	}

	strength := clamp01(math.Abs(bar.Close-middle) / (upper - middle) / 2)
	switch {
	case bar.Close <= lower:
		return ActionBuy, strength, fmt.Sprintf("close %.4f at or below lower band %.4f", bar.Close, lower)
	case bar.Close >= upper:
		return ActionSell, strength, fmt.Sprintf("close %.4f at or above upper band %.4f", bar.Close, upper)
	}
	return hold("inside bands")
}
