package strategy

import (
	"fmt"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/indicators"
)

type volumeRule struct {
	threshold   float64
	breakoutPct float64
	lookback    int
	minPrice    float64
}

type volumeSeries struct {
	stats *indicators.VolumeStats
}

func newVolumeRule(p Parameters) *volumeRule {
	return &volumeRule{
		threshold:   p["volume_threshold"],
		breakoutPct: p["price_breakout_percent"],
		lookback:    int(p["lookback_period"]),
		minPrice:    p["min_price"],
	}
}

func (r *volumeRule) warmup() int { return r.lookback }

func (r *volumeRule) prepare(bars []models.PriceBar) (*volumeSeries, error) {
	stats, err := indicators.NewVolumeService().Calculate(models.Volumes(bars), r.lookback, r.threshold)
	if err != nil {
		return nil, err
	}
	return &volumeSeries{stats: stats}, nil
}

// evaluate buys a close that breaks the highest high of the lookback window
// on a volume spike and sells the mirrored break of the lowest low.
func (r *volumeRule) evaluate(s *volumeSeries, bars []models.PriceBar, i int) (Action, float64, string) {
	ratio, ok := s.stats.Ratio.At(i)
	if !ok {
		return hold("warm-up")
	}
	bar := bars[i]
	if bar.Close < r.minPrice {
		return hold(fmt.Sprintf("close %.4f below min_price %g", bar.Close, r.minPrice))
	}
	if !s.stats.SpikeAt(i) {
		return hold(fmt.Sprintf("volume ratio %.2f below %g", ratio, r.threshold))
	}

	resistance, support := bars[i-r.lookback].High, bars[i-r.lookback].Low
	for _, b := range bars[i-r.lookback+1 : i] {
		if b.High > resistance {
			resistance = b.High
		}
		if b.Low < support {
			support = b.Low
		}
	}

	strength := clamp01(ratio / (2 * r.threshold))
	if resistance > 0 {
		if pct := (bar.Close - resistance) / resistance * 100; pct >= r.breakoutPct {
			return ActionBuy, strength, fmt.Sprintf("volume breakout: %.2fx volume, %.2f%% above %.4f", ratio, pct, resistance)
		}
	}
	if support > 0 {
		if pct := (support - bar.Close) / support * 100; pct >= r.breakoutPct {
			return ActionSell, strength, fmt.Sprintf("volume breakdown: %.2fx volume, %.2f%% below %.4f", ratio, pct, support)
		}
	}
	return hold("volume spike without price breakout")
}
