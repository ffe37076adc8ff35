package strategy

import (
	"fmt"
	"math"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/indicators"
)

type rsiRule struct {
	period     int
	overbought float64
	oversold   float64
	crossing   bool
}

type rsiSeries struct {
	rsi *indicators.Series
}

func newRSIRule(p Parameters) (*rsiRule, error) {
	r := &rsiRule{
		period:     int(p["rsi_period"]),
		overbought: p["rsi_overbought"],
		oversold:   p["rsi_oversold"],
		crossing:   p["rsi_crossing"] == 1,
	}
	if r.oversold >= r.overbought {
		return nil, models.InvalidParameter("rsi_oversold", fmt.Sprintf("below rsi_overbought (%g)", r.overbought), r.oversold)
	}
	return r, nil
}

func (r *rsiRule) warmup() int { return r.period }

func (r *rsiRule) prepare(bars []models.PriceBar) (*rsiSeries, error) {
	rsi, err := indicators.NewRSIService().Calculate(models.Closes(bars), r.period)
	if err != nil {
		return nil, err
	}
	return &rsiSeries{rsi: rsi}, nil
}

// evaluate in crossing mode acts when RSI comes back through a threshold
// (below oversold then back above it buys, above overbought then back below
// it sells). Level mode acts whenever RSI sits beyond a threshold.
func (r *rsiRule) evaluate(s *rsiSeries, i int) (Action, float64, string) {
	cur, ok := s.rsi.At(i)
	if !ok {
		return hold("warm-up")
	}

	if !r.crossing {
		switch {
		case cur <= r.oversold:
			return ActionBuy, clamp01((r.oversold - cur) / r.oversold), fmt.Sprintf("RSI %.2f <= %g", cur, r.oversold)
		case cur >= r.overbought:
			return ActionSell, clamp01((cur - r.overbought) / (100 - r.overbought)), fmt.Sprintf("RSI %.2f >= %g", cur, r.overbought)
		}
		return hold("RSI between thresholds")
	}

	prev, ok := s.rsi.At(i - 1)
	if !ok {
		return hold("warm-up")
	}
	strength := clamp01(math.Abs(cur-prev) / 10)
	switch {
	case prev < r.oversold && cur >= r.oversold:
		return ActionBuy, strength, fmt.Sprintf("RSI recovered above %g (%.2f -> %.2f)", r.oversold, prev, cur)
	case prev > r.overbought && cur <= r.overbought:
		return ActionSell, strength, fmt.Sprintf("RSI fell back below %g (%.2f -> %.2f)", r.overbought, prev, cur)
	}
	return hold("no RSI threshold crossing")
}
