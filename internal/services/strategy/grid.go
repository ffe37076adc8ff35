package strategy

import (
	"fmt"

	"CryptoTradeCore/internal/models"
)

type gridRule struct {
	levels      int
	spacingPct  float64
	orderSize   float64
	maxRangePct float64
}

func newGridRule(p Parameters) (*gridRule, error) {
	r := &gridRule{
		levels:      int(p["grid_levels"]),
		spacingPct:  p["grid_spacing_percent"],
		orderSize:   p["base_order_size"],
		maxRangePct: p["max_grid_range_percent"],
	}
	if maxSize := p[ParamMaxPositionSize]; r.orderSize > maxSize {
		return nil, models.InvalidParameter("base_order_size",
			fmt.Sprintf("at most max_position_size (%g)", maxSize), r.orderSize)
	}
	if r.levels < 2 {
		return nil, models.InvalidParameter("grid_levels", "at least 2", r.levels)
	}
	span := float64(r.levels-1) / 2 * r.spacingPct
	if span > r.maxRangePct {
		return nil, models.InvalidParameter("grid_spacing_percent",
			fmt.Sprintf("small enough to keep %d levels within %g%% of the center", r.levels, r.maxRangePct), r.spacingPct)
	}
	if span >= 100 {
		return nil, models.InvalidParameter("grid_spacing_percent", "small enough to keep every level above zero", r.spacingPct)
	}
	return r, nil
}

// warmup is one bar: a crossing needs the previous close.
func (r *gridRule) warmup() int { return 1 }

func (r *gridRule) newState() *GridState {
	return &GridState{Held: make([]float64, r.levels)}
}

// GridState tracks which grid levels currently hold inventory. It is owned
// by a single run and threaded through its bar loop.
type GridState struct {
	Center float64
	Levels []float64 // ascending
	Held   []float64 // quantity bought at each level, 0 when free
}

func (g *GridState) ready() bool { return len(g.Levels) > 0 }

// layout centers the levels on center, evenly spaced by spacingPct of it.
func (r *gridRule) layout(g *GridState, center float64) {
	g.Center = center
	g.Levels = make([]float64, r.levels)
	mid := float64(r.levels-1) / 2
	for j := range g.Levels {
		g.Levels[j] = center * (1 + (float64(j)-mid)*r.spacingPct/100)
	}
}

// evaluate sells the lowest held level whose next level up was crossed from
// below, otherwise buys the highest free level crossed from above. The top
// level never buys since nothing above it can take profit.
func (r *gridRule) evaluate(g *GridState, bars []models.PriceBar, i int, sig *Signal) {
	sig.Action, sig.Strength, sig.Reason = hold("no level crossed")
	if !g.ready() {
		r.layout(g, bars[0].Close)
	}
	if i == 0 {
		sig.Reason = "grid anchored"
		return
	}
	prev, cur := bars[i-1].Close, bars[i].Close

	for j := 0; j < len(g.Levels)-1; j++ {
		target := g.Levels[j+1]
		if g.Held[j] > 0 && prev < target && cur >= target {
			sig.Action = ActionSell
			sig.Strength = 1
			sig.Quantity = g.Held[j]
			sig.GridLevel = j
			sig.Reason = fmt.Sprintf("grid level %d bought at %.4f sold at %.4f", j, g.Levels[j], target)
			return
		}
	}
	for j := len(g.Levels) - 2; j >= 0; j-- {
		level := g.Levels[j]
		if g.Held[j] == 0 && prev > level && cur <= level {
			sig.Action = ActionBuy
			sig.Strength = 1
			sig.Notional = r.orderSize
			sig.GridLevel = j
			sig.Reason = fmt.Sprintf("grid level %d touched at %.4f", j, level)
			return
		}
	}
}
