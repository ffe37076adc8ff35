package strategy

// State is the mutable part of a run that belongs to the strategy rather
// than the portfolio. Only the grid variant has any.
type State struct {
	Grid *GridState
}

// Observe records the outcome of sig: filled is the quantity the portfolio
// actually traded for it and position is the quantity held afterwards.
func (s *State) Observe(sig Signal, filled, position float64) {
	g := s.Grid
	if g == nil {
		return
	}
	if sig.GridLevel >= 0 && sig.GridLevel < len(g.Held) && filled > 0 {
		switch sig.Action {
		case ActionBuy:
			g.Held[sig.GridLevel] += filled
		case ActionSell:
			g.Held[sig.GridLevel] = 0
		}
	}
	// a risk exit or final close empties every level at once
	if position <= 0 {
		for j := range g.Held {
			g.Held[j] = 0
		}
	}
}
