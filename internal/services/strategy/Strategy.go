package strategy

import (
	"fmt"

	"CryptoTradeCore/internal/models"
)

// Strategy is a closed tagged variant: exactly one rule pointer matches kind.
type Strategy struct {
	kind   Kind
	params Parameters
	risk   Risk

	rsi    *rsiRule
	bands  *bollingerRule
	macd   *macdRule
	volume *volumeRule
	grid   *gridRule
}

// New resolves params against the defaults of kind and builds the variant.
func New(kind Kind, params Parameters) (*Strategy, error) {
	resolved, err := Resolve(kind, params)
	if err != nil {
		return nil, err
	}
	s := &Strategy{kind: kind, params: resolved, risk: riskFrom(resolved)}

	switch kind {
	case KindRSI:
		s.rsi, err = newRSIRule(resolved)
	case KindBollingerBands:
		s.bands = newBollingerRule(resolved)
	case KindMACD:
		s.macd, err = newMACDRule(resolved)
	case KindVolumeBreakout:
		s.volume = newVolumeRule(resolved)
	case KindGridTrading:
		s.grid, err = newGridRule(resolved)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Strategy) Kind() Kind { return s.kind }

// Parameters returns the resolved parameters. Callers must not modify them.
func (s *Strategy) Parameters() Parameters { return s.params }

func (s *Strategy) Risk() Risk { return s.risk }

// Warmup is the number of leading bars on which the strategy always holds.
func (s *Strategy) Warmup() int {
	switch s.kind {
	case KindRSI:
		return s.rsi.warmup()
	case KindBollingerBands:
		return s.bands.warmup()
	case KindMACD:
		return s.macd.warmup()
	case KindVolumeBreakout:
		return s.volume.warmup()
	case KindGridTrading:
		return s.grid.warmup()
	}
	panic("strategy: unhandled kind " + string(s.kind))
}

// NewState returns the mutable per-run state of the strategy.
func (s *Strategy) NewState() *State {
	st := &State{}
	if s.kind == KindGridTrading {
		st.Grid = s.grid.newState()
	}
	return st
}

// Evaluation holds the indicator series computed for one candle window.
// Every series value at bar i depends only on bars 0..i.
type Evaluation struct {
	strategy *Strategy
	symbol   string
	bars     []models.PriceBar

	rsi    *rsiSeries
	bands  *bollingerSeries
	macd   *macdSeries
	volume *volumeSeries
}

// Prepare computes the indicators the strategy needs over bars.
func (s *Strategy) Prepare(symbol string, bars []models.PriceBar) (*Evaluation, error) {
	if w := s.Warmup(); len(bars) <= w {
		return nil, models.InsufficientData(string(s.kind), w, len(bars))
	}
	e := &Evaluation{strategy: s, symbol: symbol, bars: bars}

	var err error
	switch s.kind {
	case KindRSI:
		e.rsi, err = s.rsi.prepare(bars)
	case KindBollingerBands:
		e.bands, err = s.bands.prepare(bars)
	case KindMACD:
		e.macd, err = s.macd.prepare(bars)
	case KindVolumeBreakout:
		e.volume, err = s.volume.prepare(bars)
	case KindGridTrading:
		// the grid reads prices directly
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Evaluate produces the signal for bar i. state is only touched by the grid
// variant.
func (e *Evaluation) Evaluate(i int, state *State) Signal {
	s := e.strategy
	bar := e.bars[i]
	sig := Signal{
		Symbol:    e.symbol,
		Timestamp: bar.Timestamp,
		Price:     bar.Close,
		Strategy:  s.kind,
		Params:    s.params,
		GridLevel: -1,
	}

	switch s.kind {
	case KindRSI:
		sig.Action, sig.Strength, sig.Reason = s.rsi.evaluate(e.rsi, i)
	case KindBollingerBands:
		sig.Action, sig.Strength, sig.Reason = s.bands.evaluate(e.bands, e.bars, i)
	case KindMACD:
		sig.Action, sig.Strength, sig.Reason = s.macd.evaluate(e.macd, i)
	case KindVolumeBreakout:
		sig.Action, sig.Strength, sig.Reason = s.volume.evaluate(e.volume, e.bars, i)
	case KindGridTrading:
		s.grid.evaluate(state.Grid, e.bars, i, &sig)
	}
	return sig
}

// EvaluateWindow evaluates the last bar of window with fresh indicators.
func (s *Strategy) EvaluateWindow(symbol string, window []models.PriceBar, state *State) (Signal, error) {
	e, err := s.Prepare(symbol, window)
	if err != nil {
		return Signal{}, err
	}
	if state == nil {
		state = s.NewState()
	}
	return e.Evaluate(len(window)-1, state), nil
}
