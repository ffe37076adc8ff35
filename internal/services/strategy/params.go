package strategy

import (
	"fmt"
	"math"
	"sort"

	"CryptoTradeCore/internal/models"
)

type constraint int

const (
	positiveInt constraint = iota
	positive
	nonNegative
	flag
	oscillatorLevel
)

func (c constraint) String() string {
	switch c {
	case positiveInt:
		return "a positive integer"
	case positive:
		return "a positive number"
	case nonNegative:
		return "zero or a positive number"
	case flag:
		return "0 or 1"
	case oscillatorLevel:
		return "between 0 and 100 exclusive"
	}
	return "valid"
}

func (c constraint) check(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	switch c {
	case positiveInt:
		return v > 0 && v == math.Trunc(v)
	case positive:
		return v > 0
	case nonNegative:
		return v >= 0
	case flag:
		return v == 0 || v == 1
	case oscillatorLevel:
		return v > 0 && v < 100
	}
	return false
}

type paramSpec struct {
	Name        string
	Default     float64
	rule        constraint
	Description string
}

const (
	ParamMaxPositionSize   = "max_position_size"
	ParamStopLossPercent   = "stop_loss_percent"
	ParamTakeProfitPercent = "take_profit_percent"
)

func riskSpecs(maxSize, stopLoss, takeProfit float64) []paramSpec {
	return []paramSpec{
		{ParamMaxPositionSize, maxSize, positive, "Maximum position cost in quote currency"},
		{ParamStopLossPercent, stopLoss, nonNegative, "Stop-loss distance below average entry, percent (0 disables)"},
		{ParamTakeProfitPercent, takeProfit, nonNegative, "Take-profit distance above average entry, percent (0 disables)"},
	}
}

var catalog = map[Kind][]paramSpec{
	KindRSI: append([]paramSpec{
		{"rsi_period", 14, positiveInt, "RSI calculation period"},
		{"rsi_overbought", 70, oscillatorLevel, "RSI overbought threshold"},
		{"rsi_oversold", 30, oscillatorLevel, "RSI oversold threshold"},
		{"rsi_crossing", 1, flag, "1 trades threshold re-crossings, 0 trades threshold levels"},
	}, riskSpecs(10000, 3.0, 6.0)...),
	KindBollingerBands: append([]paramSpec{
		{"bb_period", 20, positiveInt, "Bollinger Bands period"},
		{"bb_std_dev", 2.0, positive, "Standard deviation multiplier"},
		{"min_volume", 100000, nonNegative, "Minimum bar volume to act on a band touch"},
	}, riskSpecs(15000, 2.5, 5.0)...),
	KindMACD: append([]paramSpec{
		{"fast_period", 12, positiveInt, "Fast EMA period"},
		{"slow_period", 26, positiveInt, "Slow EMA period"},
		{"signal_period", 9, positiveInt, "Signal line EMA period"},
		{"min_macd_strength", 0.1, nonNegative, "Minimum absolute MACD value at the crossing"},
	}, riskSpecs(12000, 3.5, 7.0)...),
	KindVolumeBreakout: append([]paramSpec{
		{"volume_threshold", 2.0, positive, "Volume multiple of the lookback mean"},
		{"price_breakout_percent", 1.5, positive, "Break beyond resistance/support, percent"},
		{"lookback_period", 20, positiveInt, "Bars used for mean volume and resistance/support"},
		{"min_price", 10.0, nonNegative, "Minimum close price to consider"},
	}, riskSpecs(8000, 4.0, 8.0)...),
	KindGridTrading: append([]paramSpec{
		{"grid_levels", 10, positiveInt, "Number of grid levels"},
		{"grid_spacing_percent", 2.0, positive, "Spacing between levels, percent of the grid center"},
		{"base_order_size", 1000, positive, "Notional bought at each level"},
		{"max_grid_range_percent", 20.0, positive, "Maximum distance of any level from the center, percent"},
	}, riskSpecs(50000, 15.0, 0)...),
}

// Defaults returns the default parameters of kind, risk settings included.
func Defaults(kind Kind) (Parameters, error) {
	specs, ok := catalog[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, kind)
	}
	out := make(Parameters, len(specs))
	for _, s := range specs {
		out[s.Name] = s.Default
	}
	return out, nil
}

// ParameterNames lists the parameters accepted by kind in declaration order.
func ParameterNames(kind Kind) []string {
	specs := catalog[kind]
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Resolve merges overrides onto the defaults of kind and validates every
// value. Unknown names are rejected.
func Resolve(kind Kind, overrides Parameters) (Parameters, error) {
	params, err := Defaults(kind)
	if err != nil {
		return nil, err
	}

	// sorted so the first reported problem is stable
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, known := params[name]; !known {
			return nil, models.InvalidParameter(name, fmt.Sprintf("a %s parameter", kind), overrides[name])
		}
		params[name] = overrides[name]
	}

	for _, s := range catalog[kind] {
		if v := params[s.Name]; !s.rule.check(v) {
			return nil, models.InvalidParameter(s.Name, s.rule.String(), v)
		}
	}
	return params, nil
}

func riskFrom(p Parameters) Risk {
	return Risk{
		MaxPositionSize:   p[ParamMaxPositionSize],
		StopLossPercent:   p[ParamStopLossPercent],
		TakeProfitPercent: p[ParamTakeProfitPercent],
	}
}

// Definition describes a strategy kind for callers pre-populating requests.
type Definition struct {
	Kind       Kind                  `json:"kind"`
	Name       string                `json:"name"`
	Defaults   Parameters            `json:"defaults"`
	Parameters []ParameterDefinition `json:"parameters"`
}

type ParameterDefinition struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Constraint  string  `json:"constraint"`
	Description string  `json:"description"`
}

var displayNames = map[Kind]string{
	KindRSI:            "RSI Strategy",
	KindBollingerBands: "Bollinger Bands Strategy",
	KindMACD:           "MACD Strategy",
	KindVolumeBreakout: "Volume Breakout Strategy",
	KindGridTrading:    "Grid Trading Strategy",
}

// Catalog describes every strategy kind.
func Catalog() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, kind := range Kinds() {
		defaults, _ := Defaults(kind)
		def := Definition{Kind: kind, Name: displayNames[kind], Defaults: defaults}
		for _, s := range catalog[kind] {
			def.Parameters = append(def.Parameters, ParameterDefinition{
				Name:        s.Name,
				Default:     s.Default,
				Constraint:  s.rule.String(),
				Description: s.Description,
			})
		}
		defs = append(defs, def)
	}
	return defs
}
