package strategy

import (
	"fmt"
	"time"

	"CryptoTradeCore/internal/models"
)

// Kind identifies one of the fixed strategy variants.
type Kind string

const (
	KindRSI            Kind = "rsi"
	KindBollingerBands Kind = "bollinger_bands"
	KindMACD           Kind = "macd"
	KindVolumeBreakout Kind = "volume_breakout"
	KindGridTrading    Kind = "grid_trading"
)

// Kinds lists every variant in a stable order.
func Kinds() []Kind {
	return []Kind{KindRSI, KindBollingerBands, KindMACD, KindVolumeBreakout, KindGridTrading}
}

// ParseKind validates s as a strategy kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnknownStrategy, s)
}

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Parameters maps parameter names (rsi_period, stop_loss_percent, ...) to
// values. Integer parameters are carried as whole floats.
type Parameters map[string]float64

// Clone returns an independent copy.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Signal is the decision for one bar.
type Signal struct {
	Symbol    string     `json:"symbol"`
	Timestamp time.Time  `json:"timestamp"`
	Action    Action     `json:"action"`
	Strength  float64    `json:"strength"` // in [0,1]
	Price     float64    `json:"price"`
	Reason    string     `json:"reason,omitempty"`
	Strategy  Kind       `json:"strategy"`
	Params    Parameters `json:"parameters"`

	// Notional overrides the default buy size when > 0.
	Notional float64 `json:"notional,omitempty"`
	// Quantity requests a partial sell when > 0.
	Quantity float64 `json:"quantity,omitempty"`
	// GridLevel is the grid level behind the signal, -1 otherwise.
	GridLevel int `json:"grid_level"`
}

// Risk holds the position-sizing and exit settings of a strategy. Zero
// percentages disable the corresponding exit.
type Risk struct {
	MaxPositionSize   float64 `json:"max_position_size"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
}

func hold(reason string) (Action, float64, string) {
	return ActionHold, 0, reason
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
