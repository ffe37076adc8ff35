package optimize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/services/strategy"
)

const (
	DimensionRange   = "range"
	DimensionChoices = "choices"
)

// rangeEpsilon absorbs float error when deciding whether the end of a range
// is reached, as a fraction of the step.
const rangeEpsilon = 1e-9

// Dimension is the set of values swept for one parameter: either an
// arithmetic range or an explicit list of choices.
type Dimension struct {
	Type         string    `json:"type,omitempty" yaml:"type"`
	Start        float64   `json:"start,omitempty" yaml:"start"`
	End          float64   `json:"end,omitempty" yaml:"end"`
	Step         float64   `json:"step,omitempty" yaml:"step"`
	ExclusiveEnd bool      `json:"exclusive_end,omitempty" yaml:"exclusive_end"`
	Choices      []float64 `json:"choices,omitempty" yaml:"choices"`
}

func Range(start, end, step float64) Dimension {
	return Dimension{Type: DimensionRange, Start: start, End: end, Step: step}
}

func Choices(values ...float64) Dimension {
	return Dimension{Type: DimensionChoices, Choices: values}
}

// dimensionFields decodes a Dimension, taking "values" as another name
// for "choices".
type dimensionFields struct {
	plainDimension `yaml:",inline"`
	Values         []float64 `json:"values" yaml:"values"`
}

type plainDimension Dimension

func (f dimensionFields) dimension() Dimension {
	d := Dimension(f.plainDimension)
	if len(d.Choices) == 0 {
		d.Choices = f.Values
	}
	return d
}

func (d *Dimension) UnmarshalJSON(data []byte) error {
	var f dimensionFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*d = f.dimension()
	return nil
}

func (d *Dimension) UnmarshalYAML(node *yaml.Node) error {
	var f dimensionFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*d = f.dimension()
	return nil
}

func invalidSpace(name, constraint string, value any) error {
	return &models.ParameterError{Kind: models.ErrInvalidParameterSpace, Name: name, Constraint: constraint, Value: value}
}

func (d Dimension) kind() string {
	if d.Type == "" && len(d.Choices) > 0 {
		return DimensionChoices
	}
	if d.Type == "" {
		return DimensionRange
	}
	return d.Type
}

// Values enumerates the dimension. Ranges include End unless ExclusiveEnd is
// set; values are computed as Start + i*Step so error does not accumulate.
func (d Dimension) Values(name string) ([]float64, error) {
	switch d.kind() {
	case DimensionChoices:
		if len(d.Choices) == 0 {
			return nil, invalidSpace(name, "at least one choice", len(d.Choices))
		}
		for _, v := range d.Choices {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, invalidSpace(name, "finite choices", v)
			}
		}
		return append([]float64(nil), d.Choices...), nil
	case DimensionRange:
	default:
		return nil, invalidSpace(name, "type range or choices", d.Type)
	}

	for _, v := range [...]float64{d.Start, d.End, d.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalidSpace(name, "finite start, end and step", v)
		}
	}
	if d.Step <= 0 {
		return nil, invalidSpace(name, "step > 0", d.Step)
	}
	if d.Start > d.End {
		return nil, invalidSpace(name, fmt.Sprintf("start <= end (%g)", d.End), d.Start)
	}

	steps := (d.End - d.Start) / d.Step
	n := int(math.Floor(steps+rangeEpsilon)) + 1
	if d.ExclusiveEnd && math.Abs(steps-math.Round(steps)) <= rangeEpsilon {
		n = int(math.Round(steps))
	}
	if n <= 0 {
		return nil, invalidSpace(name, "a non-empty range", fmt.Sprintf("[%g, %g)", d.Start, d.End))
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = d.Start + float64(i)*d.Step
	}
	return values, nil
}

// Space maps parameter names to the values swept for them.
type Space map[string]Dimension

// names returns the parameters in enumeration order.
func (s Space) names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the cartesian product size, failing once it passes limit
// (limit <= 0 disables the check).
func (s Space) Size(limit int) (int, error) {
	if len(s) == 0 {
		return 0, invalidSpace("parameter_space", "at least one parameter", 0)
	}
	size := 1
	for _, name := range s.names() {
		values, err := s[name].Values(name)
		if err != nil {
			return 0, err
		}
		size *= len(values)
		if limit > 0 && size > limit {
			return 0, invalidSpace("parameter_space", fmt.Sprintf("at most %d combinations", limit), fmt.Sprintf("more than %d", limit))
		}
	}
	return size, nil
}

// Validate checks every dimension and that kind accepts every name.
func (s Space) Validate(kind strategy.Kind, limit int) error {
	known := make(map[string]bool)
	for _, name := range strategy.ParameterNames(kind) {
		known[name] = true
	}
	for _, name := range s.names() {
		if !known[name] {
			return invalidSpace(name, fmt.Sprintf("a %s parameter", kind), name)
		}
	}
	_, err := s.Size(limit)
	return err
}

// Combinations enumerates the cartesian product with parameters taken in
// name order and the last name varying fastest.
func (s Space) Combinations() ([]strategy.Parameters, error) {
	names := s.names()
	if len(names) == 0 {
		return nil, invalidSpace("parameter_space", "at least one parameter", 0)
	}
	axes := make([][]float64, len(names))
	for i, name := range names {
		values, err := s[name].Values(name)
		if err != nil {
			return nil, err
		}
		axes[i] = values
	}

	combos := []strategy.Parameters{{}}
	for i, name := range names {
		next := make([]strategy.Parameters, 0, len(combos)*len(axes[i]))
		for _, base := range combos {
			for _, v := range axes[i] {
				p := base.Clone()
				p[name] = v
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos, nil
}

// SuggestedSpace is a modest default sweep for kind.
func SuggestedSpace(kind strategy.Kind) (Space, error) {
	switch kind {
	case strategy.KindRSI:
		return Space{
			"rsi_period":     Range(10, 20, 2),
			"rsi_overbought": Range(65, 80, 5),
			"rsi_oversold":   Range(20, 35, 5),
		}, nil
	case strategy.KindBollingerBands:
		return Space{
			"bb_period":  Range(15, 25, 5),
			"bb_std_dev": Choices(1.5, 2.0, 2.5),
		}, nil
	case strategy.KindMACD:
		return Space{
			"fast_period":   Range(8, 16, 2),
			"slow_period":   Range(20, 30, 2),
			"signal_period": Range(7, 12, 1),
		}, nil
	case strategy.KindVolumeBreakout:
		return Space{
			"volume_threshold":       Choices(1.5, 2.0, 2.5, 3.0),
			"price_breakout_percent": Range(1.0, 3.0, 0.5),
		}, nil
	case strategy.KindGridTrading:
		return Space{
			"grid_levels":          Range(5, 15, 2),
			"grid_spacing_percent": Choices(1.0, 1.5, 2.0, 2.5),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, kind)
}
