package indicators

import (
	"math"

	"CryptoTradeCore/internal/models"
)

// Series is an indicator output aligned with the tail of its input. The
// first Warmup input bars have no value; Values[k] belongs to bar Warmup+k,
// so len(Values) == input length - Warmup.
type Series struct {
	Name   string
	Warmup int
	Values []float64
}

// Len is the number of defined values.
func (s *Series) Len() int {
	return len(s.Values)
}

// At returns the value for input bar i. ok is false inside the warm-up and
// past the end.
func (s *Series) At(i int) (v float64, ok bool) {
	if s == nil {
		return 0, false
	}
	k := i - s.Warmup
	if k < 0 || k >= len(s.Values) {
		return 0, false
	}
	return s.Values[k], true
}

func requirePeriod(name string, period int) error {
	if period <= 0 {
		return models.InvalidParameter(name, "a positive integer", period)
	}
	return nil
}

func requirePositive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return models.InvalidParameter(name, "a positive number", v)
	}
	return nil
}

func insufficient(what string, warmup, have int) error {
	return models.InsufficientData(what, warmup, have)
}
