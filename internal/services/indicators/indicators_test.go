package indicators

import (
	"errors"
	"math"
	"testing"

	"CryptoTradeCore/internal/models"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestEMA_WarmupAndSeed(t *testing.T) {
	ema, err := NewEMAService().Calculate([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ema.Warmup != 2 || ema.Len() != 3 {
		t.Fatalf("expected warmup 2 and 3 values, got %d and %d", ema.Warmup, ema.Len())
	}
	if ema.Values[0] != 2 {
		t.Fatalf("expected SMA seed 2, got %f", ema.Values[0])
	}
	// multiplier 0.5: 2 + (4-2)*0.5 = 3, 3 + (5-3)*0.5 = 4
	if ema.Values[1] != 3 || ema.Values[2] != 4 {
		t.Fatalf("unexpected EMA values %v", ema.Values)
	}
	if _, ok := ema.At(1); ok {
		t.Fatalf("bar 1 is inside the warm-up and must be absent")
	}
}

func TestRSI_LengthMatchesWarmup(t *testing.T) {
	closes := ramp(40, 100, 0.5)
	rsi, err := NewRSIService().Calculate(closes, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsi.Len() != len(closes)-14 {
		t.Fatalf("expected %d values, got %d", len(closes)-14, rsi.Len())
	}
	for i := 0; i < 14; i++ {
		if _, ok := rsi.At(i); ok {
			t.Fatalf("bar %d must be absent", i)
		}
	}
}

func TestRSI_BoundedAndDirectional(t *testing.T) {
	svc := NewRSIService()

	up, err := svc.Calculate(ramp(30, 100, 1), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down, err := svc.Calculate(ramp(30, 130, -1), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := up.Values[up.Len()-1]; last != 100 {
		t.Fatalf("rising series should drive RSI to 100, got %f", last)
	}
	if last := down.Values[down.Len()-1]; last != 0 {
		t.Fatalf("falling series should drive RSI to 0, got %f", last)
	}

	zigzag := make([]float64, 200)
	for i := range zigzag {
		zigzag[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%7)
	}
	rsi, err := svc.Calculate(zigzag, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for k, v := range rsi.Values {
		if v < 0 || v > 100 {
			t.Fatalf("RSI out of bounds at %d: %f", k, v)
		}
	}
}

func TestRSI_FlatSeriesIsNeutral(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	rsi, err := NewRSIService().Calculate(closes, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range rsi.Values {
		if v != 50 {
			t.Fatalf("expected neutral 50 for a flat series, got %f", v)
		}
	}
}

func TestRSI_Errors(t *testing.T) {
	svc := NewRSIService()
	if _, err := svc.Calculate(ramp(14, 1, 1), 14); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	_, err := svc.Calculate(ramp(30, 1, 1), 0)
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	var pe *models.ParameterError
	if !errors.As(err, &pe) || pe.Name != "rsi_period" {
		t.Fatalf("expected the parameter name in the error, got %v", err)
	}
}

func TestBollinger_KnownValues(t *testing.T) {
	bands, err := NewBBandsService().Calculate([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bands.Middle.Len() != 1 || bands.Middle.Warmup != 7 {
		t.Fatalf("expected one value after a warm-up of 7, got %d/%d", bands.Middle.Len(), bands.Middle.Warmup)
	}
	// mean 5, population std 2
	if bands.Middle.Values[0] != 5 || bands.Upper.Values[0] != 9 || bands.Lower.Values[0] != 1 {
		t.Fatalf("unexpected bands %f %f %f", bands.Lower.Values[0], bands.Middle.Values[0], bands.Upper.Values[0])
	}
}

func TestBollinger_Errors(t *testing.T) {
	svc := NewBBandsService()
	if _, err := svc.Calculate(ramp(19, 1, 1), 20, 2); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := svc.Calculate(ramp(40, 1, 1), 20, -1); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestMACD_Alignment(t *testing.T) {
	prices := ramp(60, 100, 0.3)
	res, err := NewMACDService().Calculate(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MACD.Warmup != 25 || res.MACD.Len() != 60-25 {
		t.Fatalf("unexpected MACD alignment %d/%d", res.MACD.Warmup, res.MACD.Len())
	}
	if res.Signal.Warmup != 33 || res.Signal.Len() != 60-33 {
		t.Fatalf("unexpected signal alignment %d/%d", res.Signal.Warmup, res.Signal.Len())
	}
	for i := res.Signal.Warmup; i < len(prices); i++ {
		m, _ := res.MACD.At(i)
		s, _ := res.Signal.At(i)
		h, ok := res.Histogram.At(i)
		if !ok || h != m-s {
			t.Fatalf("histogram mismatch at bar %d", i)
		}
	}
}

func TestMACD_Errors(t *testing.T) {
	svc := NewMACDService()
	if _, err := svc.Calculate(ramp(100, 1, 1), 26, 12, 9); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for slow <= fast, got %v", err)
	}
	if _, err := svc.Calculate(ramp(33, 1, 1), 12, 26, 9); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestVolumeStats_Spike(t *testing.T) {
	volumes := []float64{10, 10, 10, 10, 35, 10}
	stats, err := NewVolumeService().Calculate(volumes, 4, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mean.Len() != 2 {
		t.Fatalf("expected 2 values, got %d", stats.Mean.Len())
	}
	if m, _ := stats.Mean.At(4); m != 10 {
		t.Fatalf("expected mean 10 at bar 4, got %f", m)
	}
	if !stats.SpikeAt(4) || stats.SpikeAt(5) {
		t.Fatalf("expected a spike only at bar 4, got %v", stats.Spike)
	}
	if r, _ := stats.Ratio.At(4); r != 3.5 {
		t.Fatalf("expected ratio 3.5, got %f", r)
	}
}

func TestCheckCrossover(t *testing.T) {
	if c := CheckCrossover(-1, 0, 1, 0); !c.Crossed || c.Direction != 1 {
		t.Fatalf("expected bullish cross, got %+v", c)
	}
	if c := CheckCrossover(1, 0, -1, 0); !c.Crossed || c.Direction != -1 {
		t.Fatalf("expected bearish cross, got %+v", c)
	}
	if c := CheckCrossover(0, 0, 0, 0); c.Crossed {
		t.Fatalf("flat lines must not cross")
	}
}
