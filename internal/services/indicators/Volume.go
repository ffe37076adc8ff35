package indicators

import "fmt"

type VolumeService struct{}

// VolumeStats compares each bar's volume with the mean of the window bars
// before it. All series share the warm-up of window bars.
type VolumeStats struct {
	Mean  *Series
	Ratio *Series // volume / mean, 0 when the mean is 0
	Spike []bool  // volume > multiple * mean, aligned with Mean.Values
}

func NewVolumeService() *VolumeService {
	return &VolumeService{}
}

func (s *VolumeService) Calculate(volumes []float64, window int, multiple float64) (*VolumeStats, error) {
	if err := requirePeriod("lookback_period", window); err != nil {
		return nil, err
	}
	if err := requirePositive("volume_threshold", multiple); err != nil {
		return nil, err
	}
	if len(volumes) <= window {
		return nil, insufficient(fmt.Sprintf("volume stats(%d)", window), window, len(volumes))
	}

	n := len(volumes) - window
	mean := make([]float64, n)
	ratio := make([]float64, n)
	spike := make([]bool, n)

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += volumes[i]
	}
	for i := window; i < len(volumes); i++ {
		k := i - window
		m := sum / float64(window)
		mean[k] = m
		if m > 0 {
			ratio[k] = volumes[i] / m
		}
		spike[k] = volumes[i] > multiple*m

		// slide the window forward to end at bar i
		sum += volumes[i] - volumes[i-window]
	}

	return &VolumeStats{
		Mean:  &Series{Name: "volume_mean", Warmup: window, Values: mean},
		Ratio: &Series{Name: "volume_ratio", Warmup: window, Values: ratio},
		Spike: spike,
	}, nil
}

// SpikeAt reports the threshold flag for input bar i.
func (v *VolumeStats) SpikeAt(i int) bool {
	k := i - v.Mean.Warmup
	return k >= 0 && k < len(v.Spike) && v.Spike[k]
}
