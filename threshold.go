package mfbo

import "fmt"

// Threshold defaults.
const (
	DefaultThresholdNominal = 0.7
	DefaultThresholdCeiling = 0.8
	DefaultThresholdFloor   = 0.05
	DefaultThresholdStep    = 0.01
)

// AdaptiveThreshold is a feasibility-probability cutoff for rejection
// sampling. Within one sampling call a working copy relaxes by Step after
// every fully rejected round, never below Floor. The Nominal value persists
// across calls and only moves up, by Step, after a call that never relaxed,
// never above Ceiling.
//
// Invariant: 0 < Floor <= working value <= Nominal <= Ceiling <= 0.8.
type AdaptiveThreshold struct {
	Nominal float64 `yaml:"nominal"`
	Ceiling float64 `yaml:"ceiling"`
	Floor   float64 `yaml:"floor"`
	Step    float64 `yaml:"step"`
}

// DefaultAdaptiveThreshold returns a threshold starting at 0.7.
func DefaultAdaptiveThreshold() AdaptiveThreshold {
	return AdaptiveThreshold{
		Nominal: DefaultThresholdNominal,
		Ceiling: DefaultThresholdCeiling,
		Floor:   DefaultThresholdFloor,
		Step:    DefaultThresholdStep,
	}
}

// Validate checks the invariant.
func (t AdaptiveThreshold) Validate() error {
	if !(t.Floor > 0 && t.Floor <= t.Nominal && t.Nominal <= t.Ceiling && t.Ceiling <= DefaultThresholdCeiling) {
		return fmt.Errorf("%w: threshold must satisfy 0 < floor (%v) <= nominal (%v) <= ceiling (%v) <= %v",
			ErrConfiguration, t.Floor, t.Nominal, t.Ceiling, DefaultThresholdCeiling)
	}

	if t.Step <= 0 {
		return fmt.Errorf("%w: threshold step must be positive, got %v", ErrConfiguration, t.Step)
	}

	return nil
}

// Relax returns the working value after a fully rejected round.
func (t AdaptiveThreshold) Relax(working float64) float64 {
	next := roundThreshold(working - t.Step)
	if next < t.Floor {
		return t.Floor
	}

	return next
}

// Settle returns the threshold to carry into the next call, given the working
// value the finished call ended with. Only a call that never relaxed nudges
// the nominal value up.
func (t AdaptiveThreshold) Settle(working float64) AdaptiveThreshold {
	if working == t.Nominal && t.Nominal < t.Ceiling {
		t.Nominal = roundThreshold(t.Nominal + t.Step)
		if t.Nominal > t.Ceiling {
			t.Nominal = t.Ceiling
		}
	}

	return t
}
