package calibration

import "time"

// AdjustPolicy loosens recognition sensitivity when the rolling success rate
// drops. The exact curve is deliberately configuration, not code: the numbers
// below are a starting point, not a law.
type AdjustPolicy struct {
	MinSuccessRate float64       // adjust when rate falls below this
	MinAttempts    int           // never adjust before this many attempts
	EnergyFactor   float64       // multiply energy threshold (lower = more sensitive)
	EnergyFloor    float64       // never go below this energy threshold
	PauseFactor    float64       // multiply pause threshold (higher = more patient)
	PauseCeiling   time.Duration // never wait longer than this for pauses
}

// DefaultAdjustPolicy returns the stock tuning.
func DefaultAdjustPolicy() AdjustPolicy {
	return AdjustPolicy{
		MinSuccessRate: 0.30,
		MinAttempts:    3,
		EnergyFactor:   0.7,
		EnergyFloor:    100,
		PauseFactor:    1.2,
		PauseCeiling:   5 * time.Second,
	}
}

// Apply loosens the profile's thresholds if the success rate warrants it.
// Returns true when the profile changed and should be persisted.
func (a AdjustPolicy) Apply(p *Profile) bool {
	if p == nil || p.Attempts < a.MinAttempts {
		return false
	}
	if p.SuccessRate >= a.MinSuccessRate {
		return false
	}

	energy := p.EnergyThreshold * a.EnergyFactor
	if energy < a.EnergyFloor {
		energy = a.EnergyFloor
	}

	pause := time.Duration(float64(p.Pause()) * a.PauseFactor)
	if pause > a.PauseCeiling {
		pause = a.PauseCeiling
	}

	if energy == p.EnergyThreshold && pause == p.Pause() {
		return false
	}

	p.EnergyThreshold = energy
	p.SetPause(pause)
	return true
}
