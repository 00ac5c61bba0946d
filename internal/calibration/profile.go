// Package calibration persists and maintains per-user recognition sensitivity.
package calibration

import "time"

// ProfileVersion marks the on-disk schema.
const ProfileVersion = "1.0"

// Profile holds the measured sensitivity settings for one user/environment.
// Created by the Calibrator, mutated after every recognition attempt, and
// persisted by the Store after every mutation. Never deleted, only superseded.
type Profile struct {
	EnergyThreshold float64   `json:"energy_threshold"`
	PauseThreshold  float64   `json:"pause_threshold"` // seconds
	CapturedAt      time.Time `json:"captured_at"`
	Attempts        int       `json:"attempts"`
	Successes       int       `json:"successes"`
	SuccessRate     float64   `json:"success_rate"`
	WakeWord        string    `json:"wake_word,omitempty"`
	Version         string    `json:"version"`
}

// Pause returns the pause threshold as a duration.
func (p *Profile) Pause() time.Duration {
	return time.Duration(p.PauseThreshold * float64(time.Second))
}

// SetPause stores a duration as the pause threshold.
func (p *Profile) SetPause(d time.Duration) {
	p.PauseThreshold = d.Seconds()
}

// RecordAttempt folds one recognition attempt into the rolling success rate.
func (p *Profile) RecordAttempt(ok bool) {
	p.Attempts++
	if ok {
		p.Successes++
	}
	p.SuccessRate = float64(p.Successes) / float64(p.Attempts)
}
