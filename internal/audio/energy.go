package audio

import "math"

// RMS computes root-mean-square energy of a frame on the raw 16-bit sample
// scale (0..32767), matching the scale calibration thresholds are stored in.
func RMS(frame Frame) float64 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(frame)))
}

// Meter smooths per-frame RMS over a small window so a single noisy frame
// does not flip the speech decision.
type Meter struct {
	history []float64
	index   int
	filled  int
}

// NewMeter creates a Meter smoothing over the given number of frames.
func NewMeter(frames int) *Meter {
	if frames <= 0 {
		frames = 5
	}
	return &Meter{history: make([]float64, frames)}
}

// Feed records a frame's energy and returns the smoothed RMS.
func (m *Meter) Feed(frame Frame) float64 {
	m.history[m.index] = RMS(frame)
	m.index = (m.index + 1) % len(m.history)
	if m.filled < len(m.history) {
		m.filled++
	}

	var sum float64
	for _, e := range m.history[:m.filled] {
		sum += e
	}
	return sum / float64(m.filled)
}

// Reset clears the smoothing window.
func (m *Meter) Reset() {
	for i := range m.history {
		m.history[i] = 0
	}
	m.index = 0
	m.filled = 0
}
