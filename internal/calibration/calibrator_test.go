package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toneSource emits frames of constant amplitude.
type toneSource struct {
	amplitude int16
	startErr  error
	readErr   error
}

func (s *toneSource) Start(ctx context.Context) error { return s.startErr }

func (s *toneSource) Read(ctx context.Context) (audio.Frame, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	f := make(audio.Frame, audio.FrameSamples)
	for i := range f {
		f[i] = s.amplitude
	}
	return f, nil
}

func (s *toneSource) Close() error { return nil }

func testCalibrator() *Calibrator {
	return NewCalibrator(CalibratorConfig{
		SampleDuration: 100 * time.Millisecond,
		SafetyMargin:   1.5,
		EnergyFloor:    150,
		DefaultPause:   time.Second,
	}, zerolog.Nop())
}

func TestCalibrateDerivesThreshold(t *testing.T) {
	c := testCalibrator()

	p, err := c.Calibrate(context.Background(), &toneSource{amplitude: 400})
	require.NoError(t, err)

	// Noise floor 400 RMS with a 1.5x margin.
	assert.InDelta(t, 600, p.EnergyThreshold, 1)
	assert.Equal(t, time.Second, p.Pause())
	assert.InDelta(t, 1.0, p.SuccessRate, 0.001)
	assert.False(t, p.CapturedAt.IsZero())
}

func TestCalibrateAppliesFloor(t *testing.T) {
	c := testCalibrator()

	// A very quiet room must not produce a hair-trigger threshold.
	p, err := c.Calibrate(context.Background(), &toneSource{amplitude: 10})
	require.NoError(t, err)
	assert.InDelta(t, 150, p.EnergyThreshold, 0.001)
}

func TestCalibrateNilSource(t *testing.T) {
	_, err := testCalibrator().Calibrate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestCalibrateStartFailure(t *testing.T) {
	_, err := testCalibrator().Calibrate(context.Background(), &toneSource{startErr: audio.ErrNoDevice})
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestCalibrateReadFailure(t *testing.T) {
	_, err := testCalibrator().Calibrate(context.Background(), &toneSource{readErr: audio.ErrClosed})
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestAdjustLoosensOnLowSuccessRate(t *testing.T) {
	policy := DefaultAdjustPolicy()
	p := &Profile{EnergyThreshold: 300, Attempts: 4, Successes: 1, SuccessRate: 0.25}
	p.SetPause(time.Second)

	changed := policy.Apply(p)

	assert.True(t, changed)
	assert.InDelta(t, 210, p.EnergyThreshold, 0.001)
	assert.InDelta(t, 1.2, p.PauseThreshold, 0.001)
}

func TestAdjustRespectsMinAttempts(t *testing.T) {
	policy := DefaultAdjustPolicy()
	p := &Profile{EnergyThreshold: 300, Attempts: 2, Successes: 0, SuccessRate: 0}
	p.SetPause(time.Second)

	assert.False(t, policy.Apply(p))
	assert.InDelta(t, 300, p.EnergyThreshold, 0.001)
}

func TestAdjustLeavesHealthyProfileAlone(t *testing.T) {
	policy := DefaultAdjustPolicy()
	p := &Profile{EnergyThreshold: 300, Attempts: 10, Successes: 8, SuccessRate: 0.8}
	p.SetPause(time.Second)

	assert.False(t, policy.Apply(p))
}

func TestAdjustClampsAtLimits(t *testing.T) {
	policy := DefaultAdjustPolicy()
	p := &Profile{EnergyThreshold: 110, Attempts: 10, Successes: 1, SuccessRate: 0.1}
	p.SetPause(4800 * time.Millisecond)

	require.True(t, policy.Apply(p))
	assert.InDelta(t, 100, p.EnergyThreshold, 0.001)
	assert.Equal(t, 5*time.Second, p.Pause())

	// Fully clamped profiles stop changing.
	assert.False(t, policy.Apply(p))
}

func TestAdjustNilProfile(t *testing.T) {
	assert.False(t, DefaultAdjustPolicy().Apply(nil))
}
