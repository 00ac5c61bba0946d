package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/rs/zerolog"
)

// ErrCalibration means ambient measurement could not run, usually because no
// audio input is available. The caller treats this as fatal to voice mode.
var ErrCalibration = errors.New("ambient calibration failed")

// CalibratorConfig bounds the ambient measurement.
type CalibratorConfig struct {
	SampleDuration time.Duration // how long to sample ambient noise
	SafetyMargin   float64       // multiplier over the measured noise floor
	EnergyFloor    float64       // minimum usable energy threshold
	DefaultPause   time.Duration // pause threshold for fresh profiles
}

// DefaultCalibratorConfig returns sensible defaults
func DefaultCalibratorConfig() CalibratorConfig {
	return CalibratorConfig{
		SampleDuration: 2 * time.Second,
		SafetyMargin:   1.5,
		EnergyFloor:    150,
		DefaultPause:   time.Second,
	}
}

// Calibrator measures ambient noise to derive recognition sensitivity.
type Calibrator struct {
	cfg    CalibratorConfig
	logger zerolog.Logger
}

// NewCalibrator creates a Calibrator with the given config.
func NewCalibrator(cfg CalibratorConfig, logger zerolog.Logger) *Calibrator {
	if cfg.SampleDuration <= 0 {
		cfg.SampleDuration = 2 * time.Second
	}
	if cfg.SafetyMargin <= 1 {
		cfg.SafetyMargin = 1.5
	}
	if cfg.EnergyFloor <= 0 {
		cfg.EnergyFloor = 150
	}
	if cfg.DefaultPause <= 0 {
		cfg.DefaultPause = time.Second
	}
	return &Calibrator{
		cfg:    cfg,
		logger: logger.With().Str("component", "calibrator").Logger(),
	}
}

// Calibrate samples ambient noise from src for the configured duration and
// derives an energy threshold from the measured noise floor plus a safety
// margin. The user should be quiet while it runs.
func (c *Calibrator) Calibrate(ctx context.Context, src audio.Source) (*Profile, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no audio source", ErrCalibration)
	}
	if err := src.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
	}

	frames := int(c.cfg.SampleDuration / (time.Duration(audio.FrameSamples) * time.Second / audio.SampleRate))
	if frames < 1 {
		frames = 1
	}

	var sum float64
	read := 0
	for i := 0; i < frames; i++ {
		frame, err := src.Read(ctx)
		if err != nil {
			if read == 0 {
				return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
			}
			break
		}
		sum += audio.RMS(frame)
		read++
	}
	if read == 0 {
		return nil, fmt.Errorf("%w: no audio frames captured", ErrCalibration)
	}

	noiseFloor := sum / float64(read)
	threshold := noiseFloor * c.cfg.SafetyMargin
	if threshold < c.cfg.EnergyFloor {
		threshold = c.cfg.EnergyFloor
	}

	p := &Profile{
		EnergyThreshold: threshold,
		CapturedAt:      time.Now(),
		SuccessRate:     1.0,
		Version:         ProfileVersion,
	}
	p.SetPause(c.cfg.DefaultPause)

	c.logger.Info().
		Float64("noiseFloor", noiseFloor).
		Float64("energyThreshold", threshold).
		Dur("sampled", c.cfg.SampleDuration).
		Msg("Ambient calibration complete")
	return p, nil
}
