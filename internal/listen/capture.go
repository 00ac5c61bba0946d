package listen

import (
	"context"
	"errors"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/normanking/tunepilot/internal/stt"
	"github.com/rs/zerolog"
)

// Outcome is the result of one command capture attempt.
type Outcome int

const (
	// Captured means a command phrase was recognized.
	Captured Outcome = iota
	// NoSpeech means the user said nothing in the start window. Re-arm and
	// wait for the wake word again; not a recognition failure.
	NoSpeech
	// Failed means speech was heard but recognition failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Captured:
		return "captured"
	case NoSpeech:
		return "no_speech"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandCapture records the command phrase that follows a wake word.
type CommandCapture struct {
	source     audio.Source
	recognizer stt.Recognizer
	config     Config
	logger     zerolog.Logger
}

// NewCommandCapture creates a CommandCapture.
func NewCommandCapture(source audio.Source, recognizer stt.Recognizer, config Config, logger zerolog.Logger) *CommandCapture {
	return &CommandCapture{
		source:     source,
		recognizer: recognizer,
		config:     config,
		logger:     logger.With().Str("component", "capture").Logger(),
	}
}

// Capture waits briefly for the command to start, records the phrase, and
// recognizes it.
func (c *CommandCapture) Capture(ctx context.Context, profile *calibration.Profile) (string, Outcome, error) {
	samples, err := audio.CaptureUtterance(ctx, c.source, audio.CaptureParams{
		StartTimeout:    c.config.CommandStartTimeout,
		PhraseLimit:     c.config.CommandPhraseLimit,
		EnergyThreshold: profile.EnergyThreshold,
		PauseThreshold:  profile.Pause(),
	})
	if err != nil {
		if errors.Is(err, audio.ErrNoSpeech) || errors.Is(err, context.Canceled) {
			c.logger.Debug().Msg("No command followed the wake word")
			return "", NoSpeech, nil
		}
		return "", Failed, err
	}

	text, err := c.recognizer.Recognize(ctx, samples, profile)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Command recognition failed")
		return "", Failed, err
	}

	c.logger.Info().Str("text", text).Msg("Command captured")
	return text, Captured, nil
}
