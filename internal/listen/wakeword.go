// Package listen couples audio capture with speech recognition for the two
// listening phases: waiting for the wake word and capturing a command.
package listen

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/normanking/tunepilot/internal/stt"
	"github.com/rs/zerolog"
)

// WakeResult is the outcome of one wake-word listening pass.
type WakeResult int

const (
	// WakeMatched means the wake word was heard.
	WakeMatched WakeResult = iota
	// WakeTimedOut means the window elapsed without the wake word. Not a
	// recognition failure.
	WakeTimedOut
	// WakeFailed means the recognition service failed or timed out.
	WakeFailed
)

func (r WakeResult) String() string {
	switch r {
	case WakeMatched:
		return "matched"
	case WakeTimedOut:
		return "timed_out"
	case WakeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the capture window durations for both listening phases.
type Config struct {
	// WakeTimeout bounds how long one wake pass waits for speech to start.
	WakeTimeout time.Duration
	// WakePhraseLimit caps the length of a wake utterance.
	WakePhraseLimit time.Duration
	// CommandStartTimeout bounds the wait for a command to begin after the
	// wake acknowledgment.
	CommandStartTimeout time.Duration
	// CommandPhraseLimit caps the length of a command utterance.
	CommandPhraseLimit time.Duration
}

// DefaultConfig returns the standard window durations.
func DefaultConfig() Config {
	return Config{
		WakeTimeout:         30 * time.Second,
		WakePhraseLimit:     5 * time.Second,
		CommandStartTimeout: 3 * time.Second,
		CommandPhraseLimit:  7 * time.Second,
	}
}

// WakeListener runs wake-word passes over a microphone source.
type WakeListener struct {
	source     audio.Source
	recognizer stt.Recognizer
	config     Config
	logger     zerolog.Logger
}

// NewWakeListener creates a WakeListener.
func NewWakeListener(source audio.Source, recognizer stt.Recognizer, config Config, logger zerolog.Logger) *WakeListener {
	return &WakeListener{
		source:     source,
		recognizer: recognizer,
		config:     config,
		logger:     logger.With().Str("component", "wake").Logger(),
	}
}

// Listen runs one wake pass: capture an utterance, recognize it, and match
// it against wakeWord. Unintelligible audio counts as a timeout, not a
// recognition failure; only service faults return WakeFailed.
func (w *WakeListener) Listen(ctx context.Context, wakeWord string, profile *calibration.Profile) (WakeResult, error) {
	samples, err := audio.CaptureUtterance(ctx, w.source, audio.CaptureParams{
		StartTimeout:    w.config.WakeTimeout,
		PhraseLimit:     w.config.WakePhraseLimit,
		EnergyThreshold: profile.EnergyThreshold,
		PauseThreshold:  profile.Pause(),
	})
	if err != nil {
		if errors.Is(err, audio.ErrNoSpeech) || errors.Is(err, context.Canceled) {
			return WakeTimedOut, nil
		}
		return WakeFailed, err
	}

	text, err := w.recognizer.Recognize(ctx, samples, profile)
	if err != nil {
		if errors.Is(err, stt.ErrUnintelligible) {
			// Background noise tripped the energy gate. Nothing to count.
			return WakeTimedOut, nil
		}
		w.logger.Warn().Err(err).Msg("Wake recognition failed")
		return WakeFailed, err
	}

	if Matches(text, wakeWord) {
		w.logger.Info().Str("heard", text).Msg("Wake word detected")
		return WakeMatched, nil
	}
	w.logger.Debug().Str("heard", text).Msg("Speech did not contain wake word")
	return WakeTimedOut, nil
}

// Matches reports whether heard speech contains the wake word. Both sides
// are folded to lowercase letters so punctuation and casing from the STT
// service cannot break the match. An empty wake word never matches.
func Matches(text, wakeWord string) bool {
	wake := foldPhrase(wakeWord)
	if wake == "" {
		return false
	}
	heard := foldPhrase(text)
	if heard == "" {
		return false
	}
	return strings.Contains(" "+heard+" ", " "+wake+" ")
}

func foldPhrase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
