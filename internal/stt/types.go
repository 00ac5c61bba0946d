// Package stt provides speech-to-text recognition over captured utterances.
package stt

import (
	"context"
	"errors"

	"github.com/normanking/tunepilot/internal/calibration"
)

// Common errors
var (
	// ErrTimeout means the service did not answer within the request budget.
	ErrTimeout = errors.New("recognition timeout")

	// ErrUnintelligible means the service answered but produced no usable
	// transcript for the audio.
	ErrUnintelligible = errors.New("unintelligible audio")

	// ErrServiceUnavailable covers network and service-side failures.
	ErrServiceUnavailable = errors.New("recognition service unavailable")
)

// Recognizer converts a captured utterance into text. Implementations
// classify failures into the package error taxonomy; callers branch with
// errors.Is and never see raw transport errors.
type Recognizer interface {
	// Name returns the provider identifier (e.g. "whisper-api").
	Name() string

	// Recognize transcribes mono 16 kHz PCM samples. The calibration profile
	// carries per-user hints; providers may use or ignore them.
	Recognize(ctx context.Context, samples []int16, profile *calibration.Profile) (string, error)
}
