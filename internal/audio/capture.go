package audio

import (
	"context"
	"time"
)

// CaptureParams bound a single utterance capture.
type CaptureParams struct {
	// StartTimeout is how long to wait for speech to begin.
	StartTimeout time.Duration

	// PhraseLimit caps the utterance length once speech has begun.
	PhraseLimit time.Duration

	// EnergyThreshold separates speech from ambient noise (RMS, raw scale).
	EnergyThreshold float64

	// PauseThreshold is the silence duration that ends an utterance.
	PauseThreshold time.Duration
}

// frameDuration is the audio time represented by one frame.
const frameDuration = time.Duration(FrameSamples) * time.Second / SampleRate

// preRollFrames of audio kept from just before speech onset, so the first
// syllable is not clipped.
const preRollFrames = 10

// CaptureUtterance waits up to StartTimeout for speech to begin on src, then
// records until the speaker pauses for PauseThreshold or PhraseLimit is
// reached. Time is counted in audio frames, not wall clock, so a Source that
// delivers faster than real time (tests) behaves identically.
//
// Returns ErrNoSpeech if the start window expires without speech; that is the
// expected "nothing said" outcome, not a device failure.
func CaptureUtterance(ctx context.Context, src Source, p CaptureParams) ([]int16, error) {
	meter := NewMeter(5)

	var (
		elapsed   time.Duration
		started   bool
		speechDur time.Duration
		silence   time.Duration
		preRoll   []Frame
		captured  []int16
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Read(ctx)
		if err != nil {
			return nil, err
		}
		elapsed += frameDuration

		level := meter.Feed(frame)
		speaking := level >= p.EnergyThreshold

		if !started {
			if speaking {
				started = true
				for _, f := range preRoll {
					captured = append(captured, f...)
				}
				captured = append(captured, frame...)
				continue
			}

			preRoll = append(preRoll, frame)
			if len(preRoll) > preRollFrames {
				preRoll = preRoll[1:]
			}
			if elapsed >= p.StartTimeout {
				return nil, ErrNoSpeech
			}
			continue
		}

		captured = append(captured, frame...)
		speechDur += frameDuration

		if speaking {
			silence = 0
		} else {
			silence += frameDuration
			if silence >= p.PauseThreshold {
				return captured, nil
			}
		}

		if speechDur >= p.PhraseLimit {
			return captured, nil
		}
	}
}
