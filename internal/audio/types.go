// Package audio provides microphone capture and energy-based utterance detection.
package audio

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNoDevice = errors.New("no audio input device available")
	ErrNoSpeech = errors.New("no speech detected within start window")
	ErrClosed   = errors.New("audio source closed")
)

const (
	// SampleRate is the capture rate in Hz. 16 kHz mono covers speech.
	SampleRate = 16000

	// FrameSamples is the number of samples per frame (20 ms at 16 kHz).
	FrameSamples = 320
)

// Frame is a single chunk of mono 16-bit PCM samples.
type Frame []int16

// Source yields fixed-size PCM frames from an audio input.
type Source interface {
	// Start begins capture. Must be called before Read.
	Start(ctx context.Context) error

	// Read blocks until the next frame is available or ctx is done.
	Read(ctx context.Context) (Frame, error)

	// Close releases the underlying device.
	Close() error
}
