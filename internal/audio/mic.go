package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// MicSource captures mono 16 kHz PCM frames from the default input device.
type MicSource struct {
	stream  *portaudio.Stream
	buf     []int16
	logger  zerolog.Logger
	started bool
	closed  bool
}

// NewMicSource opens the default microphone. Returns ErrNoDevice if no input
// device can be opened.
func NewMicSource(logger zerolog.Logger) (*MicSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	buf := make([]int16, FrameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	return &MicSource{
		stream: stream,
		buf:    buf,
		logger: logger.With().Str("component", "mic").Logger(),
	}, nil
}

// Start begins the capture stream.
func (m *MicSource) Start(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return nil
	}
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("failed to start capture stream: %w", err)
	}
	m.started = true
	m.logger.Debug().Int("sampleRate", SampleRate).Msg("Microphone capture started")
	return nil
}

// Read blocks for the next 20 ms frame. The blocking read is bounded by the
// frame size, so ctx is only checked between frames.
func (m *MicSource) Read(ctx context.Context) (Frame, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("capture read failed: %w", err)
	}

	frame := make(Frame, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// Close stops the stream and releases the device.
func (m *MicSource) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	if m.started {
		if err := m.stream.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to stop capture stream")
		}
	}
	err := m.stream.Close()
	portaudio.Terminate()
	m.logger.Debug().Msg("Microphone closed")
	return err
}
