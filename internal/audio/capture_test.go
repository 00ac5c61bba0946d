package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptSource replays a fixed sequence of frames, then silence forever.
// It delivers frames as fast as CaptureUtterance asks for them; capture
// timing is counted in frames, so no test ever sleeps.
type scriptSource struct {
	frames []Frame
	pos    int
	err    error
}

func (s *scriptSource) Start(ctx context.Context) error { return nil }

func (s *scriptSource) Read(ctx context.Context) (Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pos < len(s.frames) {
		f := s.frames[s.pos]
		s.pos++
		return f, nil
	}
	return makeFrame(0), nil
}

func (s *scriptSource) Close() error { return nil }

func makeFrame(amplitude int16) Frame {
	f := make(Frame, FrameSamples)
	for i := range f {
		f[i] = amplitude
	}
	return f
}

func repeatFrames(amplitude int16, n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = makeFrame(amplitude)
	}
	return frames
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(Frame{}))
	assert.Equal(t, 0.0, RMS(makeFrame(0)))
	assert.InDelta(t, 1000.0, RMS(makeFrame(1000)), 0.001)
	assert.InDelta(t, 1000.0, RMS(makeFrame(-1000)), 0.001)
}

func TestMeterSmoothing(t *testing.T) {
	m := NewMeter(4)

	assert.InDelta(t, 1000.0, m.Feed(makeFrame(1000)), 0.001)
	assert.InDelta(t, 500.0, m.Feed(makeFrame(0)), 0.001)

	m.Reset()
	assert.InDelta(t, 200.0, m.Feed(makeFrame(200)), 0.001)
}

func TestCaptureNoSpeech(t *testing.T) {
	src := &scriptSource{}

	_, err := CaptureUtterance(context.Background(), src, CaptureParams{
		StartTimeout:    200 * time.Millisecond,
		PhraseLimit:     time.Second,
		EnergyThreshold: 200,
		PauseThreshold:  100 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestCaptureEndsOnPause(t *testing.T) {
	var frames []Frame
	frames = append(frames, repeatFrames(0, 3)...)
	frames = append(frames, repeatFrames(2000, 15)...)
	src := &scriptSource{frames: frames}

	samples, err := CaptureUtterance(context.Background(), src, CaptureParams{
		StartTimeout:    time.Second,
		PhraseLimit:     5 * time.Second,
		EnergyThreshold: 200,
		PauseThreshold:  200 * time.Millisecond,
	})
	require.NoError(t, err)
	// At least the spoken frames; pre-roll and trailing silence add more.
	assert.GreaterOrEqual(t, len(samples), 15*FrameSamples)
}

func TestCaptureRespectsPhraseLimit(t *testing.T) {
	src := &scriptSource{frames: repeatFrames(2000, 1000)}

	samples, err := CaptureUtterance(context.Background(), src, CaptureParams{
		StartTimeout:    time.Second,
		PhraseLimit:     200 * time.Millisecond,
		EnergyThreshold: 200,
		PauseThreshold:  time.Second,
	})
	require.NoError(t, err)

	// 200 ms of 20 ms frames is 10 frames of speech, plus the onset frame.
	assert.LessOrEqual(t, len(samples), 12*FrameSamples)
}

func TestCaptureKeepsPreRoll(t *testing.T) {
	var frames []Frame
	frames = append(frames, repeatFrames(100, 5)...) // quiet lead-in
	frames = append(frames, repeatFrames(2000, 10)...)
	src := &scriptSource{frames: frames}

	samples, err := CaptureUtterance(context.Background(), src, CaptureParams{
		StartTimeout:    time.Second,
		PhraseLimit:     time.Second,
		EnergyThreshold: 300,
		PauseThreshold:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	// The quiet lead-in frames ride along so the first syllable survives.
	assert.Greater(t, len(samples), 10*FrameSamples)
}

func TestCapturePropagatesSourceError(t *testing.T) {
	src := &scriptSource{err: ErrClosed}

	_, err := CaptureUtterance(context.Background(), src, CaptureParams{
		StartTimeout:    time.Second,
		PhraseLimit:     time.Second,
		EnergyThreshold: 200,
		PauseThreshold:  100 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCaptureHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptSource{}
	_, err := CaptureUtterance(ctx, src, CaptureParams{
		StartTimeout:    time.Second,
		PhraseLimit:     time.Second,
		EnergyThreshold: 200,
		PauseThreshold:  100 * time.Millisecond,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeWAV(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767}
	data := EncodeWAV(samples, SampleRate)

	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, 44+len(samples)*2, len(data))
}
