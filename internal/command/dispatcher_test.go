package command

import (
	"context"
	"testing"
	"time"

	"github.com/normanking/tunepilot/internal/spotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient counts calls and returns scripted errors. errs is consumed one
// per call; once exhausted, calls succeed.
type fakeClient struct {
	calls  int
	errs   []error
	volume int
}

func (f *fakeClient) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeClient) PlayTrack(ctx context.Context, title, artist string) (*spotify.TrackInfo, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &spotify.TrackInfo{Title: title, Artist: artist, URI: "spotify:track:x"}, nil
}

func (f *fakeClient) Resume(ctx context.Context) error   { return f.next() }
func (f *fakeClient) Pause(ctx context.Context) error    { return f.next() }
func (f *fakeClient) Next(ctx context.Context) error     { return f.next() }
func (f *fakeClient) Previous(ctx context.Context) error { return f.next() }

func (f *fakeClient) NowPlaying(ctx context.Context) (*spotify.TrackInfo, bool, error) {
	if err := f.next(); err != nil {
		return nil, false, err
	}
	return &spotify.TrackInfo{Title: "Song", Artist: "Artist"}, true, nil
}

func (f *fakeClient) AdjustVolume(ctx context.Context, delta int) (int, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	f.volume += delta
	return f.volume, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}
}

func newTestDispatcher(client MusicClient) *Dispatcher {
	return NewDispatcher(client, fastRetry(), 15, zerolog.Nop())
}

func TestDispatchPlay(t *testing.T) {
	client := &fakeClient{}
	res, err := newTestDispatcher(client).Handle(context.Background(), "play Hotel California by Eagles")

	require.NoError(t, err)
	require.NotNil(t, res.Track)
	assert.Equal(t, "hotel california", res.Track.Title)
	assert.Contains(t, res.Message, "Playing")
}

func TestDispatchUnknownIsNotAnError(t *testing.T) {
	client := &fakeClient{}
	res, err := newTestDispatcher(client).Handle(context.Background(), "make me a sandwich")

	require.NoError(t, err)
	assert.Equal(t, ActionUnknown, res.Intent.Action)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 0, client.calls)
}

func TestDispatchNoActiveDeviceNeverRetried(t *testing.T) {
	client := &fakeClient{errs: []error{
		spotify.ErrNoActiveDevice, spotify.ErrNoActiveDevice, spotify.ErrNoActiveDevice,
	}}

	_, err := newTestDispatcher(client).Dispatch(context.Background(), Intent{Action: ActionPause})
	assert.ErrorIs(t, err, spotify.ErrNoActiveDevice)
	assert.Equal(t, 1, client.calls)
}

func TestDispatchUnauthenticatedNeverRetried(t *testing.T) {
	client := &fakeClient{errs: []error{
		spotify.ErrUnauthenticated, spotify.ErrUnauthenticated,
	}}

	_, err := newTestDispatcher(client).Dispatch(context.Background(), Intent{Action: ActionResume})
	assert.ErrorIs(t, err, spotify.ErrUnauthenticated)
	assert.Equal(t, 1, client.calls)
}

func TestDispatchRateLimitedBoundedRetry(t *testing.T) {
	client := &fakeClient{errs: []error{
		spotify.ErrRateLimited, spotify.ErrRateLimited, spotify.ErrRateLimited, spotify.ErrRateLimited,
	}}

	_, err := newTestDispatcher(client).Dispatch(context.Background(), Intent{Action: ActionNext})
	assert.ErrorIs(t, err, spotify.ErrRateLimited)
	assert.Equal(t, 3, client.calls)
}

func TestDispatchTransientRecovery(t *testing.T) {
	client := &fakeClient{errs: []error{spotify.ErrNetwork}}

	res, err := newTestDispatcher(client).Dispatch(context.Background(), Intent{Action: ActionPause})
	require.NoError(t, err)
	assert.Equal(t, "Paused", res.Message)
	assert.Equal(t, 2, client.calls)
}

func TestDispatchVolume(t *testing.T) {
	client := &fakeClient{volume: 50}
	d := newTestDispatcher(client)

	res, err := d.Dispatch(context.Background(), Intent{Action: ActionVolumeUp})
	require.NoError(t, err)
	assert.Equal(t, "Volume at 65%", res.Message)

	res, err = d.Dispatch(context.Background(), Intent{Action: ActionVolumeDown})
	require.NoError(t, err)
	assert.Equal(t, "Volume at 50%", res.Message)
}

func TestDispatchNowPlaying(t *testing.T) {
	client := &fakeClient{}

	res, err := newTestDispatcher(client).Dispatch(context.Background(), Intent{Action: ActionNowPlaying})
	require.NoError(t, err)
	assert.Equal(t, "Now playing Song by Artist", res.Message)
}

func TestDispatchQuit(t *testing.T) {
	client := &fakeClient{}

	res, err := newTestDispatcher(client).Handle(context.Background(), "quit")
	require.NoError(t, err)
	assert.Equal(t, ActionQuit, res.Intent.Action)
	assert.Equal(t, 0, client.calls)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(spotify.ErrNoActiveDevice), "No Spotify player")
	assert.Contains(t, UserMessage(spotify.ErrUnauthenticated), "tunepilot auth")
	assert.Contains(t, UserMessage(spotify.ErrNotFound), "find that track")
	assert.Contains(t, UserMessage(spotify.ErrRateLimited), "throttling")
	assert.Contains(t, UserMessage(spotify.ErrNetwork), "connection")
	assert.Empty(t, UserMessage(nil))
}
