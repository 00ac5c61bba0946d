package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/tunepilot/internal/spotify"
	"github.com/rs/zerolog"
)

// MusicClient is the playback surface the dispatcher drives. *spotify.Client
// satisfies it.
type MusicClient interface {
	PlayTrack(ctx context.Context, title, artist string) (*spotify.TrackInfo, error)
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	NowPlaying(ctx context.Context) (*spotify.TrackInfo, bool, error)
	AdjustVolume(ctx context.Context, delta int) (int, error)
}

// RetryConfig bounds retries of transient service errors.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the standard retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Result describes the outcome of a dispatched command, phrased for the user.
type Result struct {
	Intent  Intent
	Message string
	Track   *spotify.TrackInfo
}

// Dispatcher executes parsed intents against the music client.
type Dispatcher struct {
	client     MusicClient
	retry      RetryConfig
	volumeStep int
	logger     zerolog.Logger
}

// NewDispatcher creates a Dispatcher. volumeStep is the percentage change
// applied by volume commands.
func NewDispatcher(client MusicClient, retry RetryConfig, volumeStep int, logger zerolog.Logger) *Dispatcher {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if volumeStep <= 0 {
		volumeStep = 15
	}
	return &Dispatcher{
		client:     client,
		retry:      retry,
		volumeStep: volumeStep,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle parses text and dispatches the resulting intent.
func (d *Dispatcher) Handle(ctx context.Context, text string) (*Result, error) {
	return d.Dispatch(ctx, Parse(text))
}

// Dispatch executes one intent. Unknown intents produce a Result with a
// help message and no error. Service errors come back wrapped so callers can
// classify them with errors.Is.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) (*Result, error) {
	d.logger.Debug().Str("action", intent.Action.String()).Str("title", intent.Title).Str("artist", intent.Artist).Msg("Dispatching")

	res := &Result{Intent: intent}
	var err error

	switch intent.Action {
	case ActionUnknown:
		res.Message = "I didn't catch a music command there. Try \"play Hotel California by Eagles\"."
		return res, nil

	case ActionQuit:
		res.Message = "Goodbye."
		return res, nil

	case ActionPlay:
		err = d.withRetry(ctx, "play", func() error {
			track, playErr := d.client.PlayTrack(ctx, intent.Title, intent.Artist)
			if playErr != nil {
				return playErr
			}
			res.Track = track
			res.Message = "Playing " + track.String()
			return nil
		})

	case ActionResume:
		err = d.withRetry(ctx, "resume", func() error {
			if resumeErr := d.client.Resume(ctx); resumeErr != nil {
				return resumeErr
			}
			res.Message = "Resumed playback"
			return nil
		})

	case ActionPause:
		err = d.withRetry(ctx, "pause", func() error {
			if pauseErr := d.client.Pause(ctx); pauseErr != nil {
				return pauseErr
			}
			res.Message = "Paused"
			return nil
		})

	case ActionNext:
		err = d.withRetry(ctx, "next", func() error {
			if nextErr := d.client.Next(ctx); nextErr != nil {
				return nextErr
			}
			res.Message = "Skipped to the next track"
			return nil
		})

	case ActionPrevious:
		err = d.withRetry(ctx, "previous", func() error {
			if prevErr := d.client.Previous(ctx); prevErr != nil {
				return prevErr
			}
			res.Message = "Went back a track"
			return nil
		})

	case ActionVolumeUp:
		err = d.adjustVolume(ctx, res, d.volumeStep)

	case ActionVolumeDown:
		err = d.adjustVolume(ctx, res, -d.volumeStep)

	case ActionNowPlaying:
		err = d.withRetry(ctx, "now_playing", func() error {
			track, playing, nowErr := d.client.NowPlaying(ctx)
			if nowErr != nil {
				return nowErr
			}
			res.Track = track
			switch {
			case track == nil:
				res.Message = "Nothing is playing right now"
			case playing:
				res.Message = "Now playing " + track.String()
			default:
				res.Message = track.String() + " is paused"
			}
			return nil
		})
	}

	if err != nil {
		return res, err
	}
	return res, nil
}

func (d *Dispatcher) adjustVolume(ctx context.Context, res *Result, delta int) error {
	return d.withRetry(ctx, "volume", func() error {
		vol, err := d.client.AdjustVolume(ctx, delta)
		if err != nil {
			return err
		}
		res.Message = fmt.Sprintf("Volume at %d%%", vol)
		return nil
	})
}

// withRetry retries fn on transient errors only. Permanent failures
// (no device, not authenticated, not found) surface immediately.
func (d *Dispatcher) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := d.retry.InitialDelay
	var err error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == d.retry.MaxAttempts {
			return err
		}
		d.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("Transient failure, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * d.retry.BackoffFactor)
	}
	return err
}

func retryable(err error) bool {
	return errors.Is(err, spotify.ErrRateLimited) || errors.Is(err, spotify.ErrNetwork)
}

// UserMessage phrases a dispatch error for the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, spotify.ErrNoActiveDevice):
		return "No Spotify player is active. Open Spotify on a device and try again."
	case errors.Is(err, spotify.ErrUnauthenticated):
		return "Spotify needs to be authorized again. Run: tunepilot auth"
	case errors.Is(err, spotify.ErrNotFound):
		return "I couldn't find that track on Spotify."
	case errors.Is(err, spotify.ErrRateLimited):
		return "Spotify is throttling requests. Give it a moment."
	case errors.Is(err, spotify.ErrNetwork):
		return "Couldn't reach Spotify. Check your connection."
	case err != nil:
		return "That didn't work: " + err.Error()
	default:
		return ""
	}
}
