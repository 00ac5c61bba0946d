// Package notify delivers user feedback through desktop notifications and
// spoken prompts. Delivery is fire-and-forget: failures are logged and never
// block or abort the caller.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Urgency mirrors the freedesktop notification urgency levels.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notifier posts a desktop notification.
type Notifier interface {
	Notify(title, body string, urgency Urgency) error
}

// Speaker voices a short message.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Feedback fans user messages out to the notifier and the speaker.
type Feedback struct {
	notifier Notifier
	speaker  Speaker
	speech   bool
	logger   zerolog.Logger
}

// NewFeedback creates a Feedback facade. Either collaborator may be nil, in
// which case that channel is silently skipped.
func NewFeedback(notifier Notifier, speaker Speaker, speech bool, logger zerolog.Logger) *Feedback {
	return &Feedback{
		notifier: notifier,
		speaker:  speaker,
		speech:   speech,
		logger:   logger.With().Str("component", "feedback").Logger(),
	}
}

// Post sends a desktop notification without blocking the caller.
func (f *Feedback) Post(title, body string, urgency Urgency) {
	if f == nil || f.notifier == nil {
		return
	}
	go func() {
		if err := f.notifier.Notify(title, body, urgency); err != nil {
			f.logger.Warn().Err(err).Str("title", title).Msg("Notification failed")
		}
	}()
}

// Say speaks text asynchronously.
func (f *Feedback) Say(text string) {
	if f == nil || f.speaker == nil || !f.speech {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := f.speaker.Say(ctx, text); err != nil {
			f.logger.Warn().Err(err).Msg("Speech failed")
		}
	}()
}

// SayWait speaks text and returns once playback finishes, for moments where
// speaking over the microphone would pollute the next capture (the wake
// acknowledgment). Failures are logged, not returned.
func (f *Feedback) SayWait(ctx context.Context, text string) {
	if f == nil || f.speaker == nil || !f.speech {
		return
	}
	if err := f.speaker.Say(ctx, text); err != nil {
		f.logger.Warn().Err(err).Msg("Speech failed")
	}
}
