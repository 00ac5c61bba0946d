package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/normanking/tunepilot/internal/command"
	"github.com/normanking/tunepilot/internal/listen"
	"github.com/normanking/tunepilot/internal/notify"
	"github.com/normanking/tunepilot/internal/spotify"
	"github.com/rs/zerolog"
)

// WakeListener runs one wake-word pass.
type WakeListener interface {
	Listen(ctx context.Context, wakeWord string, profile *calibration.Profile) (listen.WakeResult, error)
}

// CommandCaptor records and recognizes one command phrase.
type CommandCaptor interface {
	Capture(ctx context.Context, profile *calibration.Profile) (string, listen.Outcome, error)
}

// Dispatcher executes recognized text against the music service.
type Dispatcher interface {
	Handle(ctx context.Context, text string) (*command.Result, error)
}

// Calibrator measures ambient noise and produces a profile.
type Calibrator interface {
	Calibrate(ctx context.Context, source audio.Source) (*calibration.Profile, error)
}

// Store persists calibration profiles.
type Store interface {
	Load() (*calibration.Profile, error)
	Save(p *calibration.Profile) error
	IsStale(p *calibration.Profile, now time.Time) bool
}

// Feedback delivers user-facing messages outside the terminal.
type Feedback interface {
	Post(title, body string, urgency notify.Urgency)
	Say(text string)
	SayWait(ctx context.Context, text string)
}

// Options configures a Controller.
type Options struct {
	WakeWord          string
	FallbackThreshold int
	AdjustPolicy      calibration.AdjustPolicy

	// Input and Output default to stdin/stdout.
	Input  io.Reader
	Output io.Writer

	// Interrupts delivers SIGINT-style interrupts. Optional.
	Interrupts <-chan os.Signal

	// ProfileUpdates delivers profiles reloaded from disk (file watcher).
	// Optional.
	ProfileUpdates <-chan *calibration.Profile

	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the session loop.
type Controller struct {
	wake       WakeListener
	captor     CommandCaptor
	dispatcher Dispatcher
	calibrator Calibrator
	store      Store
	feedback   Feedback
	source     audio.Source
	policy     calibration.AdjustPolicy
	interrupts <-chan os.Signal
	updates    <-chan *calibration.Profile
	output     io.Writer
	scanner    *bufio.Scanner
	now        func() time.Time
	logger     zerolog.Logger

	state   SessionState
	profile *calibration.Profile
}

// New wires a Controller. source is the microphone used for recalibration.
func New(wake WakeListener, captor CommandCaptor, dispatcher Dispatcher, calibrator Calibrator, store Store, feedback Feedback, source audio.Source, opts Options, logger zerolog.Logger) *Controller {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FallbackThreshold < 1 {
		opts.FallbackThreshold = 3
	}
	return &Controller{
		wake:       wake,
		captor:     captor,
		dispatcher: dispatcher,
		calibrator: calibrator,
		store:      store,
		feedback:   feedback,
		source:     source,
		policy:     opts.AdjustPolicy,
		interrupts: opts.Interrupts,
		updates:    opts.ProfileUpdates,
		output:     opts.Output,
		scanner:    bufio.NewScanner(opts.Input),
		now:        opts.Now,
		logger:     logger.With().Str("component", "controller").Logger(),
		state: SessionState{
			Mode:              ModeVoiceListening,
			WakeWord:          opts.WakeWord,
			FallbackThreshold: opts.FallbackThreshold,
		},
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() SessionState {
	return c.state
}

// Run drives the session until termination or ctx cancellation.
func (c *Controller) Run(ctx context.Context) error {
	c.startup(ctx)

	for c.state.Mode != ModeTerminated {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.drainUpdates()
		if c.interrupted() {
			if c.state.Mode == ModeText {
				c.state.Mode = ModeTerminated
				break
			}
			c.toText("interrupted")
			continue
		}

		switch c.state.Mode {
		case ModeVoiceListening:
			c.stepListening(ctx)
		case ModeVoiceCapturing:
			c.stepCapturing(ctx)
		case ModeText:
			c.stepText(ctx)
		}
	}

	c.logger.Info().Msg("Session ended")
	return nil
}

// startup loads or rebuilds the calibration profile and picks the starting
// mode. A failed calibration is not fatal: the session starts in text mode.
func (c *Controller) startup(ctx context.Context) {
	profile, err := c.store.Load()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Calibration load failed")
	}

	if profile != nil && !c.store.IsStale(profile, c.now()) {
		c.profile = profile
		if profile.WakeWord != "" {
			c.state.WakeWord = profile.WakeWord
		}
		c.logger.Info().
			Float64("energy_threshold", profile.EnergyThreshold).
			Str("wake_word", c.state.WakeWord).
			Msg("Using saved calibration")
	} else {
		if profile != nil {
			c.logger.Info().Time("captured_at", profile.CapturedAt).Msg("Saved calibration is stale, recalibrating")
		}
		if !c.calibrate(ctx) {
			c.toText("calibration failed")
			return
		}
	}

	c.say(fmt.Sprintf("Listening for the wake word %q. Press Ctrl-C for text input.", c.state.WakeWord))
}

// calibrate measures ambient noise and saves the result. Returns false if
// calibration failed.
func (c *Controller) calibrate(ctx context.Context) bool {
	c.say("Calibrating microphone, please stay quiet for a moment...")
	profile, err := c.calibrator.Calibrate(ctx, c.source)
	if err != nil {
		c.logger.Error().Err(err).Msg("Calibration failed")
		c.say("Calibration failed: " + err.Error())
		return false
	}
	profile.WakeWord = c.state.WakeWord
	c.profile = profile
	if err := c.store.Save(profile); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to save calibration")
	}
	c.say(fmt.Sprintf("Calibrated. Energy threshold %.0f.", profile.EnergyThreshold))
	c.feedback.Post("tunepilot", fmt.Sprintf("Calibrated (energy threshold %.0f)", profile.EnergyThreshold), notify.UrgencyLow)
	return true
}

func (c *Controller) stepListening(ctx context.Context) {
	result, err := c.wake.Listen(ctx, c.state.WakeWord, c.profile)
	switch result {
	case listen.WakeMatched:
		c.state.Mode = ModeVoiceCapturing
		c.feedback.Post("tunepilot", "Listening...", notify.UrgencyLow)
		// Spoken synchronously so the acknowledgment is not captured as
		// part of the command.
		c.feedback.SayWait(ctx, "yes sir")
	case listen.WakeTimedOut:
		// Quiet room or unrelated speech. Keep listening.
	case listen.WakeFailed:
		c.logger.Warn().Err(err).Msg("Wake pass failed")
		c.recordFailure()
	}
}

func (c *Controller) stepCapturing(ctx context.Context) {
	text, outcome, err := c.captor.Capture(ctx, c.profile)
	switch outcome {
	case listen.Captured:
		c.recordSuccess()
		c.state.Mode = ModeVoiceListening
		c.handleText(ctx, text)
	case listen.NoSpeech:
		c.state.Mode = ModeVoiceListening
	case listen.Failed:
		c.logger.Warn().Err(err).Msg("Command capture failed")
		c.say("Sorry, I didn't catch that.")
		c.recordFailure()
	}
}

func (c *Controller) stepText(ctx context.Context) {
	fmt.Fprint(c.output, "> ")
	if !c.scanner.Scan() {
		// EOF on stdin ends the session cleanly.
		c.state.Mode = ModeTerminated
		return
	}
	line := strings.TrimSpace(c.scanner.Text())
	if line == "" {
		return
	}
	c.handleText(ctx, line)
}

// handleText routes one line of input: control tokens first, then the
// command dispatcher. Any text that reaches the dispatcher resets the
// failure counter, whatever the dispatch outcome.
func (c *Controller) handleText(ctx context.Context, text string) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) > 0 {
		switch fields[0] {
		case "voice":
			if c.state.Mode == ModeText {
				c.toVoice(ctx)
			} else {
				c.say("Already in voice mode.")
			}
			return
		case "wake":
			c.rebindWakeWord(ctx, fields[1:])
			return
		case "recalibrate":
			c.calibrate(ctx)
			return
		case "help":
			if c.state.Mode == ModeText {
				c.printHelp()
				return
			}
		}
	}

	c.state.ConsecutiveFailures = 0
	c.dispatch(ctx, text)
}

func (c *Controller) dispatch(ctx context.Context, text string) {
	res, err := c.dispatcher.Handle(ctx, text)
	if err != nil {
		if errors.Is(err, spotify.ErrUnauthenticated) {
			// The client already tried a silent token refresh. Nothing left
			// to do without user action.
			msg := command.UserMessage(err)
			c.say(msg)
			c.feedback.Post("tunepilot", msg, notify.UrgencyCritical)
			c.state.Mode = ModeTerminated
			return
		}
		msg := command.UserMessage(err)
		c.say(msg)
		c.feedback.Post("tunepilot", msg, notify.UrgencyNormal)
		return
	}

	if res.Intent.Action == command.ActionQuit {
		c.say(res.Message)
		c.state.Mode = ModeTerminated
		return
	}
	if res.Message != "" {
		c.say(res.Message)
		if res.Track != nil {
			c.feedback.Post("tunepilot", res.Message, notify.UrgencyLow)
		}
	}
}

// rebindWakeWord changes the wake word. In text mode the new word follows on
// the same line or the next one; in voice mode a bare "wake" captures one
// spoken utterance as the new word.
func (c *Controller) rebindWakeWord(ctx context.Context, args []string) {
	var word string
	switch {
	case len(args) > 0:
		word = strings.Join(args, " ")
	case c.state.Mode != ModeText:
		c.say("Say the new wake word now.")
		text, outcome, _ := c.captor.Capture(ctx, c.profile)
		if outcome != listen.Captured {
			c.say("Didn't catch a new wake word. Keeping " + c.state.WakeWord + ".")
			return
		}
		word = text
	default:
		fmt.Fprint(c.output, "New wake word: ")
		if !c.scanner.Scan() {
			return
		}
		word = c.scanner.Text()
	}

	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		c.say("Wake word unchanged.")
		return
	}

	c.state.WakeWord = word
	if c.profile != nil {
		c.profile.WakeWord = word
		if err := c.store.Save(c.profile); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist wake word")
		}
	}
	c.logger.Info().Str("wake_word", word).Msg("Wake word changed")
	c.say("Wake word is now " + word + ".")
}

// toVoice re-enters voice mode, recalibrating first if the profile went
// stale while in text mode.
func (c *Controller) toVoice(ctx context.Context) {
	if c.profile == nil || c.store.IsStale(c.profile, c.now()) {
		if !c.calibrate(ctx) {
			c.say("Staying in text mode.")
			return
		}
	}
	c.state.ConsecutiveFailures = 0
	c.state.Mode = ModeVoiceListening
	c.say(fmt.Sprintf("Voice mode on. Listening for %q.", c.state.WakeWord))
}

// toText switches to text input and resets the failure counter.
func (c *Controller) toText(reason string) {
	c.logger.Info().Str("reason", reason).Int("failures", c.state.ConsecutiveFailures).Msg("Falling back to text input")
	c.state.ConsecutiveFailures = 0
	c.state.Mode = ModeText
	c.say("Voice input is struggling. Type your commands instead (\"voice\" to switch back, \"help\" for commands).")
	c.feedback.Post("tunepilot", "Switched to text input", notify.UrgencyNormal)
}

// recordFailure counts a recognition failure, loosens the calibration if the
// success rate warrants it, and falls back to text at the threshold.
func (c *Controller) recordFailure() {
	c.state.ConsecutiveFailures++

	if c.profile != nil {
		c.profile.RecordAttempt(false)
		c.logger.Debug().
			Int("attempts", c.profile.Attempts).
			Float64("success_rate", c.profile.SuccessRate).
			Msg("Recognition attempt failed")
		if c.policy.Apply(c.profile) {
			c.logger.Info().
				Float64("energy_threshold", c.profile.EnergyThreshold).
				Float64("pause_threshold", c.profile.Pause().Seconds()).
				Float64("success_rate", c.profile.SuccessRate).
				Msg("Loosened sensitivity after low success rate")
		}
		if err := c.store.Save(c.profile); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to save calibration")
		}
	}

	if c.state.ConsecutiveFailures >= c.state.FallbackThreshold {
		c.toText("recognition failures")
		return
	}
	if c.state.Mode == ModeVoiceCapturing {
		c.state.Mode = ModeVoiceListening
	}
}

// recordSuccess resets the failure streak and credits the profile.
func (c *Controller) recordSuccess() {
	c.state.ConsecutiveFailures = 0
	if c.profile == nil {
		return
	}
	c.profile.RecordAttempt(true)
	c.logger.Debug().
		Int("attempts", c.profile.Attempts).
		Float64("success_rate", c.profile.SuccessRate).
		Msg("Recognition attempt succeeded")
	if err := c.store.Save(c.profile); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to save calibration")
	}
}

func (c *Controller) interrupted() bool {
	if c.interrupts == nil {
		return false
	}
	select {
	case <-c.interrupts:
		return true
	default:
		return false
	}
}

// drainUpdates adopts profiles reloaded from disk by the file watcher.
func (c *Controller) drainUpdates() {
	if c.updates == nil {
		return
	}
	for {
		select {
		case p := <-c.updates:
			if p == nil {
				return
			}
			c.profile = p
			if p.WakeWord != "" {
				c.state.WakeWord = p.WakeWord
			}
			c.logger.Info().Float64("energy_threshold", p.EnergyThreshold).Msg("Calibration reloaded from disk")
		default:
			return
		}
	}
}

func (c *Controller) say(msg string) {
	fmt.Fprintln(c.output, msg)
	if c.state.Mode != ModeText {
		c.feedback.Say(msg)
	}
}

func (c *Controller) printHelp() {
	fmt.Fprintln(c.output, `Commands:
  play <title> [by <artist>]   play a track
  pause / stop                 pause playback
  play / resume                resume playback
  next / previous              change track
  volume up / volume down      adjust volume
  what's playing               show the current track
  voice                        switch back to voice input
  wake <word>                  change the wake word
  recalibrate                  redo microphone calibration
  quit                         exit`)
}
