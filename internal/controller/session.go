// Package controller runs the assistant's session loop: wake-word gating,
// command capture, text fallback, and the transitions between them.
package controller

// Mode is the session's input mode.
type Mode int

const (
	// ModeVoiceListening waits for the wake word.
	ModeVoiceListening Mode = iota
	// ModeVoiceCapturing records the command phrase after a wake match.
	ModeVoiceCapturing
	// ModeText reads commands from standard input.
	ModeText
	// ModeTerminated ends the session loop.
	ModeTerminated
)

func (m Mode) String() string {
	switch m {
	case ModeVoiceListening:
		return "voice_listening"
	case ModeVoiceCapturing:
		return "voice_capturing"
	case ModeText:
		return "text"
	case ModeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionState is the controller's mutable session data.
type SessionState struct {
	Mode                Mode
	WakeWord            string
	ConsecutiveFailures int
	FallbackThreshold   int
}
