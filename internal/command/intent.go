// Package command turns recognized text into playback intents and dispatches
// them to the music service.
package command

import (
	"strings"
)

// Action identifies what the user asked for.
type Action int

const (
	ActionUnknown Action = iota
	ActionPlay
	ActionPause
	ActionResume
	ActionNext
	ActionPrevious
	ActionVolumeUp
	ActionVolumeDown
	ActionNowPlaying
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionVolumeUp:
		return "volume_up"
	case ActionVolumeDown:
		return "volume_down"
	case ActionNowPlaying:
		return "now_playing"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Intent is one parsed command. Title and Artist are only set for ActionPlay,
// and Artist may be empty.
type Intent struct {
	Action Action
	Title  string
	Artist string
}

// Parse maps free-form text to an Intent. It never fails: text that matches
// nothing comes back as ActionUnknown so the caller can tell the user.
func Parse(text string) Intent {
	norm := normalize(text)
	if norm == "" {
		return Intent{Action: ActionUnknown}
	}

	if strings.HasPrefix(norm, "play ") {
		title, artist := parsePlayRequest(strings.TrimPrefix(norm, "play "))
		if title != "" {
			return Intent{Action: ActionPlay, Title: title, Artist: artist}
		}
		return Intent{Action: ActionResume}
	}

	words := strings.Fields(norm)
	switch {
	case containsAny(words, "play", "start", "resume", "unpause"):
		return Intent{Action: ActionResume}
	case containsAny(words, "pause", "stop", "halt"):
		return Intent{Action: ActionPause}
	case containsAny(words, "next", "skip", "forward"):
		return Intent{Action: ActionNext}
	case containsAny(words, "previous", "back", "last"):
		return Intent{Action: ActionPrevious}
	case containsAny(words, "louder"), containsAny(words, "up") && containsAny(words, "volume", "turn"):
		return Intent{Action: ActionVolumeUp}
	case containsAny(words, "quieter", "softer"), containsAny(words, "down") && containsAny(words, "volume", "turn"):
		return Intent{Action: ActionVolumeDown}
	case containsAny(words, "what", "whats", "playing", "current", "now"):
		return Intent{Action: ActionNowPlaying}
	case containsAny(words, "quit", "exit", "bye", "goodbye"):
		return Intent{Action: ActionQuit}
	}
	return Intent{Action: ActionUnknown}
}

// parsePlayRequest splits the remainder of a "play ..." command into title
// and optional artist. The first " by " is the separator; later ones belong
// to the artist name.
func parsePlayRequest(rest string) (title, artist string) {
	rest = strings.TrimSpace(rest)
	for _, filler := range []string{"the song ", "song called ", "the track ", "track ", "song "} {
		if strings.HasPrefix(rest, filler) {
			rest = strings.TrimPrefix(rest, filler)
			break
		}
	}

	if idx := strings.Index(rest, " by "); idx > 0 {
		return strings.TrimSpace(rest[:idx]), strings.TrimSpace(rest[idx+4:])
	}
	return strings.TrimSpace(rest), ""
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(words []string, wanted ...string) bool {
	for _, w := range words {
		// "what's" matches "whats"
		w = strings.ReplaceAll(w, "'", "")
		for _, want := range wanted {
			if w == want {
				return true
			}
		}
	}
	return false
}
