package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// ExecSpeaker voices text through whichever system TTS command is installed
// (`say` on macOS, `espeak-ng`/`espeak`/`spd-say` elsewhere).
type ExecSpeaker struct {
	command string
	logger  zerolog.Logger
}

// NewExecSpeaker finds a usable TTS command. An explicit command overrides
// auto-detection. Returns an error if nothing usable is installed.
func NewExecSpeaker(command string, logger zerolog.Logger) (*ExecSpeaker, error) {
	log := logger.With().Str("component", "speaker").Logger()

	if command != "" {
		if _, err := exec.LookPath(command); err != nil {
			return nil, fmt.Errorf("speech command %q not found: %w", command, err)
		}
		return &ExecSpeaker{command: command, logger: log}, nil
	}

	candidates := []string{"espeak-ng", "espeak", "spd-say"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			log.Debug().Str("command", c).Msg("Using system TTS command")
			return &ExecSpeaker{command: c, logger: log}, nil
		}
	}
	return nil, fmt.Errorf("no system TTS command found (tried %v)", candidates)
}

// Command returns the resolved TTS command.
func (s *ExecSpeaker) Command() string {
	return s.command
}

// Say runs the TTS command and waits for playback to finish.
func (s *ExecSpeaker) Say(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	var cmd *exec.Cmd
	switch s.command {
	case "spd-say":
		// spd-say returns immediately unless asked to wait
		cmd = exec.CommandContext(ctx, s.command, "--wait", text)
	default:
		cmd = exec.CommandContext(ctx, s.command, text)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}
