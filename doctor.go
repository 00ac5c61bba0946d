package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/normanking/tunepilot/internal/config"
	"github.com/normanking/tunepilot/internal/logging"
	"github.com/normanking/tunepilot/internal/notify"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that everything tunepilot needs is in place",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context())
	},
}

type checkResult int

const (
	checkPass checkResult = iota
	checkWarn
	checkFail
)

func report(result checkResult, name, detail string) {
	label := map[checkResult]string{
		checkPass: "ok  ",
		checkWarn: "warn",
		checkFail: "FAIL",
	}[result]
	if detail != "" {
		fmt.Printf("[%s] %-22s %s\n", label, name, detail)
	} else {
		fmt.Printf("[%s] %s\n", label, name)
	}
}

func runDoctor(ctx context.Context) error {
	failed := false
	fail := func(name, detail string) {
		failed = true
		report(checkFail, name, detail)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("config", err.Error())
		return fmt.Errorf("doctor found problems")
	}
	report(checkPass, "config", "")

	logger, err := logging.New(&logging.Config{LogDir: os.TempDir(), Level: "error", Console: false})
	if err != nil {
		fail("logging", err.Error())
		return fmt.Errorf("doctor found problems")
	}
	defer logger.Close()

	// Spotify credentials and cached token
	auth := buildAuthenticator(cfg, logger)
	if !auth.HasCredentials() {
		fail("spotify credentials", "set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	} else {
		report(checkPass, "spotify credentials", "")
		if auth.HasToken() {
			report(checkPass, "spotify authorization", "")
		} else {
			report(checkWarn, "spotify authorization", "no cached token, run: tunepilot auth")
		}
	}

	// STT provider key
	switch cfg.STT.Provider {
	case "deepgram":
		if cfg.STT.DeepgramAPIKey == "" && os.Getenv("DEEPGRAM_API_KEY") == "" {
			fail("stt key", "set DEEPGRAM_API_KEY")
		} else {
			report(checkPass, "stt key", "deepgram")
		}
	default:
		if cfg.STT.OpenAIAPIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			fail("stt key", "set OPENAI_API_KEY")
		} else {
			report(checkPass, "stt key", "whisper")
		}
	}

	// Microphone
	mic, err := audio.NewMicSource(logger.Zerolog())
	if err != nil {
		fail("microphone", err.Error())
	} else {
		mic.Close()
		report(checkPass, "microphone", "")
	}

	// Calibration freshness
	store := calibration.NewStore(afero.NewOsFs(), cfg.Calib.Dir, cfg.Calib.ValidityWindow, logger.Zerolog())
	profile, _ := store.Load()
	switch {
	case profile == nil:
		report(checkWarn, "calibration", "no profile yet, run: tunepilot calibrate")
	case store.IsStale(profile, time.Now()):
		report(checkWarn, "calibration", "profile is stale, will recalibrate on start")
	default:
		report(checkPass, "calibration", fmt.Sprintf("energy threshold %.0f", profile.EnergyThreshold))
	}

	// Spotify API reachability; any HTTP response means the network path works
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(reqCtx, "GET", "https://api.spotify.com/v1", nil)
	if resp, err := http.DefaultClient.Do(req); err != nil {
		report(checkWarn, "spotify api", "unreachable: "+err.Error())
	} else {
		resp.Body.Close()
		report(checkPass, "spotify api", "reachable")
	}

	// Desktop notification bus
	if cfg.Notify.Enabled {
		if conn, err := dbus.SessionBus(); err != nil {
			report(checkWarn, "notifications", "no session bus, desktop notifications disabled")
		} else {
			conn.Close()
			report(checkPass, "notifications", "")
		}
	}

	// Spoken feedback command
	if cfg.Notify.Speech {
		if s, err := notify.NewExecSpeaker(cfg.Notify.SpeechCommand, logger.Zerolog()); err != nil {
			report(checkWarn, "speech output", err.Error())
		} else {
			report(checkPass, "speech output", s.Command())
		}
	}

	if failed {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Println("All checks passed.")
	return nil
}
