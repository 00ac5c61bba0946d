// tunepilot is a voice-controlled Spotify assistant: it waits for a wake
// word, captures the spoken command, and drives playback, falling back to
// typed input when recognition keeps failing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/normanking/tunepilot/internal/command"
	"github.com/normanking/tunepilot/internal/config"
	"github.com/normanking/tunepilot/internal/controller"
	"github.com/normanking/tunepilot/internal/listen"
	"github.com/normanking/tunepilot/internal/logging"
	"github.com/normanking/tunepilot/internal/notify"
	"github.com/normanking/tunepilot/internal/spotify"
	"github.com/normanking/tunepilot/internal/stt"
)

var (
	flagLogLevel string
	flagText     bool
)

var rootCmd = &cobra.Command{
	Use:          "tunepilot",
	Short:        "Voice-controlled Spotify playback assistant",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssistant(cmd.Context())
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure ambient noise and save a fresh calibration profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalibrate(cmd.Context())
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Spotify access (one-time browser flow)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&flagText, "text", false, "start in text input mode")
	rootCmd.AddCommand(calibrateCmd, authCmd, doctorCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	logger, err := logging.New(&logging.Config{
		LogDir:  filepath.Join(cfg.Calib.Dir, "logs"),
		Level:   cfg.LogLevel,
		Console: cfg.LogLevel == "debug",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildRecognizer(cfg *config.Config, logger *logging.Logger) stt.Recognizer {
	switch cfg.STT.Provider {
	case "deepgram":
		return stt.NewDeepgramRecognizer(logger.Zerolog(), &stt.DeepgramConfig{
			APIKey:   cfg.STT.DeepgramAPIKey,
			Language: cfg.STT.Language,
			Timeout:  cfg.STT.Timeout,
		})
	default:
		return stt.NewWhisperRecognizer(logger.Zerolog(), &stt.WhisperConfig{
			APIKey:   cfg.STT.OpenAIAPIKey,
			Language: cfg.STT.Language,
			Timeout:  cfg.STT.Timeout,
		})
	}
}

func buildAuthenticator(cfg *config.Config, logger *logging.Logger) *spotify.Authenticator {
	return spotify.NewAuthenticator(
		cfg.Spotify.ClientID,
		cfg.Spotify.ClientSecret,
		cfg.Spotify.RedirectURI,
		spotify.DefaultTokenCache(cfg.Calib.Dir),
		logger.Zerolog(),
	)
}

func buildFeedback(cfg *config.Config, logger *logging.Logger) *notify.Feedback {
	log := logger.Zerolog()

	var notifier notify.Notifier
	if cfg.Notify.Enabled {
		n, err := notify.NewDBusNotifier("tunepilot")
		if err != nil {
			log.Warn().Err(err).Msg("Desktop notifications unavailable")
		} else {
			notifier = n
		}
	}

	var speaker notify.Speaker
	if cfg.Notify.Speech {
		s, err := notify.NewExecSpeaker(cfg.Notify.SpeechCommand, log)
		if err != nil {
			log.Warn().Err(err).Msg("Spoken feedback unavailable")
		} else {
			speaker = s
		}
	}

	return notify.NewFeedback(notifier, speaker, cfg.Notify.Speech, log)
}

func runAssistant(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("main")

	auth := buildAuthenticator(cfg, logger)
	if !auth.HasCredentials() {
		return fmt.Errorf("Spotify credentials missing: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	}
	client := spotify.NewClient(auth, logger.Zerolog())
	dispatcher := command.NewDispatcher(client, command.DefaultRetryConfig(), cfg.Spotify.VolumeStep, logger.Zerolog())

	// A working microphone is required to start, even though the session can
	// later fall back to text input.
	mic, err := audio.NewMicSource(logger.Zerolog())
	if err != nil {
		return fmt.Errorf("no usable audio input device: %w", err)
	}
	defer mic.Close()
	if err := mic.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	recognizer := buildRecognizer(cfg, logger)
	log.Info().Str("sttProvider", recognizer.Name()).Msg("Starting session")

	store := calibration.NewStore(afero.NewOsFs(), cfg.Calib.Dir, cfg.Calib.ValidityWindow, logger.Zerolog())
	calibrator := calibration.NewCalibrator(calibration.CalibratorConfig{
		SampleDuration: cfg.Calib.SampleDuration,
		SafetyMargin:   cfg.Calib.SafetyMargin,
		DefaultPause:   cfg.Calib.DefaultPause,
	}, logger.Zerolog())

	listenCfg := listen.Config{
		WakeTimeout:         cfg.Listen.WakeTimeout,
		WakePhraseLimit:     cfg.Listen.WakePhraseLimit,
		CommandStartTimeout: cfg.Listen.CommandStartTimeout,
		CommandPhraseLimit:  cfg.Listen.CommandPhraseLimit,
	}
	wake := listen.NewWakeListener(mic, recognizer, listenCfg, logger.Zerolog())
	captor := listen.NewCommandCapture(mic, recognizer, listenCfg, logger.Zerolog())

	feedback := buildFeedback(cfg, logger)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	// Profile edits on disk (e.g. a hand-tuned threshold) apply live.
	updates := make(chan *calibration.Profile, 1)
	if err := store.Watch(ctx, func(p *calibration.Profile) {
		select {
		case updates <- p:
		default:
		}
	}); err != nil {
		log.Warn().Err(err).Msg("Calibration file watching disabled")
	}

	ctrl := controller.New(wake, captor, dispatcher, calibrator, store, feedback, mic, controller.Options{
		WakeWord:          cfg.WakeWord,
		FallbackThreshold: cfg.Session.FallbackThreshold,
		AdjustPolicy: calibration.AdjustPolicy{
			MinSuccessRate: cfg.Calib.MinSuccessRate,
			MinAttempts:    cfg.Calib.MinAttempts,
			EnergyFactor:   cfg.Calib.EnergyFactor,
			EnergyFloor:    cfg.Calib.EnergyFloor,
			PauseFactor:    cfg.Calib.PauseFactor,
			PauseCeiling:   cfg.Calib.PauseCeiling,
		},
		Interrupts:     interrupts,
		ProfileUpdates: updates,
	}, logger.Zerolog())

	if flagText {
		// Simulate an immediate interrupt so the session opens in text mode.
		interrupts <- os.Interrupt
	}

	return ctrl.Run(ctx)
}

func runCalibrate(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	mic, err := audio.NewMicSource(logger.Zerolog())
	if err != nil {
		return fmt.Errorf("no usable audio input device: %w", err)
	}
	defer mic.Close()

	calibrator := calibration.NewCalibrator(calibration.CalibratorConfig{
		SampleDuration: cfg.Calib.SampleDuration,
		SafetyMargin:   cfg.Calib.SafetyMargin,
		DefaultPause:   cfg.Calib.DefaultPause,
	}, logger.Zerolog())

	fmt.Println("Calibrating, stay quiet for a moment...")
	profile, err := calibrator.Calibrate(ctx, mic)
	if err != nil {
		return err
	}
	profile.WakeWord = cfg.WakeWord

	store := calibration.NewStore(afero.NewOsFs(), cfg.Calib.Dir, cfg.Calib.ValidityWindow, logger.Zerolog())
	if err := store.Save(profile); err != nil {
		return err
	}

	fmt.Printf("Calibration saved to %s\n", store.Path())
	fmt.Printf("  energy threshold: %.0f\n", profile.EnergyThreshold)
	fmt.Printf("  pause threshold:  %.1fs\n", profile.Pause().Seconds())
	fmt.Printf("  valid until:      %s\n", profile.CapturedAt.Add(cfg.Calib.ValidityWindow).Format(time.RFC1123))
	return nil
}

func runAuth(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	auth := buildAuthenticator(cfg, logger)
	if !auth.HasCredentials() {
		return fmt.Errorf("Spotify credentials missing: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	}

	if err := auth.RunLocalFlow(ctx, os.Stdout); err != nil {
		return err
	}
	fmt.Println("Spotify authorized. Refresh token saved.")
	return nil
}
