// Package config provides configuration management for tunepilot
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	WakeWord string        `mapstructure:"wake_word"`
	LogLevel string        `mapstructure:"log_level"`
	Session  SessionConfig `mapstructure:"session"`
	Listen   ListenConfig  `mapstructure:"listen"`
	Calib    CalibConfig   `mapstructure:"calibration"`
	STT      STTConfig     `mapstructure:"stt"`
	Spotify  SpotifyConfig `mapstructure:"spotify"`
	Notify   NotifyConfig  `mapstructure:"notify"`
}

// SessionConfig configures the voice/text mode controller
type SessionConfig struct {
	// FallbackThreshold is the consecutive recognition failure count that
	// forces a switch to text mode.
	FallbackThreshold int `mapstructure:"fallback_threshold"`
}

// ListenConfig configures wake-word and command listen windows
type ListenConfig struct {
	WakeTimeout         time.Duration `mapstructure:"wake_timeout"`
	WakePhraseLimit     time.Duration `mapstructure:"wake_phrase_limit"`
	CommandStartTimeout time.Duration `mapstructure:"command_start_timeout"`
	CommandPhraseLimit  time.Duration `mapstructure:"command_phrase_limit"`
}

// CalibConfig configures ambient calibration and the sensitivity adjust policy
type CalibConfig struct {
	Dir            string        `mapstructure:"dir"`
	ValidityWindow time.Duration `mapstructure:"validity_window"`
	SampleDuration time.Duration `mapstructure:"sample_duration"`
	SafetyMargin   float64       `mapstructure:"safety_margin"`
	DefaultPause   time.Duration `mapstructure:"default_pause"`

	// Success-rate driven sensitivity adjustment. The curve is policy, not
	// hardcoded: tune these rather than the code.
	MinSuccessRate float64       `mapstructure:"min_success_rate"`
	MinAttempts    int           `mapstructure:"min_attempts"`
	EnergyFactor   float64       `mapstructure:"energy_factor"`
	EnergyFloor    float64       `mapstructure:"energy_floor"`
	PauseFactor    float64       `mapstructure:"pause_factor"`
	PauseCeiling   time.Duration `mapstructure:"pause_ceiling"`
}

// STTConfig configures speech-to-text
type STTConfig struct {
	Provider       string        `mapstructure:"provider"` // whisper, deepgram
	Language       string        `mapstructure:"language"`
	Timeout        time.Duration `mapstructure:"timeout"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	DeepgramAPIKey string        `mapstructure:"deepgram_api_key"`
}

// SpotifyConfig configures the music-service client
type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	VolumeStep   int    `mapstructure:"volume_step"`
}

// NotifyConfig configures desktop notifications and spoken feedback
type NotifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Speech        bool   `mapstructure:"speech"`
	SpeechCommand string `mapstructure:"speech_command"` // empty = auto-detect
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		WakeWord: "jarvis",
		LogLevel: "info",
		Session: SessionConfig{
			FallbackThreshold: 3,
		},
		Listen: ListenConfig{
			WakeTimeout:         30 * time.Second,
			WakePhraseLimit:     5 * time.Second,
			CommandStartTimeout: 3 * time.Second,
			CommandPhraseLimit:  7 * time.Second,
		},
		Calib: CalibConfig{
			Dir:            filepath.Join(home, ".tunepilot"),
			ValidityWindow: 7 * 24 * time.Hour,
			SampleDuration: 2 * time.Second,
			SafetyMargin:   1.5,
			DefaultPause:   time.Second,
			MinSuccessRate: 0.30,
			MinAttempts:    3,
			EnergyFactor:   0.7,
			EnergyFloor:    100,
			PauseFactor:    1.2,
			PauseCeiling:   5 * time.Second,
		},
		STT: STTConfig{
			Provider: "whisper",
			Language: "en",
			Timeout:  30 * time.Second,
		},
		Spotify: SpotifyConfig{
			RedirectURI: "http://127.0.0.1:8080/callback",
			VolumeStep:  15,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Speech:  true,
		},
	}
}

// Dir returns the application config directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".tunepilot")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := Dir()
	if err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("TUNEPILOT")
	viper.AutomaticEnv()

	// Credentials are commonly exported under these names already
	viper.BindEnv("spotify.client_id", "SPOTIFY_CLIENT_ID")
	viper.BindEnv("spotify.client_secret", "SPOTIFY_CLIENT_SECRET")
	viper.BindEnv("spotify.redirect_uri", "SPOTIFY_REDIRECT_URI")
	viper.BindEnv("stt.openai_api_key", "OPENAI_API_KEY")
	viper.BindEnv("stt.deepgram_api_key", "DEEPGRAM_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := Dir()
	if err != nil {
		return err
	}

	viper.Set("wake_word", cfg.WakeWord)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("session.fallback_threshold", cfg.Session.FallbackThreshold)
	viper.Set("listen.wake_timeout", cfg.Listen.WakeTimeout)
	viper.Set("listen.wake_phrase_limit", cfg.Listen.WakePhraseLimit)
	viper.Set("listen.command_start_timeout", cfg.Listen.CommandStartTimeout)
	viper.Set("listen.command_phrase_limit", cfg.Listen.CommandPhraseLimit)
	viper.Set("calibration.dir", cfg.Calib.Dir)
	viper.Set("calibration.validity_window", cfg.Calib.ValidityWindow)
	viper.Set("calibration.sample_duration", cfg.Calib.SampleDuration)
	viper.Set("calibration.safety_margin", cfg.Calib.SafetyMargin)
	viper.Set("calibration.default_pause", cfg.Calib.DefaultPause)
	viper.Set("calibration.min_success_rate", cfg.Calib.MinSuccessRate)
	viper.Set("calibration.min_attempts", cfg.Calib.MinAttempts)
	viper.Set("calibration.energy_factor", cfg.Calib.EnergyFactor)
	viper.Set("calibration.energy_floor", cfg.Calib.EnergyFloor)
	viper.Set("calibration.pause_factor", cfg.Calib.PauseFactor)
	viper.Set("calibration.pause_ceiling", cfg.Calib.PauseCeiling)
	viper.Set("stt.provider", cfg.STT.Provider)
	viper.Set("stt.language", cfg.STT.Language)
	viper.Set("stt.timeout", cfg.STT.Timeout)
	viper.Set("spotify.redirect_uri", cfg.Spotify.RedirectURI)
	viper.Set("spotify.volume_step", cfg.Spotify.VolumeStep)
	viper.Set("notify.enabled", cfg.Notify.Enabled)
	viper.Set("notify.speech", cfg.Notify.Speech)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
