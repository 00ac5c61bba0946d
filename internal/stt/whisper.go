package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/rs/zerolog"
)

// WhisperRecognizer implements STT using OpenAI's Whisper API
type WhisperRecognizer struct {
	apiKey string
	client *http.Client
	logger zerolog.Logger
	config *WhisperConfig
}

// WhisperConfig holds Whisper API configuration
type WhisperConfig struct {
	APIKey   string        `json:"api_key"`
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`    // "whisper-1"
	Language string        `json:"language"` // Optional language hint
	Timeout  time.Duration `json:"timeout"`
}

// DefaultWhisperConfig returns sensible defaults
func DefaultWhisperConfig() *WhisperConfig {
	return &WhisperConfig{
		Endpoint: "https://api.openai.com/v1/audio/transcriptions",
		Model:    "whisper-1",
		Language: "en",
		Timeout:  30 * time.Second,
	}
}

// NewWhisperRecognizer creates a new OpenAI Whisper API recognizer
func NewWhisperRecognizer(logger zerolog.Logger, config *WhisperConfig) *WhisperRecognizer {
	if config == nil {
		config = DefaultWhisperConfig()
	}
	if config.Endpoint == "" {
		config.Endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}

	// Try to get API key from config, then environment
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &WhisperRecognizer{
		apiKey: apiKey,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("provider", "whisper-api").Logger(),
		config: config,
	}
}

// Name returns the provider identifier
func (p *WhisperRecognizer) Name() string {
	return "whisper-api"
}

// Recognize uploads the utterance as WAV and returns the transcript.
func (p *WhisperRecognizer) Recognize(ctx context.Context, samples []int16, profile *calibration.Profile) (string, error) {
	startTime := time.Now()

	if p.apiKey == "" {
		return "", fmt.Errorf("%w: OpenAI API key not configured", ErrServiceUnavailable)
	}
	if len(samples) == 0 {
		return "", ErrUnintelligible
	}

	wavData := audio.EncodeWAV(samples, audio.SampleRate)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", p.config.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if p.config.Language != "" {
		if err := writer.WriteField("language", p.config.Language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().Int("status", resp.StatusCode).Msg("Whisper API request failed")
		return "", fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrUnintelligible
	}

	p.logger.Debug().
		Str("text", text).
		Dur("took", time.Since(startTime)).
		Msg("Transcription complete")
	return text, nil
}
