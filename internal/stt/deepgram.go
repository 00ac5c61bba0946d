package stt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/tunepilot/internal/audio"
	"github.com/normanking/tunepilot/internal/calibration"
	"github.com/rs/zerolog"
)

const (
	deepgramWSEndpoint = "wss://api.deepgram.com/v1/listen"
	deepgramModel      = "nova-2"

	// PCM bytes per websocket message (~250 ms of 16 kHz mono audio).
	deepgramChunkBytes = 8000
)

// DeepgramRecognizer implements STT over Deepgram's streaming websocket API.
// Each Recognize call opens one connection, streams the utterance, and
// collects the final transcript.
type DeepgramRecognizer struct {
	apiKey string
	logger zerolog.Logger
	config *DeepgramConfig
}

// DeepgramConfig holds Deepgram configuration
type DeepgramConfig struct {
	APIKey   string        `json:"api_key"`
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	Language string        `json:"language"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultDeepgramConfig returns sensible defaults
func DefaultDeepgramConfig() *DeepgramConfig {
	return &DeepgramConfig{
		Endpoint: deepgramWSEndpoint,
		Model:    deepgramModel,
		Language: "en-US",
		Timeout:  30 * time.Second,
	}
}

// NewDeepgramRecognizer creates a new Deepgram streaming recognizer
func NewDeepgramRecognizer(logger zerolog.Logger, config *DeepgramConfig) *DeepgramRecognizer {
	if config == nil {
		config = DefaultDeepgramConfig()
	}
	if config.Endpoint == "" {
		config.Endpoint = deepgramWSEndpoint
	}
	if config.Model == "" {
		config.Model = deepgramModel
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}

	return &DeepgramRecognizer{
		apiKey: apiKey,
		logger: logger.With().Str("provider", "deepgram").Logger(),
		config: config,
	}
}

// Name returns the provider identifier
func (p *DeepgramRecognizer) Name() string {
	return "deepgram"
}

type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Recognize streams the utterance and aggregates final transcripts.
func (p *DeepgramRecognizer) Recognize(ctx context.Context, samples []int16, profile *calibration.Profile) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: Deepgram API key not configured", ErrServiceUnavailable)
	}
	if len(samples) == 0 {
		return "", ErrUnintelligible
	}

	timeout := p.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=linear16&sample_rate=%d&channels=1&punctuate=true&interim_results=false",
		p.config.Endpoint, p.config.Model, p.config.Language, audio.SampleRate)

	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("%w: handshake status %d", ErrServiceUnavailable, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer conn.Close()

	// Stream audio, then tell the service the utterance is complete.
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	writeErr := make(chan error, 1)
	go func() {
		for off := 0; off < len(pcm); off += deepgramChunkBytes {
			end := off + deepgramChunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	}()

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	var parts []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			select {
			case werr := <-writeErr:
				if werr != nil {
					return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, werr)
				}
			default:
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "Metadata" {
			// Metadata follows the last result; we have the whole transcript.
			break
		}
		if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", ErrUnintelligible
	}

	p.logger.Debug().Str("text", text).Msg("Transcription complete")
	return text, nil
}
