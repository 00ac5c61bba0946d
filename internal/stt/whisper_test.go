package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSamples() []int16 {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 500)
	}
	return samples
}

func newTestWhisper(endpoint string) *WhisperRecognizer {
	return NewWhisperRecognizer(zerolog.Nop(), &WhisperConfig{
		APIKey:   "test-key",
		Endpoint: endpoint,
		Model:    "whisper-1",
		Language: "en",
		Timeout:  5 * time.Second,
	})
}

func TestWhisperRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "play hotel california by eagles"}`))
	}))
	defer server.Close()

	text, err := newTestWhisper(server.URL).Recognize(context.Background(), testSamples(), nil)
	require.NoError(t, err)
	assert.Equal(t, "play hotel california by eagles", text)
}

func TestWhisperEmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "  "}`))
	}))
	defer server.Close()

	_, err := newTestWhisper(server.URL).Recognize(context.Background(), testSamples(), nil)
	assert.ErrorIs(t, err, ErrUnintelligible)
}

func TestWhisperServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestWhisper(server.URL).Recognize(context.Background(), testSamples(), nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestWhisperMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	rec := NewWhisperRecognizer(zerolog.Nop(), &WhisperConfig{Endpoint: "http://localhost:1"})

	_, err := rec.Recognize(context.Background(), testSamples(), nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestWhisperEmptySamples(t *testing.T) {
	_, err := newTestWhisper("http://localhost:1").Recognize(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnintelligible)
}

func TestWhisperUnreachable(t *testing.T) {
	// Closed server: connection refused should classify as service trouble.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestWhisper(server.URL).Recognize(context.Background(), testSamples(), nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
