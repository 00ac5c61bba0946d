package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory TokenCache.
type memCache struct {
	token string
}

func (m *memCache) Load() (string, error) {
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *memCache) Store(token string) error {
	m.token = token
	return nil
}

// newAccountsServer serves token refreshes, counting them.
func newAccountsServer(t *testing.T, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))

		n := refreshes.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("access-%d", n),
			"expires_in":   3600,
		})
	}))
}

func newTestClient(t *testing.T, api http.Handler) (*Client, *atomic.Int32, func()) {
	t.Helper()
	var refreshes atomic.Int32
	accounts := newAccountsServer(t, &refreshes)
	apiSrv := httptest.NewServer(api)

	auth := NewAuthenticator("id", "secret", "http://127.0.0.1:8080/callback", &memCache{token: "refresh-1"}, zerolog.Nop())
	auth.accountsURL = accounts.URL

	client := NewClient(auth, zerolog.Nop())
	client.apiURL = apiSrv.URL

	return client, &refreshes, func() {
		accounts.Close()
		apiSrv.Close()
	}
}

func TestClientNoActiveDevice(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer cleanup()

	err := client.Pause(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveDevice)
}

func TestClientForbiddenNoActiveDevice(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"status": 403, "reason": "NO_ACTIVE_DEVICE"}}`))
	}))
	defer cleanup()

	err := client.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveDevice)
}

func TestClientRateLimited(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer cleanup()

	err := client.Next(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClientServerErrorIsNetwork(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer cleanup()

	err := client.Previous(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClientRefreshesTokenOnce(t *testing.T) {
	var apiCalls atomic.Int32
	client, refreshes, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First access token is rejected once; the retried request with the
		// refreshed token succeeds.
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer cleanup()

	err := client.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), refreshes.Load())
	assert.Equal(t, int32(2), apiCalls.Load())
}

func TestClientSearchAndPlay(t *testing.T) {
	var playBody struct {
		URIs []string `json:"uris"`
	}
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			assert.Equal(t, "hotel california artist:eagles", r.URL.Query().Get("q"))
			assert.Equal(t, "track", r.URL.Query().Get("type"))
			w.Write([]byte(`{"tracks": {"items": [{
				"name": "Hotel California",
				"uri": "spotify:track:40riOy7x9W7GXjyGp4pjAv",
				"artists": [{"name": "Eagles"}],
				"album": {"name": "Hotel California"}
			}]}}`))
		case "/me/player/play":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&playBody))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer cleanup()

	track, err := client.PlayTrack(context.Background(), "hotel california", "eagles")
	require.NoError(t, err)
	assert.Equal(t, "Hotel California", track.Title)
	assert.Equal(t, "Eagles", track.Artist)
	assert.Equal(t, []string{"spotify:track:40riOy7x9W7GXjyGp4pjAv"}, playBody.URIs)
	assert.Equal(t, "Hotel California by Eagles", track.String())
}

func TestClientSearchNotFound(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tracks": {"items": []}}`))
	}))
	defer cleanup()

	_, err := client.SearchTrack(context.Background(), "no such song", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientNowPlayingIdle(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer cleanup()

	track, playing, err := client.NowPlaying(context.Background())
	require.NoError(t, err)
	assert.Nil(t, track)
	assert.False(t, playing)
}

func TestClientAdjustVolumeClamps(t *testing.T) {
	var setVolume string
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/player" && r.Method == "GET":
			w.Write([]byte(`{"is_playing": true, "device": {"volume_percent": 95}, "item": {"name": "Song"}}`))
		case r.URL.Path == "/me/player/volume":
			setVolume = r.URL.Query().Get("volume_percent")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer cleanup()

	vol, err := client.AdjustVolume(context.Background(), 15)
	require.NoError(t, err)
	assert.Equal(t, 100, vol)
	assert.Equal(t, "100", setVolume)
}

func TestClientAdjustVolumeNoSession(t *testing.T) {
	client, _, cleanup := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer cleanup()

	_, err := client.AdjustVolume(context.Background(), 15)
	assert.ErrorIs(t, err, ErrNoActiveDevice)
}

func TestAuthenticatorNoToken(t *testing.T) {
	auth := NewAuthenticator("id", "secret", "http://127.0.0.1:8080/callback", &memCache{}, zerolog.Nop())

	_, _, err := auth.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, auth.HasToken())
	assert.True(t, auth.HasCredentials())
}

func TestChainCacheFallsThrough(t *testing.T) {
	empty := &memCache{}
	filled := &memCache{token: "tok"}
	chain := ChainCache{empty, filled}

	tok, err := chain.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	require.NoError(t, chain.Store("new"))
	assert.Equal(t, "new", empty.token)
	assert.Equal(t, "new", filled.token)
}
