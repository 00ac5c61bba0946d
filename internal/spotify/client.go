package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIURL = "https://api.spotify.com/v1"

// Error taxonomy for playback calls. Callers decide retry behavior from
// these: only ErrRateLimited and ErrNetwork are transient.
var (
	// ErrUnauthenticated means the refresh token is missing or revoked; the
	// user must re-run the auth flow.
	ErrUnauthenticated = errors.New("spotify: not authenticated")

	// ErrNoActiveDevice means no Spotify player is available to receive the
	// command. Retrying does not help; the user must open a player.
	ErrNoActiveDevice = errors.New("spotify: no active playback device")

	// ErrRateLimited means the API asked us to back off.
	ErrRateLimited = errors.New("spotify: rate limited")

	// ErrNetwork covers transport failures and server-side errors.
	ErrNetwork = errors.New("spotify: network error")

	// ErrNotFound means a search produced no matching track.
	ErrNotFound = errors.New("spotify: no matching track")
)

// TrackInfo describes one track.
type TrackInfo struct {
	Title  string
	Artist string
	Album  string
	URI    string
}

func (t TrackInfo) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " by " + t.Artist
}

// Client calls the Spotify Web API. It keeps a short-lived access token and
// refreshes it through the Authenticator as needed.
type Client struct {
	auth       *Authenticator
	httpClient *http.Client
	apiURL     string
	logger     zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Client around an Authenticator.
func NewClient(auth *Authenticator, logger zerolog.Logger) *Client {
	return &Client{
		auth:       auth,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     defaultAPIURL,
		logger:     logger.With().Str("component", "spotify").Logger(),
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	tok, ttl, err := c.auth.Refresh(ctx)
	if err != nil {
		return "", err
	}
	c.accessToken = tok
	c.tokenExpiry = time.Now().Add(ttl - 30*time.Second)
	return tok, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// do performs one API call, refreshing the access token once on a 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
	}

	endpoint := c.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	send := func(token string) (*http.Response, error) {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.httpClient.Do(req)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	resp, err := send(token)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Access token likely expired early; refresh once and retry.
		resp.Body.Close()
		c.invalidateToken()
		token, err = c.token(ctx)
		if err != nil {
			return nil, 0, err
		}
		resp, err = send(token)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if err := c.classify(path, resp.StatusCode, data); err != nil {
		return data, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// classify maps an API status to the error taxonomy. nil means success.
func (c *Client) classify(path string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound && strings.HasPrefix(path, "/me/player"):
		// The player endpoints 404 when no device is active.
		return ErrNoActiveDevice
	case status == http.StatusForbidden:
		var apiErr struct {
			Error struct {
				Reason  string `json:"reason"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Reason == "NO_ACTIVE_DEVICE" {
			return ErrNoActiveDevice
		}
		return fmt.Errorf("spotify: request forbidden (status 403)")
	case status >= 500:
		return fmt.Errorf("%w: server status %d", ErrNetwork, status)
	default:
		return fmt.Errorf("spotify: unexpected status %d", status)
	}
}

type trackPayload struct {
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
}

func (t trackPayload) info() TrackInfo {
	info := TrackInfo{Title: t.Name, Album: t.Album.Name, URI: t.URI}
	if len(t.Artists) > 0 {
		info.Artist = t.Artists[0].Name
	}
	return info
}

// SearchTrack finds the best track match for a title, optionally constrained
// to an artist. Returns ErrNotFound when the catalog has nothing suitable.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (*TrackInfo, error) {
	q := title
	if artist != "" {
		q += " artist:" + artist
	}
	query := url.Values{}
	query.Set("q", q)
	query.Set("type", "track")
	query.Set("limit", "1")

	data, _, err := c.do(ctx, "GET", "/search", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tracks struct {
			Items []trackPayload `json:"items"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(result.Tracks.Items) == 0 {
		if artist != "" {
			return nil, fmt.Errorf("%w: %q by %q", ErrNotFound, title, artist)
		}
		return nil, fmt.Errorf("%w: %q", ErrNotFound, title)
	}

	info := result.Tracks.Items[0].info()
	c.logger.Debug().Str("uri", info.URI).Str("track", info.String()).Msg("Search matched")
	return &info, nil
}

// PlayTrack searches for the track and starts playback on the active device.
func (c *Client) PlayTrack(ctx context.Context, title, artist string) (*TrackInfo, error) {
	track, err := c.SearchTrack(ctx, title, artist)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"uris": []string{track.URI}}
	if _, _, err := c.do(ctx, "PUT", "/me/player/play", nil, body); err != nil {
		return nil, err
	}
	c.logger.Info().Str("track", track.String()).Msg("Playback started")
	return track, nil
}

// Resume continues playback on the active device.
func (c *Client) Resume(ctx context.Context) error {
	_, _, err := c.do(ctx, "PUT", "/me/player/play", nil, nil)
	return err
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	_, _, err := c.do(ctx, "PUT", "/me/player/pause", nil, nil)
	return err
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	_, _, err := c.do(ctx, "POST", "/me/player/next", nil, nil)
	return err
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	_, _, err := c.do(ctx, "POST", "/me/player/previous", nil, nil)
	return err
}

type playbackState struct {
	IsPlaying bool         `json:"is_playing"`
	Item      trackPayload `json:"item"`
	Device    struct {
		VolumePercent int `json:"volume_percent"`
	} `json:"device"`
}

func (c *Client) playback(ctx context.Context) (*playbackState, error) {
	data, status, err := c.do(ctx, "GET", "/me/player", nil, nil)
	if err != nil {
		return nil, err
	}
	// 204 means no active playback session at all.
	if status == http.StatusNoContent || len(data) == 0 {
		return nil, nil
	}
	var state playbackState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return &state, nil
}

// NowPlaying reports the current track, if any, and whether it is playing.
func (c *Client) NowPlaying(ctx context.Context) (*TrackInfo, bool, error) {
	state, err := c.playback(ctx)
	if err != nil {
		return nil, false, err
	}
	if state == nil || state.Item.Name == "" {
		return nil, false, nil
	}
	info := state.Item.info()
	return &info, state.IsPlaying, nil
}

// AdjustVolume shifts the active device's volume by delta percentage points,
// clamped to 0-100, and returns the resulting level.
func (c *Client) AdjustVolume(ctx context.Context, delta int) (int, error) {
	state, err := c.playback(ctx)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, ErrNoActiveDevice
	}

	vol := state.Device.VolumePercent + delta
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}

	query := url.Values{}
	query.Set("volume_percent", strconv.Itoa(vol))
	if _, _, err := c.do(ctx, "PUT", "/me/player/volume", query, nil); err != nil {
		return 0, err
	}
	c.logger.Debug().Int("volume", vol).Msg("Volume set")
	return vol, nil
}
