// Package spotify implements a minimal Spotify Web API client for playback
// control, plus the OAuth plumbing to keep it authenticated.
package spotify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

const (
	defaultAccountsURL = "https://accounts.spotify.com"

	oauthScopes = "user-modify-playback-state user-read-playback-state user-read-currently-playing"

	keyringService = "tunepilot"
	keyringUser    = "spotify-refresh-token"
)

// ErrNoToken means no refresh token has been cached yet; the user must run
// the auth flow once.
var ErrNoToken = errors.New("spotify: no cached token")

// TokenCache stores the long-lived refresh token between runs.
type TokenCache interface {
	Load() (string, error)
	Store(token string) error
}

// KeyringCache keeps the refresh token in the OS keyring.
type KeyringCache struct{}

// Load reads the token from the keyring.
func (KeyringCache) Load() (string, error) {
	tok, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("keyring read failed: %w", err)
	}
	return tok, nil
}

// Store writes the token to the keyring.
func (KeyringCache) Store(token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("keyring write failed: %w", err)
	}
	return nil
}

// FileCache keeps the refresh token in a mode-0600 JSON file, for systems
// without a usable keyring.
type FileCache struct {
	Path string
}

// Load reads the token file.
func (f FileCache) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", ErrNoToken
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.RefreshToken == "" {
		return "", ErrNoToken
	}
	return payload.RefreshToken, nil
}

// Store writes the token file.
func (f FileCache) Store(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]string{"refresh_token": token})
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0600)
}

// ChainCache tries each cache in order on Load and writes through to all on
// Store, so the keyring is preferred but a file fallback still works.
type ChainCache []TokenCache

// Load returns the first cached token found.
func (c ChainCache) Load() (string, error) {
	for _, cache := range c {
		if tok, err := cache.Load(); err == nil {
			return tok, nil
		}
	}
	return "", ErrNoToken
}

// Store writes the token to every cache that will take it.
func (c ChainCache) Store(token string) error {
	var firstErr error
	stored := false
	for _, cache := range c {
		if err := cache.Store(token); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored = true
	}
	if stored {
		return nil
	}
	return firstErr
}

// DefaultTokenCache returns the keyring-first cache with a file fallback
// under dir.
func DefaultTokenCache(dir string) TokenCache {
	return ChainCache{
		KeyringCache{},
		FileCache{Path: filepath.Join(dir, "spotify_token.json")},
	}
}

// Authenticator exchanges and refreshes OAuth tokens.
type Authenticator struct {
	clientID     string
	clientSecret string
	redirectURI  string
	cache        TokenCache
	accountsURL  string
	httpClient   *http.Client
	logger       zerolog.Logger

	mu           sync.Mutex
	refreshToken string
}

// NewAuthenticator creates an Authenticator. clientID and clientSecret come
// from the Spotify developer dashboard.
func NewAuthenticator(clientID, clientSecret, redirectURI string, cache TokenCache, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		cache:        cache,
		accountsURL:  defaultAccountsURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger.With().Str("component", "spotify-auth").Logger(),
	}
}

// HasCredentials reports whether a client id/secret pair is configured.
func (a *Authenticator) HasCredentials() bool {
	return a.clientID != "" && a.clientSecret != ""
}

// HasToken reports whether a refresh token is cached.
func (a *Authenticator) HasToken() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refreshToken != "" {
		return true
	}
	tok, err := a.cache.Load()
	if err != nil {
		return false
	}
	a.refreshToken = tok
	return true
}

// AuthorizeURL builds the user-consent URL for the authorization-code flow.
func (a *Authenticator) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", a.redirectURI)
	q.Set("scope", oauthScopes)
	q.Set("state", state)
	return a.accountsURL + "/authorize?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (a *Authenticator) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		a.logger.Warn().Int("status", resp.StatusCode).Msg("Token request rejected")
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint status %d", ErrNetwork, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return &tok, nil
}

// Exchange trades an authorization code for tokens and caches the refresh
// token.
func (a *Authenticator) Exchange(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", a.redirectURI)

	tok, err := a.tokenRequest(ctx, form)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token in exchange response", ErrUnauthenticated)
	}

	a.mu.Lock()
	a.refreshToken = tok.RefreshToken
	a.mu.Unlock()

	if err := a.cache.Store(tok.RefreshToken); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to cache refresh token")
	}
	return nil
}

// Refresh obtains a fresh access token. Returns ErrUnauthenticated when no
// valid refresh token exists, at which point the user must re-run auth.
func (a *Authenticator) Refresh(ctx context.Context) (string, time.Duration, error) {
	a.mu.Lock()
	refresh := a.refreshToken
	a.mu.Unlock()

	if refresh == "" {
		tok, err := a.cache.Load()
		if err != nil {
			return "", 0, ErrUnauthenticated
		}
		refresh = tok
		a.mu.Lock()
		a.refreshToken = refresh
		a.mu.Unlock()
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)

	tok, err := a.tokenRequest(ctx, form)
	if err != nil {
		return "", 0, err
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		a.mu.Lock()
		a.refreshToken = tok.RefreshToken
		a.mu.Unlock()
		if err := a.cache.Store(tok.RefreshToken); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to cache rotated refresh token")
		}
	}

	expiry := time.Duration(tok.ExpiresIn) * time.Second
	if expiry <= 0 {
		expiry = time.Hour
	}
	return tok.AccessToken, expiry, nil
}

// RunLocalFlow performs the one-time interactive authorization: it serves
// the redirect URI locally, prints the consent URL, and waits for the
// callback or ctx cancellation.
func (a *Authenticator) RunLocalFlow(ctx context.Context, out io.Writer) error {
	redirect, err := url.Parse(a.redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return err
	}
	state := hex.EncodeToString(stateBytes)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth state mismatch")
			return
		}
		if e := r.URL.Query().Get("error"); e != "" {
			http.Error(w, "authorization declined", http.StatusForbidden)
			errCh <- fmt.Errorf("%w: authorization declined: %s", ErrUnauthenticated, e)
			return
		}
		fmt.Fprintln(w, "tunepilot is authorized. You can close this tab.")
		codeCh <- r.URL.Query().Get("code")
	})

	server := &http.Server{Addr: redirect.Host, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("callback server failed: %w", err)
		}
	}()
	defer server.Close()

	fmt.Fprintf(out, "Open this URL in your browser to authorize Spotify access:\n\n  %s\n\n", a.AuthorizeURL(state))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	case code := <-codeCh:
		return a.Exchange(ctx, code)
	}
}
