package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/findtune/internal/auth"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
	tu "github.com/desertthunder/findtune/internal/testing"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeService records calls and returns canned values.
type fakeService struct {
	mu       sync.Mutex
	calls    []string
	tokens   []string
	err      error
	tracks   []models.Track
	current  *models.Track
	state    *models.PlayerState
	devices  []models.Device
	playlist *models.Playlist
	lastPlay PlayRequest
	lastVol  int
}

func (f *fakeService) record(name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeService) Name() string { return "Fake" }

func (f *fakeService) Profile(ctx context.Context, token string) (*models.Profile, error) {
	if err := f.record("profile", token); err != nil {
		return nil, err
	}
	return &models.Profile{ID: "user-1", DisplayName: "User"}, nil
}

func (f *fakeService) Recommendations(ctx context.Context, token string, seeds []string) ([]models.Track, error) {
	if err := f.record("recommendations:"+strings.Join(seeds, ","), token); err != nil {
		return nil, err
	}
	return f.tracks, nil
}

func (f *fakeService) Search(ctx context.Context, token, query string) ([]models.Track, error) {
	if err := f.record("search:"+query, token); err != nil {
		return nil, err
	}
	return f.tracks, nil
}

func (f *fakeService) CurrentlyPlaying(ctx context.Context, token string) (*models.Track, error) {
	if err := f.record("currently-playing", token); err != nil {
		return nil, err
	}
	return f.current, nil
}

func (f *fakeService) PlayerState(ctx context.Context, token string) (*models.PlayerState, error) {
	if err := f.record("player-state", token); err != nil {
		return nil, err
	}
	return f.state, nil
}

func (f *fakeService) Devices(ctx context.Context, token string) ([]models.Device, error) {
	if err := f.record("devices", token); err != nil {
		return nil, err
	}
	return f.devices, nil
}

func (f *fakeService) Play(ctx context.Context, token, deviceID string, uris []string) error {
	f.mu.Lock()
	f.lastPlay = PlayRequest{URIs: uris, DeviceID: deviceID}
	f.mu.Unlock()
	return f.record("play", token)
}

func (f *fakeService) Pause(ctx context.Context, token, deviceID string) error {
	return f.record("pause:"+deviceID, token)
}

func (f *fakeService) SetVolume(ctx context.Context, token, deviceID string, percent int) error {
	f.mu.Lock()
	f.lastVol = percent
	f.mu.Unlock()
	return f.record("volume:"+deviceID, token)
}

func (f *fakeService) EnsurePlaylist(ctx context.Context, token, name string) (*models.Playlist, error) {
	if err := f.record("ensure-playlist:"+name, token); err != nil {
		return nil, err
	}
	return f.playlist, nil
}

func (f *fakeService) AddTracks(ctx context.Context, token, playlistID string, tracks []string) error {
	return f.record("add-tracks:"+playlistID+":"+strings.Join(tracks, ","), token)
}

func (f *fakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeService) LastPlay() (PlayRequest, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPlay, f.lastVol
}

type harness struct {
	server     *httptest.Server
	client     *http.Client
	store      *sessions.MemoryStore
	service    *fakeService
	exchanges  *counter
	tokenReply map[string]any
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		service:    &fakeService{},
		exchanges:  &counter{},
		tokenReply: map[string]any{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600},
	}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.exchanges.inc()
		r.ParseForm()
		reply := h.tokenReply
		if r.PostForm.Get("grant_type") == "refresh_token" {
			reply = map[string]any{"access_token": "at-2", "expires_in": 1800}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(tokenSrv.Close)

	clock := tu.NewFakeClock(epoch)
	h.store = sessions.NewMemoryStore(clock)

	cfg := shared.DefaultConfig()
	cfg.Server.Domain = "http://localhost:3000"
	cfg.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8888/api/callback",
		AuthURL:      "https://accounts.example.com/authorize",
		TokenURL:     tokenSrv.URL,
	}

	cookies, err := sessions.NewCookieCodec("findtune-cookie", "secret", cfg.Session.MaxAge(), false, clock)
	if err != nil {
		t.Fatalf("failed to create cookie codec: %v", err)
	}

	logger := shared.NewLogger(io.Discard)
	controller := auth.NewController(auth.Options{
		OAuth:      auth.NewOAuthConfig(cfg.Credentials.Spotify),
		Sessions:   h.store,
		Profiles:   h.service,
		HTTPClient: tokenSrv.Client(),
		Clock:      clock,
		Logger:     logger,
	})

	srv, err := New(Options{
		Config:   cfg,
		Auth:     controller,
		Sessions: h.store,
		Cookies:  cookies,
		Service:  h.service,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(h.server.Close)

	jar, _ := cookiejar.New(nil)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, h.server.URL+path, r)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// login runs the login and callback round trip and leaves the client holding an authenticated cookie.
func (h *harness) login(t *testing.T) {
	t.Helper()

	resp := h.do(t, http.MethodGet, "/api/login", nil)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	state := loc.Query().Get("state")

	resp = h.do(t, http.MethodGet, "/api/callback?code=abc&state="+url.QueryEscape(state), nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "http://localhost:3000/" {
		t.Fatalf("expected redirect to landing page, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("Login Redirects With PKCE", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/login", nil)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}

		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			t.Fatalf("invalid location: %v", err)
		}
		if loc.Host != "accounts.example.com" {
			t.Errorf("unexpected authorize host %s", loc.Host)
		}
		q := loc.Query()
		if q.Get("code_challenge_method") != "S256" || len(q.Get("code_challenge")) != 43 {
			t.Errorf("missing PKCE parameters: %v", q)
		}

		var found bool
		for _, c := range resp.Cookies() {
			if c.Name == "findtune-cookie" && c.HttpOnly {
				found = true
			}
		}
		if !found {
			t.Error("expected http-only session cookie")
		}

		s, err := h.store.FindByState(context.Background(), q.Get("state"))
		if err != nil {
			t.Fatalf("expected pending login stored, got %v", err)
		}
		if auth.DeriveChallenge(s.Login.Verifier) != q.Get("code_challenge") {
			t.Error("challenge does not match the stored verifier")
		}
	})

	t.Run("Callback Stores Tokens", func(t *testing.T) {
		h := newHarness(t)
		h.login(t)

		resp := h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		body := decode[TokenResponse](t, resp)
		if body.AccessToken != "at-1" || body.ExpiresIn != 3600 {
			t.Errorf("unexpected token response %+v", body)
		}
		if calls := h.service.Calls(); len(calls) != 1 || calls[0] != "profile" {
			t.Errorf("expected profile lookup after exchange, got %v", calls)
		}
	})

	t.Run("Callback State Mismatch", func(t *testing.T) {
		h := newHarness(t)
		h.do(t, http.MethodGet, "/api/login", nil)

		resp := h.do(t, http.MethodGet, "/api/callback?code=abc&state=forged", nil)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get("Location"); got != "http://localhost:3000/?error=state_mismatch" {
			t.Errorf("unexpected location %s", got)
		}
		if h.exchanges.get() != 0 {
			t.Errorf("expected no token exchange, got %d", h.exchanges.get())
		}

		resp = h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 after mismatch, got %d", resp.StatusCode)
		}
	})

	t.Run("CLI Callback Without Cookie Resolves By State", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/login?client=cli", nil)
		loc, _ := url.Parse(resp.Header.Get("Location"))
		state := loc.Query().Get("state")

		browser := &http.Client{CheckRedirect: h.client.CheckRedirect}
		resp, err := browser.Get(h.server.URL + "/api/callback?code=abc&state=" + url.QueryEscape(state))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status page, got %d", resp.StatusCode)
		}
		page, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(page), "Authorization Successful") {
			t.Error("expected success page")
		}

		resp = h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected the CLI session to be authenticated, got %d", resp.StatusCode)
		}
	})

	t.Run("Browser Callback Without Cookie Is Rejected", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/login", nil)
		loc, _ := url.Parse(resp.Header.Get("Location"))
		state := loc.Query().Get("state")

		victim := &http.Client{CheckRedirect: h.client.CheckRedirect}
		resp, err := victim.Get(h.server.URL + "/api/callback?code=abc&state=" + url.QueryEscape(state))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if got := resp.Header.Get("Location"); got != "http://localhost:3000/?error=state_mismatch" {
			t.Errorf("expected state mismatch redirect, got %d %s", resp.StatusCode, got)
		}
		if n := h.exchanges.get(); n != 0 {
			t.Errorf("expected no token exchange, got %d", n)
		}

		resp = h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected the starting session to stay logged out, got %d", resp.StatusCode)
		}
	})

	t.Run("Callback Without Cookie Or Known State", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/callback?code=abc&state=unknown", nil)
		if got := resp.Header.Get("Location"); got != "http://localhost:3000/?error=state_mismatch" {
			t.Errorf("unexpected location %s", got)
		}
	})

	t.Run("Exchange Failure Redirects Without Indicator", func(t *testing.T) {
		h := newHarness(t)
		h.tokenReply = map[string]any{"error": "invalid_grant"}

		resp := h.do(t, http.MethodGet, "/api/login", nil)
		loc, _ := url.Parse(resp.Header.Get("Location"))

		resp = h.do(t, http.MethodGet, "/api/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), nil)
		if got := resp.Header.Get("Location"); got != "http://localhost:3000/" {
			t.Errorf("unexpected location %s", got)
		}

		resp = h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Access Token Without Session", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Refresh Token", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/refresh-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 without session, got %d", resp.StatusCode)
		}

		h.login(t)
		resp = h.do(t, http.MethodGet, "/api/refresh-token", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decode[TokenResponse](t, resp)
		if body.AccessToken != "at-2" || body.ExpiresIn != 1800 {
			t.Errorf("unexpected refresh response %+v", body)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		h := newHarness(t)
		h.login(t)

		resp := h.do(t, http.MethodGet, "/api/logout", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decode[messageBody](t, resp)
		if body.Message != "Logout successful" {
			t.Errorf("unexpected body %+v", body)
		}

		resp = h.do(t, http.MethodGet, "/api/access-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
		}
	})

	t.Run("Wrong Method", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodPost, "/api/login", nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestAPIEndpoints(t *testing.T) {
	track := models.Track{ID: "t1", URI: "spotify:track:t1", Name: "Song"}

	t.Run("Requires Token", func(t *testing.T) {
		h := newHarness(t)

		for _, path := range []string{"/api/recommendations?seed_tracks=a", "/api/spotify-profile", "/api/devices", "/api/player-state"} {
			resp := h.do(t, http.MethodGet, path, nil)
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("%s: expected 403, got %d", path, resp.StatusCode)
			}
		}
		if calls := h.service.Calls(); len(calls) != 0 {
			t.Errorf("expected no upstream calls, got %v", calls)
		}
	})

	t.Run("Bearer Header", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/spotify-profile", nil, "Authorization", "Bearer header-token")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if tokens := h.service.Tokens(); tokens[0] != "header-token" {
			t.Errorf("expected header token to be used, got %s", tokens[0])
		}
	})

	t.Run("Session Token", func(t *testing.T) {
		h := newHarness(t)
		h.login(t)

		resp := h.do(t, http.MethodGet, "/api/devices", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		tokens := h.service.Tokens()
		if last := tokens[len(tokens)-1]; last != "at-1" {
			t.Errorf("expected session token, got %s", last)
		}
	})

	t.Run("Recommendations", func(t *testing.T) {
		h := newHarness(t)
		h.service.tracks = []models.Track{track}

		resp := h.do(t, http.MethodGet, "/api/recommendations?seed_tracks=a,b", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decode[TracksResponse](t, resp)
		if len(body.Tracks) != 1 || body.Tracks[0].ID != "t1" {
			t.Errorf("unexpected body %+v", body)
		}
		if calls := h.service.Calls(); calls[0] != "recommendations:a,b" {
			t.Errorf("unexpected call %v", calls)
		}

		t.Run("Missing Seeds", func(t *testing.T) {
			resp := h.do(t, http.MethodGet, "/api/recommendations", nil, "Authorization", "Bearer tok")
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403, got %d", resp.StatusCode)
			}
		})
	})

	t.Run("Upstream Errors", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			status     int
			retryAfter string
		}{
			{"Unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, ""},
			{"Rate Limited", &shared.RateLimitError{RetryAfter: 7 * time.Second}, http.StatusTooManyRequests, "7"},
			{"Upstream Not Found", &shared.UpstreamError{Status: http.StatusNotFound, Message: "Device not found"}, http.StatusBadGateway, ""},
			{"Upstream Forbidden", &shared.UpstreamError{Status: http.StatusForbidden, Message: "Restriction violated"}, http.StatusBadGateway, ""},
			{"Upstream Server Error", &shared.UpstreamError{Status: http.StatusInternalServerError, Message: "Server error"}, http.StatusBadGateway, ""},
			{"Unavailable", shared.ErrServiceUnavailable, http.StatusBadGateway, ""},
			{"Unknown", errors.New("boom"), http.StatusInternalServerError, ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := newHarness(t)
				h.service.err = tt.err

				resp := h.do(t, http.MethodGet, "/api/recommendations?seed_tracks=a", nil, "Authorization", "Bearer tok")
				if resp.StatusCode != tt.status {
					t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
				}
				if got := resp.Header.Get("Retry-After"); got != tt.retryAfter {
					t.Errorf("expected Retry-After %q, got %q", tt.retryAfter, got)
				}
				if tt.retryAfter != "" {
					body := decode[rateLimitBody](t, resp)
					if body.RetryAfter != 7 {
						t.Errorf("expected retryAfter 7, got %d", body.RetryAfter)
					}
				}
			})
		}
	})

	t.Run("Player Command Rejected Upstream", func(t *testing.T) {
		h := newHarness(t)
		h.service.err = &shared.UpstreamError{Status: http.StatusForbidden, Message: "Player command failed: Restriction violated"}

		for _, tc := range []struct {
			method, path string
			body         any
		}{
			{http.MethodPost, "/api/play", PlayRequest{DeviceID: "d1"}},
			{http.MethodPost, "/api/pause", PauseRequest{DeviceID: "d1"}},
			{http.MethodPut, "/api/volume", VolumeRequest{Volume: 10, DeviceID: "d1"}},
		} {
			resp := h.do(t, tc.method, tc.path, tc.body, "Authorization", "Bearer tok")
			if resp.StatusCode != http.StatusBadGateway {
				t.Errorf("%s: expected 502, got %d", tc.path, resp.StatusCode)
			}
			if body := decode[errorBody](t, resp); body.Error != "Player command failed: Restriction violated" {
				t.Errorf("%s: expected upstream message, got %q", tc.path, body.Error)
			}
		}
	})

	t.Run("Playback", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodPost, "/api/play", PlayRequest{URIs: []string{"spotify:track:t1"}, DeviceID: "d1"}, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if play, _ := h.service.LastPlay(); play.DeviceID != "d1" || len(play.URIs) != 1 {
			t.Errorf("unexpected play request %+v", play)
		}

		resp = h.do(t, http.MethodPost, "/api/pause", PauseRequest{DeviceID: "d1"}, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}

		resp = h.do(t, http.MethodPut, "/api/volume", VolumeRequest{Volume: 35, DeviceID: "d1"}, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if _, vol := h.service.LastPlay(); vol != 35 {
			t.Errorf("expected volume 35, got %d", vol)
		}

		t.Run("Wrong Method", func(t *testing.T) {
			resp := h.do(t, http.MethodGet, "/api/play", nil, "Authorization", "Bearer tok")
			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", resp.StatusCode)
			}
		})

		t.Run("Malformed Body", func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, h.server.URL+"/api/play", strings.NewReader("{"))
			req.Header.Set("Authorization", "Bearer tok")
			resp, err := h.client.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	})

	t.Run("Currently Playing", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/api/currently-playing", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204 when idle, got %d", resp.StatusCode)
		}

		h.service.current = &track
		resp = h.do(t, http.MethodGet, "/api/currently-playing", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Player State", func(t *testing.T) {
		h := newHarness(t)
		h.service.state = &models.PlayerState{
			Snapshot: models.PlaybackSnapshot{Track: &track, Paused: true, DisallowPausingReasons: []string{models.AlreadyPausedReason}},
			Device:   &models.Device{ID: "d1"},
		}

		resp := h.do(t, http.MethodGet, "/api/player-state", nil, "Authorization", "Bearer tok")
		body := decode[models.PlayerState](t, resp)
		if !body.Snapshot.Ended() || body.Device.ID != "d1" {
			t.Errorf("unexpected state %+v", body)
		}
	})

	t.Run("Search", func(t *testing.T) {
		h := newHarness(t)
		h.service.tracks = []models.Track{track}

		resp := h.do(t, http.MethodGet, "/api/search?query=song", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if calls := h.service.Calls(); calls[0] != "search:song" {
			t.Errorf("unexpected call %v", calls)
		}

		resp = h.do(t, http.MethodGet, "/api/search", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 without query, got %d", resp.StatusCode)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		h := newHarness(t)
		h.service.playlist = &models.Playlist{ID: "p1", Name: "Findtune"}

		resp := h.do(t, http.MethodPost, "/api/create-playlist", PlaylistRequest{}, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body := decode[models.Playlist](t, resp); body.ID != "p1" {
			t.Errorf("unexpected playlist %+v", body)
		}

		resp = h.do(t, http.MethodPost, "/api/add-track?playlistId=p1&uri=spotify:track:t1", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}

		resp = h.do(t, http.MethodPost, "/api/add-track?playlistId=p1", nil, "Authorization", "Bearer tok")
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403 without uri, got %d", resp.StatusCode)
		}

		want := []string{"ensure-playlist:Findtune", "add-tracks:p1:spotify:track:t1"}
		if calls := h.service.Calls(); strings.Join(calls, "|") != strings.Join(want, "|") {
			t.Errorf("expected calls %v, got %v", want, calls)
		}
	})

	t.Run("CORS Preflight", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodOptions, "/api/play", nil, "Origin", "http://localhost:3000")
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Error("expected allowed origin header")
		}
		if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("expected credentials to be allowed")
		}
	})

	t.Run("Healthz", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(t, http.MethodGet, "/healthz", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})
}

func TestLandingURL(t *testing.T) {
	tests := []struct {
		domain, code, want string
	}{
		{"http://localhost:3000", "", "http://localhost:3000/"},
		{"http://localhost:3000/", StateMismatchError, "http://localhost:3000/?error=state_mismatch"},
		{"https://findtune.app/home", StateMismatchError, "https://findtune.app/home?error=state_mismatch"},
		{"", "", "/"},
	}

	for _, tt := range tests {
		if got := landingURL(tt.domain, tt.code); got != tt.want {
			t.Errorf("landingURL(%q, %q) = %q, want %q", tt.domain, tt.code, got, tt.want)
		}
	}
}
