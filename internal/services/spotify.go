// Spotify Web API implementation of [Service]
//
// Catalog, player and playlist calls go through github.com/zmb3/spotify/v2; recommendations use [APIService]
// so the Retry-After header of a 429 reaches the caller.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// SearchLimit is the number of tracks returned by [SpotifyService.Search].
	SearchLimit = 30
	// RecommendationLimit is the number of tracks requested per recommendation call.
	RecommendationLimit = 1

	playlistPageSize = 50
	playlistMaxPages = 20
	playlistDesc     = "Songs liked while listening with findtune"
)

var _ Service = (*SpotifyService)(nil)

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	APIURL     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter // nil means unlimited
	Clock      shared.Clock
	Logger     *log.Logger
}

// SpotifyService implements [Service] for the Spotify Web API.
//
// It holds no credentials: every call takes the access token to act with.
type SpotifyService struct {
	apiURL     string
	httpClient *http.Client
	api        *APIService
	limiter    *rate.Limiter
	clock      shared.Clock
	logger     *log.Logger
}

// NewSpotifyService creates a new Spotify service.
func NewSpotifyService(opts SpotifyOptions) *SpotifyService {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if !strings.HasSuffix(opts.APIURL, "/") {
		opts.APIURL += "/"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SpotifyService{
		apiURL:     opts.APIURL,
		httpClient: opts.HTTPClient,
		api:        NewAPIService(opts.APIURL, opts.HTTPClient),
		limiter:    opts.Limiter,
		clock:      opts.Clock,
		logger:     shared.WithLogger(opts.Logger, "service", "spotify"),
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// statusRecorder remembers the status and Retry-After of the last failed response seen by one client.
type statusRecorder struct {
	base       http.RoundTripper
	mu         sync.Mutex
	status     int
	retryAfter string
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err == nil && resp.StatusCode >= 300 {
		r.mu.Lock()
		r.status = resp.StatusCode
		r.retryAfter = resp.Header.Get("Retry-After")
		r.mu.Unlock()
	}
	return resp, err
}

// client builds a Web API client acting with token.
func (s *SpotifyService) client(token string) (*spotify.Client, *statusRecorder) {
	base := s.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rec := &statusRecorder{base: base}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   rec,
		},
		Timeout: s.httpClient.Timeout,
	}
	return spotify.New(httpClient, spotify.WithBaseURL(s.apiURL)), rec
}

func (s *SpotifyService) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRateLimited, err)
	}
	return nil
}

// mapError translates a Web API client error into the shared error taxonomy.
func (s *SpotifyService) mapError(ctx context.Context, err error, rec *statusRecorder) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rec.mu.Lock()
	status, retryAfter := rec.status, rec.retryAfter
	rec.mu.Unlock()

	message := err.Error()
	var se spotify.Error
	var sp *spotify.Error
	switch {
	case errors.As(err, &se):
		message = se.Message
		if se.Status != 0 {
			status = se.Status
		}
	case errors.As(err, &sp):
		message = sp.Message
		if sp.Status != 0 {
			status = sp.Status
		}
	}

	switch {
	case status == 0:
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrUnauthorized, message)
	case status == http.StatusTooManyRequests:
		return &shared.RateLimitError{RetryAfter: shared.ParseRetryAfter(retryAfter, s.clock.Now())}
	default:
		return &shared.UpstreamError{Status: status, Message: message}
	}
}

// Profile retrieves the profile of the user token belongs to.
func (s *SpotifyService) Profile(ctx context.Context, token string) (*models.Profile, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	c, rec := s.client(token)
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}

	profile := &models.Profile{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}
	if len(user.Images) > 0 {
		profile.ImageURL = user.Images[0].URL
	}
	return profile, nil
}

// Recommendations returns tracks seeded by up to [shared.MaxSeeds] track IDs or URIs.
func (s *SpotifyService) Recommendations(ctx context.Context, token string, seeds []string) ([]models.Track, error) {
	switch {
	case len(seeds) == 0:
		return nil, shared.ErrMissingSeeds
	case len(seeds) > shared.MaxSeeds:
		return nil, shared.ErrSeedLimit
	}

	ids := make([]string, len(seeds))
	for i, seed := range seeds {
		ids[i] = TrackID(seed)
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("seed_tracks", strings.Join(ids, ","))
	query.Set("limit", fmt.Sprint(RecommendationLimit))

	resp, err := s.api.Get(ctx, "recommendations", token, query)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(s.clock.Now()); err != nil {
		s.logger.Debug("recommendations request failed", "status", resp.StatusCode, "error", err)
		return nil, err
	}

	var body struct {
		Tracks []spotify.FullTrack `json:"tracks"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(body.Tracks))
	for i := range body.Tracks {
		tracks = append(tracks, trackFromFull(&body.Tracks[i]))
	}
	return tracks, nil
}

// Search finds tracks matching query.
func (s *SpotifyService) Search(ctx context.Context, token, query string) ([]models.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	c, rec := s.client(token)
	result, err := c.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(SearchLimit))
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}
	if result.Tracks == nil {
		return []models.Track{}, nil
	}

	tracks := make([]models.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, trackFromFull(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// CurrentlyPlaying returns the loaded track, nil when the player is idle.
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context, token string) (*models.Track, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	c, rec := s.client(token)
	current, err := c.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}
	if current == nil || current.Item == nil {
		return nil, nil
	}

	track := trackFromFull(current.Item)
	return &track, nil
}

// PlayerState reads the playback state of the active device.
//
// A player that is not playing reports pausing as disallowed because it is already paused.
func (s *SpotifyService) PlayerState(ctx context.Context, token string) (*models.PlayerState, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	c, rec := s.client(token)
	state, err := c.PlayerState(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}
	if state == nil {
		return &models.PlayerState{Snapshot: models.PlaybackSnapshot{Paused: true}}, nil
	}

	snapshot := models.PlaybackSnapshot{
		Paused:     !state.Playing,
		PositionMs: int(state.Progress),
	}
	if state.Item != nil {
		track := trackFromFull(state.Item)
		snapshot.Track = &track
	}
	if !state.Playing {
		snapshot.DisallowPausingReasons = []string{models.AlreadyPausedReason}
	}

	out := &models.PlayerState{Snapshot: snapshot}
	if state.Device.ID != "" {
		device := deviceFrom(state.Device)
		out.Device = &device
	}
	return out, nil
}

// Devices lists the user's available playback devices.
func (s *SpotifyService) Devices(ctx context.Context, token string) ([]models.Device, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	c, rec := s.client(token)
	devices, err := c.PlayerDevices(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}

	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceFrom(d))
	}
	return out, nil
}

// Play starts playback of uris on deviceID, or resumes when uris is empty.
func (s *SpotifyService) Play(ctx context.Context, token, deviceID string, uris []string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	opts := playOptions(deviceID)
	for _, uri := range uris {
		opts.URIs = append(opts.URIs, spotify.URI(uri))
	}

	c, rec := s.client(token)
	return s.mapError(ctx, c.PlayOpt(ctx, opts), rec)
}

// Pause pauses playback on deviceID.
func (s *SpotifyService) Pause(ctx context.Context, token, deviceID string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	c, rec := s.client(token)
	return s.mapError(ctx, c.PauseOpt(ctx, playOptions(deviceID)), rec)
}

// SetVolume sets the volume of deviceID to percent (0 to 100).
func (s *SpotifyService) SetVolume(ctx context.Context, token, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d out of range", shared.ErrInvalidInput, percent)
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	c, rec := s.client(token)
	return s.mapError(ctx, c.VolumeOpt(ctx, percent, playOptions(deviceID)), rec)
}

// EnsurePlaylist returns the user's playlist called name, creating a public one when none exists.
func (s *SpotifyService) EnsurePlaylist(ctx context.Context, token, name string) (*models.Playlist, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	c, rec := s.client(token)

	for page := range playlistMaxPages {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}

		playlists, err := c.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageSize), spotify.Offset(page*playlistPageSize))
		if err != nil {
			return nil, s.mapError(ctx, err, rec)
		}

		for _, p := range playlists.Playlists {
			if p.Name == name {
				return &models.Playlist{ID: string(p.ID), Name: p.Name, URI: string(p.URI)}, nil
			}
		}

		if len(playlists.Playlists) < playlistPageSize {
			break
		}
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}

	created, err := c.CreatePlaylistForUser(ctx, user.ID, name, playlistDesc, true, false)
	if err != nil {
		return nil, s.mapError(ctx, err, rec)
	}

	s.logger.Info("created playlist", "name", name, "id", created.ID)
	return &models.Playlist{ID: string(created.ID), Name: created.Name, URI: string(created.URI)}, nil
}

// AddTracks appends tracks, given as IDs or URIs, to playlistID.
func (s *SpotifyService) AddTracks(ctx context.Context, token, playlistID string, tracks []string) error {
	if playlistID == "" || len(tracks) == 0 {
		return fmt.Errorf("%w: playlist id and at least one track are required", shared.ErrInvalidInput)
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	ids := make([]spotify.ID, len(tracks))
	for i, t := range tracks {
		ids[i] = spotify.ID(TrackID(t))
	}

	c, rec := s.client(token)
	_, err := c.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...)
	return s.mapError(ctx, err, rec)
}

// TrackID returns the bare track ID of a "spotify:track:<id>" URI; other values are returned as given.
func TrackID(v string) string {
	if i := strings.LastIndex(v, ":"); i >= 0 {
		return v[i+1:]
	}
	return v
}

func playOptions(deviceID string) *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts.DeviceID = &id
	}
	return opts
}

func trackFromFull(t *spotify.FullTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	track := models.Track{
		ID:         string(t.ID),
		URI:        string(t.URI),
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMs: int(t.Duration),
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

func deviceFrom(d spotify.PlayerDevice) models.Device {
	return models.Device{
		ID:     string(d.ID),
		Name:   d.Name,
		Type:   d.Type,
		Active: d.Active,
		Volume: int(d.Volume),
	}
}
