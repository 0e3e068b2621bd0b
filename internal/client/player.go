package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

// Player sends playback commands for a device and reads its state.
type Player struct {
	client *Client
}

// NewPlayer creates a [Player] that issues requests through c.
func NewPlayer(c *Client) *Player {
	return &Player{client: c}
}

type playBody struct {
	URIs     []string `json:"uris,omitempty"`
	DeviceID string   `json:"deviceId"`
}

type pauseBody struct {
	DeviceID string `json:"deviceId"`
}

type volumeBody struct {
	Volume   int    `json:"volume"`
	DeviceID string `json:"deviceId"`
}

// Play starts uris on deviceID, or resumes when uris is empty.
func (p *Player) Play(ctx context.Context, deviceID string, uris []string) error {
	_, err := p.client.doJSON(ctx, http.MethodPost, "/api/play", nil, playBody{URIs: uris, DeviceID: deviceID}, nil)
	return err
}

// Pause pauses deviceID.
func (p *Player) Pause(ctx context.Context, deviceID string) error {
	_, err := p.client.doJSON(ctx, http.MethodPost, "/api/pause", nil, pauseBody{DeviceID: deviceID}, nil)
	return err
}

// SetVolume sets deviceID's volume in percent.
func (p *Player) SetVolume(ctx context.Context, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d out of range", shared.ErrInvalidInput, percent)
	}
	_, err := p.client.doJSON(ctx, http.MethodPut, "/api/volume", nil, volumeBody{Volume: percent, DeviceID: deviceID}, nil)
	return err
}

// State returns the current playback snapshot and its device. Nil when nothing is active.
func (p *Player) State(ctx context.Context) (*models.PlayerState, error) {
	var state models.PlayerState
	ok, err := p.client.doJSON(ctx, http.MethodGet, "/api/player-state", nil, nil, &state)
	if err != nil || !ok {
		return nil, err
	}
	return &state, nil
}

// Devices lists the available output devices.
func (p *Player) Devices(ctx context.Context) ([]models.Device, error) {
	var body struct {
		Devices []models.Device `json:"devices"`
	}
	if _, err := p.client.doJSON(ctx, http.MethodGet, "/api/devices", nil, nil, &body); err != nil {
		return nil, err
	}
	return body.Devices, nil
}

// CurrentlyPlaying returns the playing track, nil when idle.
func (p *Player) CurrentlyPlaying(ctx context.Context) (*models.Track, error) {
	var track models.Track
	ok, err := p.client.doJSON(ctx, http.MethodGet, "/api/currently-playing", nil, nil, &track)
	if err != nil || !ok {
		return nil, err
	}
	return &track, nil
}

// Library reads the user's profile, searches tracks and saves liked tracks.
type Library struct {
	client *Client
}

// NewLibrary creates a [Library] that issues requests through c.
func NewLibrary(c *Client) *Library {
	return &Library{client: c}
}

// Profile returns the logged in user's profile.
func (l *Library) Profile(ctx context.Context) (*models.Profile, error) {
	var profile models.Profile
	if _, err := l.client.doJSON(ctx, http.MethodGet, "/api/spotify-profile", nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Search finds tracks matching query.
func (l *Library) Search(ctx context.Context, query string) ([]models.Track, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	var body struct {
		Tracks []models.Track `json:"tracks"`
	}
	if _, err := l.client.doJSON(ctx, http.MethodGet, "/api/search", url.Values{"q": {query}}, nil, &body); err != nil {
		return nil, err
	}
	return body.Tracks, nil
}

// SaveLiked adds tracks to the playlist called name, creating it when the user has none by that name.
func (l *Library) SaveLiked(ctx context.Context, name string, tracks []models.Track) (*models.Playlist, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no liked songs to save", shared.ErrInvalidInput)
	}

	var playlist models.Playlist
	if _, err := l.client.doJSON(ctx, http.MethodPost, "/api/create-playlist", nil, map[string]string{"name": name}, &playlist); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	for _, t := range tracks {
		query := url.Values{"playlistId": {playlist.ID}, "uri": {t.URI}}
		if _, err := l.client.doJSON(ctx, http.MethodPost, "/api/add-track", query, nil, nil); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", t.Name, err)
		}
	}
	return &playlist, nil
}
