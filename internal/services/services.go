// package services defines interface Service for interacting with the upstream music API
package services

import (
	"context"

	"github.com/desertthunder/findtune/internal/models"
)

// Service is the upstream music API used by the HTTP server.
//
// Every method acts with the access token it is given. Errors are [shared.ErrUnauthorized] for rejected
// tokens, [*shared.RateLimitError] for throttled calls and [*shared.UpstreamError] for other failures.
type Service interface {
	// Profile retrieves the profile of the user the token belongs to.
	Profile(ctx context.Context, token string) (*models.Profile, error)

	// Recommendations returns tracks seeded by one to five track IDs.
	Recommendations(ctx context.Context, token string, seeds []string) ([]models.Track, error)

	// Search finds tracks matching a free text query.
	Search(ctx context.Context, token, query string) ([]models.Track, error)

	// CurrentlyPlaying returns the loaded track, or nil when nothing is playing.
	CurrentlyPlaying(ctx context.Context, token string) (*models.Track, error)

	// PlayerState reads the playback snapshot and the active device.
	PlayerState(ctx context.Context, token string) (*models.PlayerState, error)

	// Devices lists available playback devices.
	Devices(ctx context.Context, token string) ([]models.Device, error)

	Play(ctx context.Context, token, deviceID string, uris []string) error
	Pause(ctx context.Context, token, deviceID string) error
	SetVolume(ctx context.Context, token, deviceID string, percent int) error

	// EnsurePlaylist finds the user's playlist by name or creates it.
	EnsurePlaylist(ctx context.Context, token, name string) (*models.Playlist, error)

	// AddTracks appends tracks to a playlist.
	AddTracks(ctx context.Context, token, playlistID string, tracks []string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}
