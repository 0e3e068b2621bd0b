// package models defines the data model for the findtune service
package models

import (
	"slices"
	"strings"
	"time"
)

// AlreadyPausedReason is the pause restriction reported by a player that is already at rest.
const AlreadyPausedReason = "already_paused"

// Track represents a playable track.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	DurationMs int      `json:"durationMs,omitempty"`
}

// Artist joins the artist names for display.
func (t Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// PlaybackSnapshot is the state payload delivered by the remote player.
type PlaybackSnapshot struct {
	Track                  *Track   `json:"track,omitempty"`
	Loading                bool     `json:"loading"`
	Paused                 bool     `json:"paused"`
	PositionMs             int      `json:"positionMs"`
	DisallowPausingReasons []string `json:"disallowPausingReasons,omitempty"`
}

// TrackURI returns the URI of the current track, empty when nothing is loaded.
func (s PlaybackSnapshot) TrackURI() string {
	if s.Track == nil {
		return ""
	}
	return s.Track.URI
}

// Ended reports whether the snapshot describes a track that played to completion:
// not loading, paused at position zero, and pausing disallowed because the player is already at rest.
func (s PlaybackSnapshot) Ended() bool {
	return !s.Loading &&
		s.Paused &&
		s.PositionMs == 0 &&
		slices.Contains(s.DisallowPausingReasons, AlreadyPausedReason)
}

// Device is a playback output device.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
	Volume int    `json:"volume"`
}

// PlayerState is a snapshot together with the device it was read from.
type PlayerState struct {
	Snapshot PlaybackSnapshot `json:"snapshot"`
	Device   *Device          `json:"device,omitempty"`
}

// Profile is the authenticated user's profile.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Playlist is playlist metadata.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Credentials holds the tokens obtained for one session.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
}

// ExpiresIn returns the whole seconds left before the access token expires, never negative.
func (c Credentials) ExpiresIn(now time.Time) int {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	secs := int(c.ExpiresAt.Sub(now) / time.Second)
	return max(secs, 0)
}

// Clear resets all token fields.
func (c *Credentials) Clear() {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.ExpiresAt = time.Time{}
}

// PendingLogin is the state of one login attempt between redirect and callback.
type PendingLogin struct {
	State     string
	Verifier  string
	CreatedAt time.Time
	// CLI marks an attempt started by the terminal client, whose callback arrives without the session cookie.
	CLI bool
}

// Expired reports whether the attempt is older than ttl.
func (l PendingLogin) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(l.CreatedAt) > ttl
}

// Session is the server-side session record.
type Session struct {
	ID          string
	Credentials Credentials
	Login       *PendingLogin
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// NewSession creates a session with the given id that lives for maxAge.
func NewSession(id string, now time.Time, maxAge time.Duration) *Session {
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(maxAge)}
}

// Authenticated reports whether the session holds an access token.
func (s *Session) Authenticated() bool {
	return s.Credentials.AccessToken != ""
}

// Expired reports whether the session outlived its max age.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
