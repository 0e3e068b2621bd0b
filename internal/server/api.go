package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/services"
	"github.com/desertthunder/findtune/internal/shared"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// PlayRequest is the body of POST /api/play. Without URIs playback resumes.
type PlayRequest struct {
	URIs     []string `json:"uris,omitempty"`
	DeviceID string   `json:"deviceId"`
}

// PauseRequest is the body of POST /api/pause.
type PauseRequest struct {
	DeviceID string `json:"deviceId"`
}

// VolumeRequest is the body of PUT /api/volume.
type VolumeRequest struct {
	Volume   int    `json:"volume"`
	DeviceID string `json:"deviceId"`
}

// PlaylistRequest is the body of POST /api/create-playlist.
type PlaylistRequest struct {
	Name string `json:"name"`
}

// TracksResponse wraps track lists returned by search and recommendations.
type TracksResponse struct {
	Tracks []models.Track `json:"tracks"`
}

// DevicesResponse wraps the device list.
type DevicesResponse struct {
	Devices []models.Device `json:"devices"`
}

// APIHandler serves the endpoints that call the upstream service with the caller's access token.
type APIHandler struct {
	service  services.Service
	clock    shared.Clock
	logger   *log.Logger
	playlist string
}

// Register adds every endpoint to router.
func (h *APIHandler) Register(router *BasicRouter) {
	router.HandleFunc(http.MethodPost, "/api/play", requireToken(h.play))
	router.HandleFunc(http.MethodPost, "/api/pause", requireToken(h.pause))
	router.HandleFunc(http.MethodPut, "/api/volume", requireToken(h.volume))
	router.HandleFunc(http.MethodGet, "/api/recommendations", requireToken(h.recommendations))
	router.HandleFunc(http.MethodGet, "/api/spotify-profile", requireToken(h.profile))
	router.HandleFunc(http.MethodGet, "/api/search", requireToken(h.search))
	router.HandleFunc(http.MethodGet, "/api/currently-playing", requireToken(h.currentlyPlaying))
	router.HandleFunc(http.MethodGet, "/api/player-state", requireToken(h.playerState))
	router.HandleFunc(http.MethodGet, "/api/devices", requireToken(h.devices))
	router.HandleFunc(http.MethodPost, "/api/create-playlist", requireToken(h.createPlaylist))
	router.HandleFunc(http.MethodPost, "/api/add-track", requireToken(h.addTrack))
}

func (h *APIHandler) play(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.Play(r.Context(), accessToken(r), req.DeviceID, req.URIs); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Playback started successfully"})
}

func (h *APIHandler) pause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.Pause(r.Context(), accessToken(r), req.DeviceID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Playback paused successfully"})
}

func (h *APIHandler) volume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.SetVolume(r.Context(), accessToken(r), req.DeviceID, req.Volume); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Volume set successfully"})
}

func (h *APIHandler) recommendations(w http.ResponseWriter, r *http.Request) {
	seeds := splitSeeds(r.URL.Query().Get("seed_tracks"))
	if len(seeds) == 0 {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Access token or seed tracks are missing"})
		return
	}

	tracks, err := h.service.Recommendations(r.Context(), accessToken(r), seeds)
	if err != nil {
		var rle *shared.RateLimitError
		if errors.As(err, &rle) {
			h.logger.Warn("rate limit exceeded", "retry_after", rle.RetryAfter)
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TracksResponse{Tracks: tracks})
}

func (h *APIHandler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), accessToken(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// search accepts the query as q or query.
func (h *APIHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		query = q.Get("query")
	}
	if strings.TrimSpace(query) == "" {
		writeError(w, h.logger, fmt.Errorf("%w: q", shared.ErrMissingArgument))
		return
	}

	tracks, err := h.service.Search(r.Context(), accessToken(r), query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TracksResponse{Tracks: tracks})
}

func (h *APIHandler) currentlyPlaying(w http.ResponseWriter, r *http.Request) {
	track, err := h.service.CurrentlyPlaying(r.Context(), accessToken(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if track == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (h *APIHandler) playerState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.PlayerState(r.Context(), accessToken(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.Devices(r.Context(), accessToken(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

// createPlaylist finds the playlist by name or creates it. The name defaults to the configured one.
func (h *APIHandler) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var req PlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Name == "" {
		req.Name = h.playlist
	}

	playlist, err := h.service.EnsurePlaylist(r.Context(), accessToken(r), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// addTrack takes playlistId and uri from the query string.
func (h *APIHandler) addTrack(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	playlistID, uri := q.Get("playlistId"), q.Get("uri")
	if playlistID == "" || uri == "" {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Missing required parameters or access token"})
		return
	}

	if err := h.service.AddTracks(r.Context(), accessToken(r), playlistID, []string{uri}); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Track added successfully"})
}

// decodeBody reads an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrInvalidInput, err)
}

func splitSeeds(raw string) []string {
	var seeds []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	return seeds
}
