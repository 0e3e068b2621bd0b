package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
	tu "github.com/desertthunder/findtune/internal/testing"
	"github.com/google/go-cmp/cmp"
)

const trackJSON = `{
	"id": "t1",
	"uri": "spotify:track:t1",
	"name": "Song",
	"duration_ms": 215000,
	"artists": [{"name": "First"}, {"name": "Second"}],
	"album": {"name": "Album", "images": [{"url": "http://img/large"}, {"url": "http://img/small"}]}
}`

var wantTrack = models.Track{
	ID:         "t1",
	URI:        "spotify:track:t1",
	Name:       "Song",
	Artists:    []string{"First", "Second"},
	Album:      "Album",
	ImageURL:   "http://img/large",
	DurationMs: 215000,
}

// newTestService starts a Web API stand-in serving mux under /v1/.
func newTestService(t *testing.T, mux *http.ServeMux) (*SpotifyService, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(http.StripPrefix("/v1", requireBearer(t, mux)))
	t.Cleanup(server.Close)

	srv := NewSpotifyService(SpotifyOptions{
		APIURL:     server.URL + "/v1",
		HTTPClient: server.Client(),
		Clock:      tu.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
	})
	return srv, server
}

func requireBearer(t *testing.T, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("expected bearer token, got %q", got)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestSpotifyService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Defaults", func(t *testing.T) {
			srv := NewSpotifyService(SpotifyOptions{})

			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.apiURL != DefaultAPIURL {
				t.Errorf("expected default api url, got %s", srv.apiURL)
			}
		})

		t.Run("Adds Trailing Slash", func(t *testing.T) {
			srv := NewSpotifyService(SpotifyOptions{APIURL: "http://localhost:9000/v1"})
			if srv.apiURL != "http://localhost:9000/v1/" {
				t.Errorf("expected trailing slash, got %s", srv.apiURL)
			}
		})
	})

	t.Run("Profile", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"id":"user-1","display_name":"User","email":"u@example.com","images":[{"url":"http://avatar"}]}`)
		})
		srv, _ := newTestService(t, mux)

		profile, err := srv.Profile(ctx, "token")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := &models.Profile{ID: "user-1", DisplayName: "User", Email: "u@example.com", ImageURL: "http://avatar"}
		if diff := cmp.Diff(want, profile); diff != "" {
			t.Errorf("profile mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Search", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("q") != "daft punk" || q.Get("type") != "track" || q.Get("limit") != "30" {
				t.Errorf("unexpected query %v", q)
			}
			writeJSON(w, http.StatusOK, `{"tracks":{"items":[`+trackJSON+`],"total":1,"limit":30}}`)
		})
		srv, _ := newTestService(t, mux)

		tracks, err := srv.Search(ctx, "token", "daft punk")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if diff := cmp.Diff([]models.Track{wantTrack}, tracks); diff != "" {
			t.Errorf("tracks mismatch (-want +got):\n%s", diff)
		}

		t.Run("Empty Query", func(t *testing.T) {
			if _, err := srv.Search(ctx, "token", "  "); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Recommendations", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /recommendations", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("seed_tracks") != "a,b" {
					t.Errorf("expected seed_tracks a,b, got %s", q.Get("seed_tracks"))
				}
				if q.Get("limit") != "1" {
					t.Errorf("expected limit 1, got %s", q.Get("limit"))
				}
				writeJSON(w, http.StatusOK, `{"seeds":[],"tracks":[`+trackJSON+`]}`)
			})
			srv, _ := newTestService(t, mux)

			tracks, err := srv.Recommendations(ctx, "token", []string{"spotify:track:a", "b"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if diff := cmp.Diff([]models.Track{wantTrack}, tracks); diff != "" {
				t.Errorf("tracks mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("Seed Bounds", func(t *testing.T) {
			srv := NewSpotifyService(SpotifyOptions{})

			if _, err := srv.Recommendations(ctx, "token", nil); !errors.Is(err, shared.ErrMissingSeeds) {
				t.Errorf("expected ErrMissingSeeds, got %v", err)
			}
			if _, err := srv.Recommendations(ctx, "token", []string{"1", "2", "3", "4", "5", "6"}); !errors.Is(err, shared.ErrSeedLimit) {
				t.Errorf("expected ErrSeedLimit, got %v", err)
			}
		})

		t.Run("Rate Limited", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /recommendations", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "7")
				writeJSON(w, http.StatusTooManyRequests, `{"error":{"status":429,"message":"API rate limit exceeded"}}`)
			})
			srv, _ := newTestService(t, mux)

			_, err := srv.Recommendations(ctx, "token", []string{"a"})

			var rle *shared.RateLimitError
			if !errors.As(err, &rle) {
				t.Fatalf("expected RateLimitError, got %v", err)
			}
			if rle.RetryAfter != 7*time.Second {
				t.Errorf("expected retry after 7s, got %v", rle.RetryAfter)
			}
		})

		t.Run("Unauthorized", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /recommendations", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, `{"error":{"status":401,"message":"The access token expired"}}`)
			})
			srv, _ := newTestService(t, mux)

			if _, err := srv.Recommendations(ctx, "token", []string{"a"}); !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	})

	t.Run("PlayerState", func(t *testing.T) {
		t.Run("Paused At Start", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/player", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{
					"device": {"id": "d1", "is_active": true, "name": "Speaker", "type": "Computer", "volume_percent": 40},
					"progress_ms": 0,
					"is_playing": false,
					"item": `+trackJSON+`
				}`)
			})
			srv, _ := newTestService(t, mux)

			state, err := srv.PlayerState(ctx, "token")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			track := wantTrack
			want := &models.PlayerState{
				Snapshot: models.PlaybackSnapshot{
					Track:                  &track,
					Paused:                 true,
					DisallowPausingReasons: []string{models.AlreadyPausedReason},
				},
				Device: &models.Device{ID: "d1", Name: "Speaker", Type: "Computer", Active: true, Volume: 40},
			}
			if diff := cmp.Diff(want, state); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
			if !state.Snapshot.Ended() {
				t.Error("expected paused-at-zero snapshot to read as ended")
			}
		})

		t.Run("Playing", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/player", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"progress_ms": 1200, "is_playing": true, "item": `+trackJSON+`}`)
			})
			srv, _ := newTestService(t, mux)

			state, err := srv.PlayerState(ctx, "token")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if state.Snapshot.Paused || state.Snapshot.PositionMs != 1200 || state.Snapshot.Ended() {
				t.Errorf("unexpected snapshot %+v", state.Snapshot)
			}
			if state.Device != nil {
				t.Errorf("expected no device, got %+v", state.Device)
			}
		})
	})

	t.Run("CurrentlyPlaying", func(t *testing.T) {
		t.Run("Idle", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			srv, _ := newTestService(t, mux)

			track, err := srv.CurrentlyPlaying(ctx, "token")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if track != nil {
				t.Errorf("expected no track, got %+v", track)
			}
		})

		t.Run("Playing", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"is_playing": true, "progress_ms": 10, "item": `+trackJSON+`}`)
			})
			srv, _ := newTestService(t, mux)

			track, err := srv.CurrentlyPlaying(ctx, "token")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if diff := cmp.Diff(&wantTrack, track); diff != "" {
				t.Errorf("track mismatch (-want +got):\n%s", diff)
			}
		})
	})

	t.Run("Devices", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"devices":[{"id":"d1","is_active":false,"name":"Phone","type":"Smartphone","volume_percent":70}]}`)
		})
		srv, _ := newTestService(t, mux)

		devices, err := srv.Devices(ctx, "token")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []models.Device{{ID: "d1", Name: "Phone", Type: "Smartphone", Volume: 70}}
		if diff := cmp.Diff(want, devices); diff != "" {
			t.Errorf("devices mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Playback Commands", func(t *testing.T) {
		var played struct {
			URIs []string `json:"uris"`
		}
		var calls []string

		mux := http.NewServeMux()
		mux.HandleFunc("PUT /me/player/play", func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "play:"+r.URL.Query().Get("device_id"))
			json.NewDecoder(r.Body).Decode(&played)
			w.WriteHeader(http.StatusNoContent)
		})
		mux.HandleFunc("PUT /me/player/pause", func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "pause:"+r.URL.Query().Get("device_id"))
			w.WriteHeader(http.StatusNoContent)
		})
		mux.HandleFunc("PUT /me/player/volume", func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "volume:"+r.URL.Query().Get("volume_percent")+":"+r.URL.Query().Get("device_id"))
			w.WriteHeader(http.StatusNoContent)
		})
		srv, _ := newTestService(t, mux)

		if err := srv.Play(ctx, "token", "d1", []string{"spotify:track:t1"}); err != nil {
			t.Fatalf("play failed: %v", err)
		}
		if err := srv.Pause(ctx, "token", "d1"); err != nil {
			t.Fatalf("pause failed: %v", err)
		}
		if err := srv.SetVolume(ctx, "token", "d1", 55); err != nil {
			t.Fatalf("volume failed: %v", err)
		}

		if diff := cmp.Diff([]string{"play:d1", "pause:d1", "volume:55:d1"}, calls); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"spotify:track:t1"}, played.URIs); diff != "" {
			t.Errorf("uris mismatch (-want +got):\n%s", diff)
		}

		t.Run("Volume Out Of Range", func(t *testing.T) {
			if err := srv.SetVolume(ctx, "token", "d1", 101); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Error Mapping", func(t *testing.T) {
		t.Run("Upstream Status", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("PUT /me/player/play", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusNotFound, `{"error":{"status":404,"message":"Device not found"}}`)
			})
			srv, _ := newTestService(t, mux)

			err := srv.Play(ctx, "token", "gone", nil)

			var ue *shared.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if ue.Status != http.StatusNotFound {
				t.Errorf("expected status 404, got %d", ue.Status)
			}
			if !strings.Contains(ue.Message, "Device not found") {
				t.Errorf("expected upstream message, got %q", ue.Message)
			}
		})

		t.Run("Unauthorized", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, `{"error":{"status":401,"message":"Invalid access token"}}`)
			})
			srv, _ := newTestService(t, mux)

			if _, err := srv.Profile(ctx, "token"); !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})

		t.Run("Rate Limited", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/player/devices", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				writeJSON(w, http.StatusTooManyRequests, `{"error":{"status":429,"message":"slow down"}}`)
			})
			srv, _ := newTestService(t, mux)

			_, err := srv.Devices(ctx, "token")

			var rle *shared.RateLimitError
			if !errors.As(err, &rle) {
				t.Fatalf("expected RateLimitError, got %v", err)
			}
			if rle.RetryAfter != 3*time.Second {
				t.Errorf("expected retry after 3s, got %v", rle.RetryAfter)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			srv := NewSpotifyService(SpotifyOptions{APIURL: "http://api.invalid/v1/", HTTPClient: client})

			if _, err := srv.Devices(ctx, "token"); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("EnsurePlaylist", func(t *testing.T) {
		t.Run("Existing", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/playlists", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"items":[{"id":"p0","name":"Other","uri":"spotify:playlist:p0"},{"id":"p1","name":"Findtune","uri":"spotify:playlist:p1"}],"total":2}`)
			})
			mux.HandleFunc("POST /users/{id}/playlists", func(w http.ResponseWriter, r *http.Request) {
				t.Error("expected no playlist to be created")
			})
			srv, _ := newTestService(t, mux)

			playlist, err := srv.EnsurePlaylist(ctx, "token", "Findtune")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if playlist.ID != "p1" {
				t.Errorf("expected p1, got %s", playlist.ID)
			}
		})

		t.Run("Created", func(t *testing.T) {
			var body map[string]any

			mux := http.NewServeMux()
			mux.HandleFunc("GET /me/playlists", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"items":[],"total":0}`)
			})
			mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"id":"user-1"}`)
			})
			mux.HandleFunc("POST /users/{id}/playlists", func(w http.ResponseWriter, r *http.Request) {
				if r.PathValue("id") != "user-1" {
					t.Errorf("expected user-1, got %s", r.PathValue("id"))
				}
				json.NewDecoder(r.Body).Decode(&body)
				writeJSON(w, http.StatusCreated, `{"id":"p9","name":"Findtune","uri":"spotify:playlist:p9"}`)
			})
			srv, _ := newTestService(t, mux)

			playlist, err := srv.EnsurePlaylist(ctx, "token", "Findtune")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if playlist.ID != "p9" || playlist.URI != "spotify:playlist:p9" {
				t.Errorf("unexpected playlist %+v", playlist)
			}
			if body["name"] != "Findtune" || body["public"] != true {
				t.Errorf("unexpected create body %v", body)
			}
		})
	})

	t.Run("AddTracks", func(t *testing.T) {
		var body struct {
			URIs []string `json:"uris"`
		}

		mux := http.NewServeMux()
		mux.HandleFunc("POST /playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "p1" {
				t.Errorf("expected playlist p1, got %s", r.PathValue("id"))
			}
			json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusCreated, `{"snapshot_id":"snap"}`)
		})
		srv, _ := newTestService(t, mux)

		if err := srv.AddTracks(ctx, "token", "p1", []string{"spotify:track:t1"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if diff := cmp.Diff([]string{"spotify:track:t1"}, body.URIs); diff != "" {
			t.Errorf("uris mismatch (-want +got):\n%s", diff)
		}

		t.Run("Missing Arguments", func(t *testing.T) {
			if err := srv.AddTracks(ctx, "token", "", nil); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("TrackID", func(t *testing.T) {
		tests := map[string]string{
			"spotify:track:abc": "abc",
			"abc":               "abc",
			"":                  "",
		}
		for in, want := range tests {
			if got := TrackID(in); got != want {
				t.Errorf("TrackID(%q) = %q, want %q", in, got, want)
			}
		}
	})
}
