package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/auth"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
)

// StateMismatchError is the error indicator added to the landing page URL when a callback is rejected.
const StateMismatchError = "state_mismatch"

// CLIClient is the client query value the terminal client sends to /api/login.
const CLIClient = "cli"

// TokenResponse is the body of the access-token and refresh-token endpoints.
//
// The refresh token never leaves the server.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// AuthHandler serves the login, callback, logout and token endpoints.
// Implements the Handler interface for registration with a Router.
type AuthHandler struct {
	auth    *auth.Controller
	cookies *sessions.CookieCodec
	clock   shared.Clock
	logger  *log.Logger
	domain  string
	maxAge  time.Duration
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/api/login", "/api/callback", "/api/logout", "/api/access-token", "/api/refresh-token"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	switch r.URL.Path {
	case "/api/login":
		h.login(w, r)
	case "/api/callback":
		h.callback(w, r)
	case "/api/logout":
		h.logout(w, r)
	case "/api/access-token":
		h.accessToken(w, r)
	case "/api/refresh-token":
		h.refreshToken(w, r)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	}
}

// login starts a login attempt, creating the session (and its cookie) when the request has none.
//
// The terminal client passes client=cli so its callback, which reaches the server from a browser without
// the cookie, can be matched by state.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	isNew := s == nil
	if isNew {
		s = models.NewSession(shared.GenerateID(), h.clock.Now(), h.maxAge)
	}

	begin := h.auth.BeginLogin
	if r.URL.Query().Get("client") == CLIClient {
		begin = h.auth.BeginCLILogin
	}

	redirectURL, err := begin(r.Context(), s)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if isNew {
		if err := h.cookies.Write(w, s.ID); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// callback completes a login attempt and sends the browser back to the landing page.
//
// A callback without a session cookie is matched to its session by state, which only succeeds for
// logins started by the CLI. The browser then gets a status page instead of a redirect.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	s := currentSession(r)
	byState := false
	if s == nil {
		found, err := h.auth.Resolve(r.Context(), state)
		if err != nil {
			h.logger.Warn("callback without a matching login", "error", err)
			http.Redirect(w, r, landingURL(h.domain, StateMismatchError), http.StatusFound)
			return
		}
		s, byState = found, true
	}

	if reason := q.Get("error"); reason != "" {
		h.logger.Warn("authorization denied", "session", s.ID, "reason", reason)
	}

	err := h.auth.CompleteLogin(r.Context(), s, code, state)
	switch {
	case errors.Is(err, shared.ErrStateMismatch):
		http.Redirect(w, r, landingURL(h.domain, StateMismatchError), http.StatusFound)
	case byState:
		writeStatusPage(w, err)
	default:
		http.Redirect(w, r, landingURL(h.domain, ""), http.StatusFound)
	}
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if s := currentSession(r); s != nil {
		if err := h.auth.Logout(r.Context(), s); err != nil {
			h.logger.Error("logout failed", "session", s.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Logout failed"})
			return
		}
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, messageBody{Message: "Logout successful"})
}

func (h *AuthHandler) accessToken(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if s == nil || !s.Authenticated() {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: s.Credentials.AccessToken,
		ExpiresIn:   s.Credentials.ExpiresIn(h.clock.Now()),
	})
}

func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if s == nil || s.Credentials.RefreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized - No refresh token"})
		return
	}

	creds, err := h.auth.Refresh(r.Context(), s)
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	case err != nil:
		h.logger.Error("refresh failed", "session", s.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to refresh access token"})
	default:
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: creds.AccessToken, ExpiresIn: creds.ExpiresIn(h.clock.Now())})
	}
}

// landingURL returns domain with an optional error indicator in the query.
func landingURL(domain, errCode string) string {
	u, err := url.Parse(domain)
	if err != nil || domain == "" {
		u = &url.URL{Path: "/"}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if errCode != "" {
		q := u.Query()
		q.Set("error", errCode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func writeStatusPage(w http.ResponseWriter, err error) {
	title, message, color, status := "Authorization Successful", "You can close this window and return to the terminal.", "#1DB954", http.StatusOK
	if err != nil {
		title, message, color, status = "Authorization Failed", "Run the login command again to retry.", "#E22134", http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: %[3]s; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%[1]s</h1>
        <p>%[2]s</p>
    </div>
</body>
</html>
`, title, message, color)
}
