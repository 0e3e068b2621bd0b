package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// Scopes requested at login.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopeStreaming,
}

// ProfileFetcher looks up the user an access token belongs to.
type ProfileFetcher interface {
	Profile(ctx context.Context, accessToken string) (*models.Profile, error)
}

// NewOAuthConfig builds the [oauth2.Config] for the authorization server.
//
// Client credentials are sent with HTTP Basic authentication.
func NewOAuthConfig(cfg shared.SpotifyConfig) *oauth2.Config {
	authURL, tokenURL := cfg.AuthURL, cfg.TokenURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Options configures a [Controller].
type Options struct {
	OAuth      *oauth2.Config
	Sessions   sessions.Store
	Profiles   ProfileFetcher
	HTTPClient *http.Client // used for token requests, defaults to [http.DefaultClient]
	Clock      shared.Clock
	Logger     *log.Logger
	LoginTTL   time.Duration
}

// Controller drives the PKCE authorization code flow and owns every mutation of session credentials.
type Controller struct {
	oauth      *oauth2.Config
	sessions   sessions.Store
	profiles   ProfileFetcher
	httpClient *http.Client
	clock      shared.Clock
	logger     *log.Logger
	loginTTL   time.Duration
}

// NewController creates a [Controller].
func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.LoginTTL == 0 {
		opts.LoginTTL = 5 * time.Minute
	}

	return &Controller{
		oauth:      opts.OAuth,
		sessions:   opts.Sessions,
		profiles:   opts.Profiles,
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		logger:     shared.WithLogger(opts.Logger, "component", "auth"),
		loginTTL:   opts.LoginTTL,
	}
}

// BeginLogin starts a login attempt for s and returns the authorization URL to redirect to.
//
// A fresh verifier and state are stored on the session, replacing any earlier unfinished attempt.
func (c *Controller) BeginLogin(ctx context.Context, s *models.Session) (string, error) {
	return c.begin(ctx, s, false)
}

// BeginCLILogin is [Controller.BeginLogin] for the terminal client. Only these attempts can be found
// again by [Controller.Resolve].
func (c *Controller) BeginCLILogin(ctx context.Context, s *models.Session) (string, error) {
	return c.begin(ctx, s, true)
}

func (c *Controller) begin(ctx context.Context, s *models.Session, cli bool) (string, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return "", err
	}
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	s.Login = &models.PendingLogin{State: state, Verifier: verifier, CreatedAt: c.clock.Now(), CLI: cli}
	if err := c.sessions.Save(ctx, s); err != nil {
		return "", fmt.Errorf("failed to store login attempt: %w", err)
	}

	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteLogin finishes the attempt started by [Controller.BeginLogin].
//
// Returns [shared.ErrStateMismatch] without contacting the token endpoint when state is empty, the session
// has no pending login, the state differs or the attempt expired. On exchange failure the session's tokens
// are cleared and a wrapped [shared.ErrAuthFailed] is returned. The pending login is consumed either way.
func (c *Controller) CompleteLogin(ctx context.Context, s *models.Session, code, state string) error {
	login := s.Login
	s.Login = nil

	if login == nil || !c.validState(login, state) {
		if login != nil {
			if err := c.sessions.Save(ctx, s); err != nil {
				c.logger.Warn("failed to discard login attempt", "session", s.ID, "error", err)
			}
		}
		return shared.ErrStateMismatch
	}

	if code == "" {
		return c.failLogin(ctx, s, fmt.Errorf("authorization code missing"))
	}

	token, err := c.oauth.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(login.Verifier))
	if err != nil {
		return c.failLogin(ctx, s, err)
	}

	s.Credentials = c.credentials(s.Credentials, token)

	if c.profiles != nil {
		profile, err := c.profiles.Profile(ctx, token.AccessToken)
		if err != nil {
			c.logger.Warn("failed to fetch profile after login", "session", s.ID, "error", err)
		} else {
			s.Credentials.UserID = profile.ID
		}
	}

	if err := c.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	c.logger.Info("login completed", "session", s.ID, "user", s.Credentials.UserID)
	return nil
}

// Refresh exchanges the session's refresh token for a new access token.
//
// Returns [shared.ErrUnauthorized] when no refresh token is held and [shared.ErrRefreshFailed] when the
// exchange fails, in which case the stored credentials are left untouched.
func (c *Controller) Refresh(ctx context.Context, s *models.Session) (models.Credentials, error) {
	if s.Credentials.RefreshToken == "" {
		return models.Credentials{}, fmt.Errorf("%w: no refresh token", shared.ErrUnauthorized)
	}

	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: s.Credentials.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return models.Credentials{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	updated := c.credentials(s.Credentials, token)
	previous := s.Credentials
	s.Credentials = updated

	if err := c.sessions.Save(ctx, s); err != nil {
		s.Credentials = previous
		return models.Credentials{}, fmt.Errorf("%w: failed to store credentials: %v", shared.ErrRefreshFailed, err)
	}

	c.logger.Debug("access token refreshed", "session", s.ID, "rotated", updated.RefreshToken != previous.RefreshToken)
	return updated, nil
}

// Logout destroys the session record.
func (c *Controller) Logout(ctx context.Context, s *models.Session) error {
	if err := c.sessions.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLogoutFailed, err)
	}
	return nil
}

// Resolve finds the session that owns the CLI login attempt identified by state.
//
// Browser attempts are bound to their cookie and never match: a callback carrying their state without
// the cookie fails with [shared.ErrStateMismatch].
func (c *Controller) Resolve(ctx context.Context, state string) (*models.Session, error) {
	s, err := c.sessions.FindByState(ctx, state)
	if err != nil {
		return nil, err
	}
	if s.Login == nil || !s.Login.CLI {
		return nil, fmt.Errorf("%w: login was not started by the terminal client", shared.ErrStateMismatch)
	}
	return s, nil
}

func (c *Controller) validState(login *models.PendingLogin, state string) bool {
	if state == "" || login.Verifier == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(login.State), []byte(state)) != 1 {
		return false
	}
	return !login.Expired(c.clock.Now(), c.loginTTL)
}

func (c *Controller) failLogin(ctx context.Context, s *models.Session, cause error) error {
	s.Credentials.Clear()
	if err := c.sessions.Save(ctx, s); err != nil {
		c.logger.Warn("failed to clear credentials", "session", s.ID, "error", err)
	}
	c.logger.Warn("login failed", "session", s.ID, "error", cause)
	return fmt.Errorf("%w: %v", shared.ErrAuthFailed, cause)
}

// credentials applies token to current. The refresh token is only replaced when a new one was issued.
func (c *Controller) credentials(current models.Credentials, token *oauth2.Token) models.Credentials {
	current.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		current.RefreshToken = token.RefreshToken
	}
	current.ExpiresAt = c.clock.Now().Add(lifetime(token))
	return current
}

func (c *Controller) oauthContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// lifetime reads expires_in from the token response, falling back to [DefaultTokenLifetime].
func lifetime(token *oauth2.Token) time.Duration {
	var secs int64
	switch v := token.Extra("expires_in").(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case string:
		secs, _ = strconv.ParseInt(v, 10, 64)
	}

	if secs <= 0 {
		return DefaultTokenLifetime
	}
	return time.Duration(secs) * time.Second
}
