package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/findtune/internal/client"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/urfave/cli/v3"
)

const loginPollInterval = 2 * time.Second

// Login starts a login through the server, opens the authorization page and waits for the callback.
//
// The session cookie is saved so later commands reuse the login.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	c, err := r.newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	authURL, err := c.Login(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	r.writePlain("Open this URL to log in with Spotify:\n\n  %s\n\n", authURL)
	if !cmd.Bool("no-browser") {
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	r.logger.Info("waiting for login to complete")
	if _, err := c.WaitForLogin(waitCtx, loginPollInterval); err != nil {
		return err
	}

	if err := saveSession(r.sessionPath, r.config.Player.ServerURL, c.Cookies(), r.clock.Now()); err != nil {
		return err
	}
	r.logger.Info("session saved", "path", r.sessionPath)

	profile, err := client.NewLibrary(c).Profile(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch profile", "error", err)
		return r.writePlain("✓ Logged in\n")
	}
	return r.writePlain("✓ Logged in as %s\n", profile.DisplayName)
}

// Logout destroys the server session and removes the saved cookie.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	c, err := r.newClient()
	if err != nil {
		return err
	}

	if err := c.Logout(ctx); err != nil {
		r.logger.Warn("server logout failed", "error", err)
	}
	if err := clearSession(r.sessionPath); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}

type statusReport struct {
	Profile *models.Profile     `json:"profile"`
	Devices []models.Device     `json:"devices"`
	Player  *models.PlayerState `json:"player,omitempty"`
}

// Status prints the logged in user, the available devices and what is playing.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	c, err := r.authorizedClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var report statusReport
	if report.Profile, err = client.NewLibrary(c).Profile(ctx); err != nil {
		return err
	}

	p := client.NewPlayer(c)
	if report.Devices, err = p.Devices(ctx); err != nil {
		return err
	}
	if report.Player, err = p.State(ctx); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader(fmt.Sprintf("Logged in as %s", report.Profile.DisplayName))
	r.writePlain("Devices:\n")
	if len(report.Devices) == 0 {
		r.writePlain("  (none, open Spotify on a device)\n")
	}
	for _, d := range report.Devices {
		active := ""
		if d.Active {
			active = " (active)"
		}
		r.writePlain("  %s  %s [%s]%s\n", d.ID, d.Name, d.Type, active)
	}

	if report.Player == nil || report.Player.Snapshot.Track == nil {
		return r.writePlainln("Nothing playing")
	}
	t := report.Player.Snapshot.Track
	state := "Playing"
	if report.Player.Snapshot.Paused {
		state = "Paused"
	}
	return r.writePlainln("%s: %s - %s", state, t.Name, t.Artist())
}

// authorizedClient returns a client holding a valid access token for the saved session.
func (r *Runner) authorizedClient(ctx context.Context) (*client.Client, error) {
	c, err := r.newClient()
	if err != nil {
		return nil, err
	}

	if _, err := c.AccessToken(ctx); err != nil {
		c.Close()
		if errors.Is(err, shared.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: run 'findtune login' first", shared.ErrUnauthorized)
		}
		return nil, err
	}
	return c, nil
}
