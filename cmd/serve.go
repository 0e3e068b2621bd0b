package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/desertthunder/findtune/internal/auth"
	"github.com/desertthunder/findtune/internal/repositories"
	"github.com/desertthunder/findtune/internal/server"
	"github.com/desertthunder/findtune/internal/services"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

const (
	sweepInterval = time.Minute
	// upstreamRate keeps the server under Spotify's rolling request window.
	upstreamRate  = 10
	upstreamBurst = 20
)

// Serve runs the API server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}
	if store := cmd.String("store"); store != "" {
		r.config.Session.Store = store
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := r.sessionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cfg := r.config
	cookies, err := sessions.NewCookieCodec(
		cfg.Session.CookieName,
		cfg.Session.Secret,
		cfg.Session.MaxAge(),
		strings.HasPrefix(cfg.Credentials.Spotify.RedirectURI, "https://"),
		r.clock,
	)
	if err != nil {
		return err
	}

	spotify := services.NewSpotifyService(services.SpotifyOptions{
		APIURL:     cfg.Credentials.Spotify.APIURL,
		HTTPClient: r.httpClient,
		Limiter:    rate.NewLimiter(rate.Limit(upstreamRate), upstreamBurst),
		Clock:      r.clock,
		Logger:     r.logger,
	})

	controller := auth.NewController(auth.Options{
		OAuth:      auth.NewOAuthConfig(cfg.Credentials.Spotify),
		Sessions:   store,
		Profiles:   spotify,
		HTTPClient: r.httpClient,
		Clock:      r.clock,
		Logger:     r.logger,
		LoginTTL:   cfg.Session.LoginTTL(),
	})

	srv, err := server.New(server.Options{
		Config:   cfg,
		Auth:     controller,
		Sessions: store,
		Cookies:  cookies,
		Service:  spotify,
		Clock:    r.clock,
		Logger:   r.logger,
	})
	if err != nil {
		return err
	}

	r.banner()
	r.logger.Info("starting server", "addr", cfg.Server.Addr(), "store", cfg.Session.Store, "domain", cfg.Server.Domain)
	return srv.ListenAndServe(ctx)
}

// sessionStore opens the configured session backend and starts its expiry sweep.
func (r *Runner) sessionStore(ctx context.Context) (sessions.Store, func(), error) {
	cfg := r.config

	switch cfg.Session.Store {
	case "redis":
		store, err := sessions.NewRedisStore(ctx, cfg.Session.RedisURL, r.clock)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "database":
		db, err := shared.NewDatabase(cfg.Database.Driver, cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err := shared.RunMigrations(db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repo := repositories.NewSessionRepository(db, cfg.Database.Driver, r.clock)
		go r.sweep(ctx, repo.DeleteExpired)
		return repo, func() { db.Close() }, nil

	default:
		store := sessions.NewMemoryStore(r.clock)
		go store.RunSweeper(ctx, sweepInterval)
		return store, func() {}, nil
	}
}

// sweep calls deleteExpired every sweepInterval until ctx is done.
func (r *Runner) sweep(ctx context.Context, deleteExpired func(context.Context) (int64, error)) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := deleteExpired(ctx)
			if err != nil {
				r.logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func (r *Runner) banner() {
	r.writePlain("%s\n", figure.NewFigure("findtune", "cybermedium", true).String())
}
