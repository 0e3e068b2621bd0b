package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/client"
	"github.com/desertthunder/findtune/internal/player"
	"github.com/desertthunder/findtune/internal/repositories"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/urfave/cli/v3"
)

const persistTimeout = 10 * time.Second

// playerSession bundles what a playback command needs: the server client, the orchestrator,
// the polling feed driving it and the optional liked-track store.
type playerSession struct {
	client *client.Client
	player *client.Player
	orch   *player.Orchestrator
	feed   *player.PollingFeed
	db     *sql.DB
	liked  *repositories.LikedTrackRepository
	loaded []string // ids read from the store at startup
	logger *log.Logger
}

// newPlayerSession logs in with the saved session and wires an orchestrator to the server.
func (r *Runner) newPlayerSession(ctx context.Context, cmd *cli.Command) (*playerSession, error) {
	seeds, err := seedSet(cmd.StringSlice("seed"))
	if err != nil {
		return nil, err
	}

	c, err := r.authorizedClient(ctx)
	if err != nil {
		return nil, err
	}

	s := &playerSession{client: c, player: client.NewPlayer(c), logger: r.logger}
	likedSet := player.NewLikedSet()
	s.openLiked(r)
	if s.liked != nil {
		tracks, err := s.liked.List(ctx)
		if err != nil {
			r.logger.Warn("failed to load liked songs", "error", err)
		}
		for _, t := range tracks {
			likedSet.Add(t)
			s.loaded = append(s.loaded, t.ID)
		}
	}

	cfg := r.config.Player
	deviceName := cfg.DeviceName
	if name := cmd.String("device"); name != "" {
		deviceName = name
	}

	s.orch, err = player.New(player.Options{
		Fetcher:        client.NewRecommendations(c),
		Controls:       s.player,
		Seeds:          seeds,
		Liked:          likedSet,
		Clock:          r.clock,
		Logger:         r.logger,
		Debounce:       cfg.Debounce(),
		VolumeDebounce: cfg.VolumeDebounce(),
		AutoAdvance:    cfg.AutoAdvance || cmd.Bool("auto-advance"),
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.feed = player.NewPollingFeed(s.player, cfg.PollInterval(), deviceName, r.logger)
	s.orch.Attach(s.feed)
	return s, nil
}

// openLiked opens the local database the liked set is kept in. Playback works without it.
func (s *playerSession) openLiked(r *Runner) {
	db, repo, err := r.openLikedStore()
	if err != nil {
		r.logger.Warn("liked songs will not be kept", "error", err)
		return
	}
	s.db = db
	s.liked = repo
}

// Close stores the liked set and releases the client and database.
func (s *playerSession) Close() {
	if s.orch != nil {
		s.orch.Close()
		if s.liked != nil {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			storeLiked(ctx, s.liked, s.loaded, s.orch.Liked(), s.logger)
			cancel()
		}
	}
	if s.db != nil {
		s.db.Close()
	}
	s.client.Close()
}

// run polls the player until ctx is done.
func (s *playerSession) run(ctx context.Context) {
	if err := s.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("player feed stopped", "error", err)
	}
}

// Play streams recommendations for the given seeds until interrupted.
//
// Playback starts as soon as a device is ready. Each new track is printed.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := r.newPlayerSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.orch.Seeds().Len() == 0 {
		r.writePlain("%s\n", player.Notice(shared.ErrMissingSeeds))
		return shared.ErrMissingSeeds
	}

	go s.run(ctx)
	r.writePlain("Waiting for a Spotify device...\n")

	var started bool
	var current string
	for {
		select {
		case <-ctx.Done():
			r.writePlainln("Stopped. %d liked songs.", s.orch.Liked().Len())
			return nil
		case u := <-s.orch.Updates():
			if !started && u.Device != "" {
				started = true
				r.writePlain("Device %s ready\n", u.Device)
				go func() {
					if err := s.orch.Start(ctx); err != nil {
						r.logger.Debug("start failed", "error", err)
					}
				}()
			}
			if u.Notice != "" {
				r.writePlain("! %s\n", u.Notice)
			}
			if u.State == player.Playing && u.Track != nil && u.Track.URI != current {
				current = u.Track.URI
				r.writePlain("▶ %s - %s\n", u.Track.Name, u.Track.Artist())
			}
		}
	}
}

// storeLiked saves every liked track and deletes the loaded ones that were unliked during the run.
func storeLiked(ctx context.Context, repo *repositories.LikedTrackRepository, loaded []string, set *player.LikedSet, logger *log.Logger) {
	for _, t := range set.Tracks() {
		if err := repo.Save(ctx, t); err != nil {
			logger.Warn("failed to keep liked song", "track", t.Name, "error", err)
		}
	}
	for _, id := range loaded {
		if set.Contains(id) {
			continue
		}
		if err := repo.Delete(ctx, id); err != nil {
			logger.Warn("failed to forget unliked song", "track", id, "error", err)
		}
	}
}
